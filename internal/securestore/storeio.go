package securestore

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteJSON marshals v and writes it to path, encrypted when a passphrase is
// set. Plaintext mode exists for tests and throwaway dev profiles only.
func WriteJSON(path, passphrase string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if passphrase != "" {
		data, err = Encrypt(passphrase, data)
		if err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ReadJSON loads path into v. A missing file reports fs.ErrNotExist untouched
// so callers can fall back to defaults. Legacy plaintext files are accepted.
func ReadJSON(path, passphrase string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fs.ErrNotExist
	}
	if passphrase != "" {
		decoded, derr := Decrypt(passphrase, data)
		if derr != nil {
			if !errors.Is(derr, ErrLegacyData) {
				return derr
			}
		} else {
			data = decoded
		}
	}
	return json.Unmarshal(data, v)
}
