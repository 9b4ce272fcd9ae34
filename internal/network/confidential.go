package network

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"bisq-social/go-backend/pkg/models"
)

const confidentialKeyInfo = "bisq-social/network/confidential/v1"

var (
	ErrNoRecipientKey = errors.New("recipient has no encryption key")
	ErrOpenFailed     = errors.New("confidential envelope could not be opened")
)

// ConfidentialEnvelope seals a signed direct message to the recipient's
// encryption key using an ephemeral X25519 exchange. The inner payload keeps
// its author signature so the receiver can verify it after opening.
type ConfidentialEnvelope struct {
	EphemeralPub []byte `json:"ephemeral_pub"`
	Nonce        []byte `json:"nonce"`
	Ciphertext   []byte `json:"ciphertext"`
}

func SealConfidential(payload AuthenticatedPayload, recipient models.NetworkID) (ConfidentialEnvelope, error) {
	if err := payload.Message.Validate(); err != nil {
		return ConfidentialEnvelope{}, err
	}
	if len(recipient.EncKey) != curve25519.PointSize {
		return ConfidentialEnvelope{}, ErrNoRecipientKey
	}
	ephemeralPriv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(ephemeralPriv); err != nil {
		return ConfidentialEnvelope{}, err
	}
	ephemeralPub, err := curve25519.X25519(ephemeralPriv, curve25519.Basepoint)
	if err != nil {
		return ConfidentialEnvelope{}, err
	}
	shared, err := curve25519.X25519(ephemeralPriv, recipient.EncKey)
	if err != nil {
		return ConfidentialEnvelope{}, err
	}
	key, err := confidentialKey(shared, ephemeralPub, recipient.EncKey)
	if err != nil {
		return ConfidentialEnvelope{}, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return ConfidentialEnvelope{}, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return ConfidentialEnvelope{}, err
	}
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return ConfidentialEnvelope{}, err
	}
	return ConfidentialEnvelope{
		EphemeralPub: ephemeralPub,
		Nonce:        nonce,
		Ciphertext:   aead.Seal(nil, nonce, plaintext, nil),
	}, nil
}

func OpenConfidential(env ConfidentialEnvelope, encPriv, encPub []byte) (AuthenticatedPayload, error) {
	if len(env.EphemeralPub) != curve25519.PointSize {
		return AuthenticatedPayload{}, ErrOpenFailed
	}
	shared, err := curve25519.X25519(encPriv, env.EphemeralPub)
	if err != nil {
		return AuthenticatedPayload{}, ErrOpenFailed
	}
	key, err := confidentialKey(shared, env.EphemeralPub, encPub)
	if err != nil {
		return AuthenticatedPayload{}, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return AuthenticatedPayload{}, err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return AuthenticatedPayload{}, ErrOpenFailed
	}
	var payload AuthenticatedPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return AuthenticatedPayload{}, ErrOpenFailed
	}
	return payload, nil
}

func confidentialKey(shared, ephemeralPub, recipientPub []byte) ([]byte, error) {
	salt := append(append([]byte(nil), ephemeralPub...), recipientPub...)
	reader := hkdf.New(sha256.New, shared, salt, []byte(confidentialKeyInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
