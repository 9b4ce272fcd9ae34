package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"io"
	"strings"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	hkdfInfoSigning    = "bisq-social/identity/signing/v1"
	hkdfInfoEncryption = "bisq-social/identity/encryption/v1"
)

var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// NewMnemonic creates a fresh 24-word seed phrase for a profile.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// DeriveKeyRing expands a mnemonic into the profile key ring. The same phrase
// always yields the same keys, so a profile is recoverable from its phrase.
func DeriveKeyRing(mnemonic string) (KeyRing, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return KeyRing{}, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, "")

	signingSeed, err := hkdfExpand(seed, hkdfInfoSigning, ed25519.SeedSize)
	if err != nil {
		return KeyRing{}, err
	}
	encryptionPriv, err := hkdfExpand(seed, hkdfInfoEncryption, curve25519.ScalarSize)
	if err != nil {
		return KeyRing{}, err
	}
	encryptionPub, err := curve25519.X25519(encryptionPriv, curve25519.Basepoint)
	if err != nil {
		return KeyRing{}, err
	}

	signingPriv := ed25519.NewKeyFromSeed(signingSeed)
	return KeyRing{
		SigningPrivateKey: signingPriv,
		SigningPublicKey:  signingPriv.Public().(ed25519.PublicKey),
		EncryptionPrivate: encryptionPriv,
		EncryptionPublic:  encryptionPub,
	}, nil
}

func hkdfExpand(seed []byte, info string, outLen int) ([]byte, error) {
	reader := hkdf.New(sha256.New, seed, nil, []byte(info))
	out := make([]byte, outLen)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}
