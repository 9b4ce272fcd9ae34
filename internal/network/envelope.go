package network

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"

	"bisq-social/go-backend/pkg/models"
)

var (
	ErrAuthorKeyMismatch = errors.New("author network identity does not match signing key")
	ErrBadSignature      = errors.New("payload signature verification failed")
	ErrNotPayloadOwner   = errors.New("removal must be signed by the payload author")
)

// AuthenticatedPayload is a chat message whose authorship is bound to the
// author's network identity key. Add and remove operations on the distributed
// store both carry this signature.
type AuthenticatedPayload struct {
	Message   models.ChatMessage `json:"message"`
	PubKey    []byte             `json:"pub_key"`
	Signature []byte             `json:"signature"`
}

func (p AuthenticatedPayload) ID() string {
	return p.Message.ID()
}

// SealAuthenticated signs the message with the sender's key after checking
// that the embedded author identity really is the sender's.
func SealAuthenticated(msg models.ChatMessage, priv ed25519.PrivateKey) (AuthenticatedPayload, error) {
	if err := msg.Validate(); err != nil {
		return AuthenticatedPayload{}, err
	}
	pub := priv.Public().(ed25519.PublicKey)
	if !bytes.Equal(msg.Author.NetworkID.PubKey, pub) {
		return AuthenticatedPayload{}, ErrAuthorKeyMismatch
	}
	digest, err := payloadDigest(msg)
	if err != nil {
		return AuthenticatedPayload{}, err
	}
	return AuthenticatedPayload{
		Message:   msg,
		PubKey:    append([]byte(nil), pub...),
		Signature: ed25519.Sign(priv, digest),
	}, nil
}

func (p AuthenticatedPayload) Verify() error {
	if !bytes.Equal(p.Message.Author.NetworkID.PubKey, p.PubKey) {
		return ErrAuthorKeyMismatch
	}
	digest, err := payloadDigest(p.Message)
	if err != nil {
		return err
	}
	if !ed25519.Verify(ed25519.PublicKey(p.PubKey), digest, p.Signature) {
		return ErrBadSignature
	}
	return nil
}

func payloadDigest(msg models.ChatMessage) ([]byte, error) {
	// The message id already commits to all content fields; signing id plus
	// the raw encoding guards the remaining metadata.
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return append([]byte(msg.ID()+"\n"), raw...), nil
}
