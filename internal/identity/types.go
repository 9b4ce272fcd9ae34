package identity

import (
	"crypto/ed25519"
	"time"

	"bisq-social/go-backend/pkg/models"
)

// KeyRing bundles the key material a profile signs and decrypts with.
type KeyRing struct {
	SigningPrivateKey ed25519.PrivateKey `json:"signing_private_key"`
	SigningPublicKey  ed25519.PublicKey  `json:"signing_public_key"`
	EncryptionPrivate []byte             `json:"encryption_private"` // X25519 scalar (32)
	EncryptionPublic  []byte             `json:"encryption_public"`  // X25519 point (32)
}

func (k KeyRing) Sign(payload []byte) []byte {
	return ed25519.Sign(k.SigningPrivateKey, payload)
}

// UserProfile is a local chat identity: one node may hold several.
type UserProfile struct {
	ProfileID string    `json:"profile_id"`
	NickName  string    `json:"nick_name"`
	Address   string    `json:"address"`
	Keys      KeyRing   `json:"keys"`
	CreatedAt time.Time `json:"created_at"`

	Entitlements []models.Entitlement `json:"entitlements,omitempty"`
}

func (p UserProfile) NetworkID() models.NetworkID {
	return models.NetworkID{
		Address: p.Address,
		PubKey:  append([]byte(nil), p.Keys.SigningPublicKey...),
		EncKey:  append([]byte(nil), p.Keys.EncryptionPublic...),
	}
}

func (p UserProfile) ChatUser() models.ChatUser {
	return models.NewChatUser(p.NickName, p.NetworkID(), p.Entitlements...)
}
