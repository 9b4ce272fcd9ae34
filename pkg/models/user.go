package models

import (
	"bytes"
	"strings"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// NetworkID describes how a user is reachable: transport address, signing
// key (authenticated data) and encryption key (confidential send).
type NetworkID struct {
	Address string `json:"address"`
	PubKey  []byte `json:"pub_key"`
	EncKey  []byte `json:"enc_key,omitempty"`
}

func (n NetworkID) Equal(other NetworkID) bool {
	return n.Address == other.Address && bytes.Equal(n.PubKey, other.PubKey)
}

type EntitlementType string

const (
	EntitlementChannelAdmin     EntitlementType = "channel-admin"
	EntitlementChannelModerator EntitlementType = "channel-moderator"
)

// BondedRoleProof references an on-chain bond transaction; verification is external.
type BondedRoleProof struct {
	TxID      string `json:"tx_id"`
	Signature string `json:"signature"`
}

type Entitlement struct {
	Type  EntitlementType `json:"type"`
	Proof BondedRoleProof `json:"proof"`
}

// ChatUser is the identity-facing handle embedded in messages and channels.
// It is a value type: construct once, never mutate.
type ChatUser struct {
	ID           string        `json:"id"`
	NickName     string        `json:"nick_name"`
	NetworkID    NetworkID     `json:"network_id"`
	Entitlements []Entitlement `json:"entitlements,omitempty"`
}

func NewChatUser(nickName string, networkID NetworkID, entitlements ...Entitlement) ChatUser {
	return ChatUser{
		ID:           UserID(networkID.PubKey),
		NickName:     strings.TrimSpace(nickName),
		NetworkID:    networkID,
		Entitlements: entitlements,
	}
}

// UserID derives the stable profile id from signing public key material.
func UserID(pubKey []byte) string {
	sum := blake2b.Sum256(pubKey)
	return base58.Encode(sum[:20])
}

func (u ChatUser) HasEntitlement(entitlementType EntitlementType) bool {
	for _, e := range u.Entitlements {
		if e.Type == entitlementType {
			return true
		}
	}
	return false
}
