package models

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

type MessageKind string

const (
	KindPublicTrade       MessageKind = "public-trade"
	KindPublicDiscussion  MessageKind = "public-discussion"
	KindPrivateTrade      MessageKind = "private-trade"
	KindPrivateDiscussion MessageKind = "private-discussion"
)

func (k MessageKind) Valid() bool {
	switch k {
	case KindPublicTrade, KindPublicDiscussion, KindPrivateTrade, KindPrivateDiscussion:
		return true
	}
	return false
}

func (k MessageKind) Private() bool {
	return k == KindPrivateTrade || k == KindPrivateDiscussion
}

// PrivateMessageTTL is the validity window of direct messages; expired ones are
// purged when their channel is next selected.
const PrivateMessageTTL = 10 * 24 * time.Hour

type Quotation struct {
	AuthorID string `json:"author_id"`
	NickName string `json:"nick_name"`
	Text     string `json:"text"`
}

type TradeOffer struct {
	Direction      string   `json:"direction"` // buy | sell
	MarketCode     string   `json:"market_code"`
	BaseAmount     int64    `json:"base_amount"`
	PaymentMethods []string `json:"payment_methods,omitempty"`
}

// ChatMessage is the immutable message record shared by all four chat kinds.
// Public trade messages may carry an offer instead of text; private kinds
// additionally carry the receiver profile id and are subject to expiry.
type ChatMessage struct {
	Kind              MessageKind `json:"kind"`
	ChannelID         string      `json:"channel_id"`
	Author            ChatUser    `json:"author"`
	Text              string      `json:"text,omitempty"`
	Offer             *TradeOffer `json:"offer,omitempty"`
	Quotation         *Quotation  `json:"quotation,omitempty"`
	Date              time.Time   `json:"date"`
	WasEdited         bool        `json:"was_edited,omitempty"`
	ReceiverProfileID string      `json:"receiver_profile_id,omitempty"`
}

var (
	ErrInvalidMessageKind = errors.New("invalid message kind")
	ErrInvalidMessage     = errors.New("invalid chat message")
)

func (m ChatMessage) Validate() error {
	if !m.Kind.Valid() {
		return ErrInvalidMessageKind
	}
	if strings.TrimSpace(m.ChannelID) == "" || m.Author.ID == "" {
		return ErrInvalidMessage
	}
	if m.Kind.Private() && strings.TrimSpace(m.ReceiverProfileID) == "" {
		return ErrInvalidMessage
	}
	if m.Offer != nil && m.Kind != KindPublicTrade {
		return ErrInvalidMessage
	}
	if m.Text == "" && m.Offer == nil {
		return ErrInvalidMessage
	}
	return nil
}

// ID is derived from message content, so a replayed network payload maps to the
// same id and deduplicates on insert.
func (m ChatMessage) ID() string {
	h, _ := blake2b.New256(nil)
	parts := []string{
		string(m.Kind),
		m.ChannelID,
		m.Author.ID,
		m.Text,
		strconv.FormatInt(m.Date.UnixMilli(), 10),
		strconv.FormatBool(m.WasEdited),
		m.ReceiverProfileID,
	}
	if m.Offer != nil {
		parts = append(parts, m.Offer.Direction, m.Offer.MarketCode,
			strconv.FormatInt(m.Offer.BaseAmount, 10), strings.Join(m.Offer.PaymentMethods, ","))
	}
	if m.Quotation != nil {
		parts = append(parts, m.Quotation.AuthorID, m.Quotation.Text)
	}
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return base58.Encode(h.Sum(nil)[:20])
}

func (m ChatMessage) Expired(now time.Time) bool {
	return m.Kind.Private() && now.Sub(m.Date) > PrivateMessageTTL
}
