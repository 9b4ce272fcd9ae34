package models

import (
	"errors"
	"sort"
	"strings"
	"time"
)

type ChannelKind string

const (
	ChannelPublicTrade       ChannelKind = "public-trade"
	ChannelPublicDiscussion  ChannelKind = "public-discussion"
	ChannelPrivateTrade      ChannelKind = "private-trade"
	ChannelPrivateDiscussion ChannelKind = "private-discussion"
)

func (k ChannelKind) Private() bool {
	return k == ChannelPrivateTrade || k == ChannelPrivateDiscussion
}

// MessageKind maps a channel kind to the message kind it carries.
func (k ChannelKind) MessageKind() MessageKind {
	return MessageKind(k)
}

var ErrInvalidChannelKind = errors.New("invalid channel kind")

// Channel is the tagged union over the four chat channel variants. Which
// fields are populated depends on Kind; the discriminant is always set.
type Channel struct {
	Kind ChannelKind `json:"kind"`
	ID   string      `json:"id"`

	// public trade
	MarketCode string `json:"market_code,omitempty"` // empty means any market
	Visible    bool   `json:"visible,omitempty"`

	// public discussion
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	Admin       *ChatUser `json:"admin,omitempty"`

	// private
	Peer        *ChatUser `json:"peer,omitempty"`
	MyProfileID string    `json:"my_profile_id,omitempty"`

	Notification NotificationSetting `json:"notification,omitempty"`
	Messages     []ChatMessage       `json:"messages"`
}

func NewPublicTradeChannel(marketCode string, visible bool) *Channel {
	return &Channel{
		Kind:       ChannelPublicTrade,
		ID:         PublicTradeChannelID(marketCode),
		MarketCode: strings.ToUpper(strings.TrimSpace(marketCode)),
		Visible:    visible,
	}
}

func NewPublicDiscussionChannel(id, name, description string, admin ChatUser) *Channel {
	return &Channel{
		Kind:        ChannelPublicDiscussion,
		ID:          id,
		Name:        name,
		Description: description,
		Admin:       &admin,
	}
}

func NewPrivateChannel(kind ChannelKind, peer ChatUser, myProfileID string) (*Channel, error) {
	if !kind.Private() {
		return nil, ErrInvalidChannelKind
	}
	return &Channel{
		Kind:        kind,
		ID:          PrivateChannelID(peer.ID, myProfileID),
		Peer:        &peer,
		MyProfileID: myProfileID,
	}, nil
}

func PublicTradeChannelID(marketCode string) string {
	marketCode = strings.ToUpper(strings.TrimSpace(marketCode))
	if marketCode == "" {
		return "public-trade/any"
	}
	return "public-trade/" + marketCode
}

// PrivateChannelID canonicalizes the unordered (peer, my profile) pair, so both
// ends of a 1:1 relation derive the same channel id.
func PrivateChannelID(profileA, profileB string) string {
	if profileB < profileA {
		profileA, profileB = profileB, profileA
	}
	return profileA + "@" + profileB
}

func (c *Channel) DisplayString() string {
	switch c.Kind {
	case ChannelPublicTrade:
		if c.MarketCode == "" {
			return "Any market"
		}
		return c.MarketCode
	case ChannelPublicDiscussion:
		return c.Name
	default:
		if c.Peer != nil {
			return c.Peer.NickName
		}
		return c.ID
	}
}

// AddMessage appends in arrival order; a message whose id is already present
// is dropped and false is returned.
func (c *Channel) AddMessage(msg ChatMessage) bool {
	id := msg.ID()
	for _, existing := range c.Messages {
		if existing.ID() == id {
			return false
		}
	}
	c.Messages = append(c.Messages, msg)
	return true
}

func (c *Channel) RemoveMessage(id string) bool {
	for i, existing := range c.Messages {
		if existing.ID() == id {
			c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
			return true
		}
	}
	return false
}

// SortedMessages reconciles concurrent inserts at read time: display order is
// the embedded timestamp, not arrival order.
func (c *Channel) SortedMessages() []ChatMessage {
	out := append([]ChatMessage(nil), c.Messages...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// RemoveExpired drops expired private messages and reports how many went away.
func (c *Channel) RemoveExpired(now time.Time) int {
	if !c.Kind.Private() {
		return 0
	}
	kept := c.Messages[:0]
	removed := 0
	for _, msg := range c.Messages {
		if msg.Expired(now) {
			removed++
			continue
		}
		kept = append(kept, msg)
	}
	c.Messages = kept
	return removed
}

func (c *Channel) Clone() *Channel {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = make([]ChatMessage, len(c.Messages))
	for i, msg := range c.Messages {
		if msg.Offer != nil {
			offer := *msg.Offer
			offer.PaymentMethods = append([]string(nil), msg.Offer.PaymentMethods...)
			msg.Offer = &offer
		}
		if msg.Quotation != nil {
			quotation := *msg.Quotation
			msg.Quotation = &quotation
		}
		out.Messages[i] = msg
	}
	if c.Admin != nil {
		admin := *c.Admin
		out.Admin = &admin
	}
	if c.Peer != nil {
		peer := *c.Peer
		out.Peer = &peer
	}
	return &out
}
