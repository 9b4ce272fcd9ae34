package models

import (
	"testing"
	"time"
)

func testAuthor(nick string) ChatUser {
	return NewChatUser(nick, NetworkID{Address: nick + ".onion:1234", PubKey: []byte(nick + "-pub")})
}

func TestMessageIDIsStable(t *testing.T) {
	date := time.UnixMilli(1_700_000_000_000)
	msg := ChatMessage{
		Kind:      KindPublicDiscussion,
		ChannelID: "disc-1",
		Author:    testAuthor("alice"),
		Text:      "hello",
		Date:      date,
	}
	if msg.ID() != msg.ID() {
		t.Fatalf("id must be deterministic")
	}
	other := msg
	other.Text = "hello!"
	if msg.ID() == other.ID() {
		t.Fatalf("different content must yield different ids")
	}
	edited := msg
	edited.WasEdited = true
	if msg.ID() == edited.ID() {
		t.Fatalf("edited flag must be part of identity")
	}
}

func TestMessageValidate(t *testing.T) {
	author := testAuthor("alice")
	valid := ChatMessage{
		Kind:              KindPrivateTrade,
		ChannelID:         "c1",
		Author:            author,
		Text:              "hi",
		Date:              time.Now(),
		ReceiverProfileID: "peer",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid message rejected: %v", err)
	}

	missingReceiver := valid
	missingReceiver.ReceiverProfileID = ""
	if err := missingReceiver.Validate(); err == nil {
		t.Fatalf("private message without receiver must be rejected")
	}

	offerOnDiscussion := ChatMessage{
		Kind:      KindPublicDiscussion,
		ChannelID: "c1",
		Author:    author,
		Offer:     &TradeOffer{Direction: "buy", MarketCode: "BTC/USD", BaseAmount: 100_000},
		Date:      time.Now(),
	}
	if err := offerOnDiscussion.Validate(); err == nil {
		t.Fatalf("offer payload is only valid on public trade messages")
	}

	badKind := valid
	badKind.Kind = "nonsense"
	if err := badKind.Validate(); err != ErrInvalidMessageKind {
		t.Fatalf("expected ErrInvalidMessageKind, got %v", err)
	}
}

func TestMessageExpiry(t *testing.T) {
	now := time.Now()
	private := ChatMessage{
		Kind:              KindPrivateDiscussion,
		ChannelID:         "c1",
		Author:            testAuthor("alice"),
		Text:              "hi",
		Date:              now.Add(-PrivateMessageTTL - time.Minute),
		ReceiverProfileID: "peer",
	}
	if !private.Expired(now) {
		t.Fatalf("private message past TTL must be expired")
	}
	private.Date = now.Add(-time.Hour)
	if private.Expired(now) {
		t.Fatalf("fresh private message must not be expired")
	}

	public := private
	public.Kind = KindPublicDiscussion
	public.Date = now.Add(-20 * 24 * time.Hour)
	if public.Expired(now) {
		t.Fatalf("public messages never expire")
	}
}
