package network

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/curve25519"

	"bisq-social/go-backend/pkg/models"
)

type testPeer struct {
	user    models.ChatUser
	signKey ed25519.PrivateKey
	encPriv []byte
	encPub  []byte
}

func newTestPeer(t *testing.T, nick string) testPeer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate signing key: %v", err)
	}
	encPriv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(encPriv); err != nil {
		t.Fatalf("generate encryption key: %v", err)
	}
	encPub, err := curve25519.X25519(encPriv, curve25519.Basepoint)
	if err != nil {
		t.Fatalf("derive encryption public key: %v", err)
	}
	user := models.NewChatUser(nick, models.NetworkID{
		Address: nick + ".local",
		PubKey:  pub,
		EncKey:  encPub,
	})
	return testPeer{user: user, signKey: priv, encPriv: encPriv, encPub: encPub}
}

func publicTradeMessage(author models.ChatUser, text string) models.ChatMessage {
	return models.ChatMessage{
		Kind:      models.KindPublicTrade,
		ChannelID: models.PublicTradeChannelID("BTC/USD"),
		Author:    author,
		Text:      text,
		Date:      time.Now(),
	}
}

type payloadCollector struct {
	mu      sync.Mutex
	added   []AuthenticatedPayload
	removed []AuthenticatedPayload
}

func (c *payloadCollector) OnAuthenticatedDataAdded(p AuthenticatedPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.added = append(c.added, p)
}

func (c *payloadCollector) OnAuthenticatedDataRemoved(p AuthenticatedPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = append(c.removed, p)
}

func (c *payloadCollector) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.added), len(c.removed)
}

func startNode(t *testing.T, bus *broadcastBus) *Node {
	t.Helper()
	n := newNodeWithBus(DefaultConfig(), bus)
	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("start node: %v", err)
	}
	t.Cleanup(func() { _ = n.Stop(context.Background()) })
	return n
}

func TestSealAuthenticatedRejectsForeignKey(t *testing.T) {
	alice := newTestPeer(t, "alice")
	mallory := newTestPeer(t, "mallory")

	msg := publicTradeMessage(alice.user, "hi")
	if _, err := SealAuthenticated(msg, mallory.signKey); !errors.Is(err, ErrAuthorKeyMismatch) {
		t.Fatalf("expected ErrAuthorKeyMismatch, got %v", err)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	alice := newTestPeer(t, "alice")
	payload, err := SealAuthenticated(publicTradeMessage(alice.user, "original"), alice.signKey)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if err := payload.Verify(); err != nil {
		t.Fatalf("verify untampered payload: %v", err)
	}
	payload.Message.Text = "forged"
	if err := payload.Verify(); err == nil {
		t.Fatal("expected verification failure after tampering")
	}
}

func TestConfidentialRoundTrip(t *testing.T) {
	alice := newTestPeer(t, "alice")
	bob := newTestPeer(t, "bob")

	msg := models.ChatMessage{
		Kind:              models.KindPrivateTrade,
		ChannelID:         models.PrivateChannelID(alice.user.ID, bob.user.ID),
		Author:            alice.user,
		Text:              "meet at the premium",
		Date:              time.Now(),
		ReceiverProfileID: bob.user.ID,
	}
	payload, err := SealAuthenticated(msg, alice.signKey)
	if err != nil {
		t.Fatalf("seal authenticated: %v", err)
	}
	env, err := SealConfidential(payload, bob.user.NetworkID)
	if err != nil {
		t.Fatalf("seal confidential: %v", err)
	}

	opened, err := OpenConfidential(env, bob.encPriv, bob.encPub)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened.Message.Text != msg.Text {
		t.Fatalf("text mismatch: got %q", opened.Message.Text)
	}
	if err := opened.Verify(); err != nil {
		t.Fatalf("verify opened payload: %v", err)
	}

	eve := newTestPeer(t, "eve")
	if _, err := OpenConfidential(env, eve.encPriv, eve.encPub); !errors.Is(err, ErrOpenFailed) {
		t.Fatalf("expected ErrOpenFailed for wrong key, got %v", err)
	}
}

func TestSealConfidentialRequiresRecipientKey(t *testing.T) {
	alice := newTestPeer(t, "alice")
	payload, err := SealAuthenticated(publicTradeMessage(alice.user, "hi"), alice.signKey)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := SealConfidential(payload, models.NetworkID{Address: "x"}); !errors.Is(err, ErrNoRecipientKey) {
		t.Fatalf("expected ErrNoRecipientKey, got %v", err)
	}
}

func TestPublishReachesOtherNodesAndRetains(t *testing.T) {
	bus := newBus()
	alice := newTestPeer(t, "alice")

	sender := startNode(t, bus)
	receiver := startNode(t, bus)
	var got payloadCollector
	receiver.AddDataListener(&got)

	msg := publicTradeMessage(alice.user, "offer up")
	if err := sender.PublishAuthenticatedData(context.Background(), msg, alice.signKey); err != nil {
		t.Fatalf("publish: %v", err)
	}

	added, _ := got.counts()
	if added != 1 {
		t.Fatalf("receiver saw %d payloads, want 1", added)
	}

	late := startNode(t, bus)
	all := late.AllAuthenticatedPayloads()
	if len(all) != 1 || all[0].Message.ID() != msg.ID() {
		t.Fatalf("late joiner replay mismatch: %d payloads", len(all))
	}
}

func TestRemoveRequiresPayloadOwner(t *testing.T) {
	bus := newBus()
	alice := newTestPeer(t, "alice")
	mallory := newTestPeer(t, "mallory")

	node := startNode(t, bus)
	var got payloadCollector
	node.AddDataListener(&got)

	msg := publicTradeMessage(alice.user, "to be removed")
	if err := node.PublishAuthenticatedData(context.Background(), msg, alice.signKey); err != nil {
		t.Fatalf("publish: %v", err)
	}
	payload, err := SealAuthenticated(msg, alice.signKey)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if err := bus.remove(payload, mallory.user.NetworkID.PubKey); !errors.Is(err, ErrNotPayloadOwner) {
		t.Fatalf("expected ErrNotPayloadOwner, got %v", err)
	}
	if err := node.RemoveAuthenticatedData(context.Background(), msg, alice.signKey); err != nil {
		t.Fatalf("authorized removal: %v", err)
	}
	if err := node.RemoveAuthenticatedData(context.Background(), msg, alice.signKey); !errors.Is(err, ErrPayloadNotFound) {
		t.Fatalf("expected ErrPayloadNotFound on second removal, got %v", err)
	}

	_, removed := got.counts()
	if removed != 1 {
		t.Fatalf("saw %d removals, want 1", removed)
	}
	if len(bus.all()) != 0 {
		t.Fatal("payload still retained after removal")
	}
}

func TestDirectSendAndMailbox(t *testing.T) {
	bus := newBus()
	alice := newTestPeer(t, "alice")
	bob := newTestPeer(t, "bob")

	sender := startNode(t, bus)
	sender.RegisterIdentity(alice.user.ID, alice.encPriv, alice.encPub)

	msg := models.ChatMessage{
		Kind:              models.KindPrivateDiscussion,
		ChannelID:         models.PrivateChannelID(alice.user.ID, bob.user.ID),
		Author:            alice.user,
		Text:              "stored until you arrive",
		Date:              time.Now(),
		ReceiverProfileID: bob.user.ID,
	}
	// Bob is offline; the envelope waits in the mailbox.
	if err := sender.SendConfidential(context.Background(), msg, bob.user.NetworkID, alice.signKey); err != nil {
		t.Fatalf("send: %v", err)
	}

	receiver := newNodeWithBus(DefaultConfig(), bus)
	receiver.RegisterIdentity(bob.user.ID, bob.encPriv, bob.encPub)
	var gotMu sync.Mutex
	var got []AuthenticatedPayload
	receiver.AddMessageListener(func(p AuthenticatedPayload) {
		gotMu.Lock()
		got = append(got, p)
		gotMu.Unlock()
	})
	if err := receiver.Start(context.Background()); err != nil {
		t.Fatalf("start receiver: %v", err)
	}
	defer receiver.Stop(context.Background())

	gotMu.Lock()
	defer gotMu.Unlock()
	if len(got) != 1 {
		t.Fatalf("receiver got %d direct messages, want 1", len(got))
	}
	if got[0].Message.Text != msg.Text {
		t.Fatalf("text mismatch: %q", got[0].Message.Text)
	}
}

func TestPublishRequiresConnection(t *testing.T) {
	alice := newTestPeer(t, "alice")
	node := newNodeWithBus(DefaultConfig(), newBus())
	err := node.PublishAuthenticatedData(context.Background(), publicTradeMessage(alice.user, "hi"), alice.signKey)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestNormalizeConfigDefaults(t *testing.T) {
	cfg := normalizeConfig(Config{Port: -1, ReconnectBackoffMax: time.Millisecond})
	if cfg.Transport != TransportMock {
		t.Fatalf("transport = %q", cfg.Transport)
	}
	if cfg.Port != 61000 {
		t.Fatalf("port = %d", cfg.Port)
	}
	if cfg.ReconnectBackoffMax < cfg.ReconnectInterval {
		t.Fatal("backoff max below reconnect interval")
	}
	if cfg.StoreQueryFanout <= 0 {
		t.Fatal("fanout not defaulted")
	}
}
