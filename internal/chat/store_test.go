package chat

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"bisq-social/go-backend/internal/markets"
	"bisq-social/go-backend/pkg/models"
)

func testStoreAuthor(nick string) models.ChatUser {
	return models.NewChatUser(nick, models.NetworkID{
		Address: nick + ".local",
		PubKey:  []byte(nick + "-signing-key"),
	})
}

func storeTradeMessage(author models.ChatUser, channelID, text string, date time.Time) models.ChatMessage {
	return models.ChatMessage{
		Kind:      models.KindPublicTrade,
		ChannelID: channelID,
		Author:    author,
		Text:      text,
		Date:      date,
	}
}

func TestBootstrapSeedsDefaultsExactlyOnce(t *testing.T) {
	store := NewStore(nil)
	if err := maybeAddDefaultChannels(store); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if err := maybeAddDefaultChannels(store); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}

	discussion := store.Channels(models.ChannelPublicDiscussion)
	bisqCount := 0
	for _, ch := range discussion {
		if ch.Name == "Discussions Bisq" {
			bisqCount++
		}
	}
	if bisqCount != 1 {
		t.Fatalf("got %d 'Discussions Bisq' channels, want exactly 1", bisqCount)
	}
	if len(discussion) != len(defaultDiscussionChannels) {
		t.Fatalf("got %d discussion channels, want %d", len(discussion), len(defaultDiscussionChannels))
	}

	trade := store.Channels(models.ChannelPublicTrade)
	if len(trade) != len(markets.ForTradeChannels())+1 {
		t.Fatalf("got %d trade channels, want %d", len(trade), len(markets.ForTradeChannels())+1)
	}
	visible := map[string]bool{}
	for _, ch := range trade {
		if ch.Visible {
			visible[ch.ID] = true
		}
	}
	for _, id := range []string{
		models.PublicTradeChannelID(markets.Default().Code()),
		models.PublicTradeChannelID(markets.BSQ().Code()),
		models.PublicTradeChannelID(markets.XMR().Code()),
		models.PublicTradeChannelID(""),
	} {
		if !visible[id] {
			t.Fatalf("channel %s not visible after bootstrap", id)
		}
	}
	if len(store.CustomTags()) == 0 {
		t.Fatal("custom tags not seeded")
	}

	if got := store.SelectedTradeChannelID(); got != models.PublicTradeChannelID(markets.Default().Code()) {
		t.Fatalf("selected trade channel = %q after bootstrap", got)
	}
	if got := store.SelectedDiscussionChannelID(); got != "discussion/bisq" {
		t.Fatalf("selected discussion channel = %q after bootstrap", got)
	}
}

func TestAddMessagePersistsSnapshotAndDeduplicates(t *testing.T) {
	store := NewStore(nil)
	var snapshots []State
	store.SetPersister(func(s State) error {
		snapshots = append(snapshots, s)
		return nil
	})
	channel := models.NewPublicTradeChannel("BTC/USD", true)
	if err := store.UpsertChannel(channel); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	msg := storeTradeMessage(testStoreAuthor("alice"), channel.ID, "hello", time.Now())
	added, err := store.AddMessage(models.ChannelPublicTrade, channel.ID, msg)
	if err != nil || !added {
		t.Fatalf("add: added=%v err=%v", added, err)
	}
	last := snapshots[len(snapshots)-1]
	found := false
	for _, ch := range last.PublicTradeChannels {
		for _, m := range ch.Messages {
			if m.ID() == msg.ID() {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("persisted snapshot missing the new message")
	}

	persistCount := len(snapshots)
	added, err = store.AddMessage(models.ChannelPublicTrade, channel.ID, msg)
	if err != nil || added {
		t.Fatalf("duplicate add: added=%v err=%v", added, err)
	}
	if len(snapshots) != persistCount {
		t.Fatal("duplicate insert must not persist")
	}
}

func TestPersistFailureRollsBackMutation(t *testing.T) {
	store := NewStore(nil)
	channel := models.NewPublicTradeChannel("BTC/USD", true)
	if err := store.UpsertChannel(channel); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	boom := errors.New("disk full")
	store.SetPersister(func(State) error { return boom })

	msg := storeTradeMessage(testStoreAuthor("alice"), channel.ID, "hello", time.Now())
	if _, err := store.AddMessage(models.ChannelPublicTrade, channel.ID, msg); !errors.Is(err, boom) {
		t.Fatalf("expected persist error, got %v", err)
	}
	ch, _ := store.Channel(models.ChannelPublicTrade, channel.ID)
	if len(ch.Messages) != 0 {
		t.Fatal("mutation committed despite persist failure")
	}
}

func TestPurgeExpiredPersistsOnlyWhenRemoved(t *testing.T) {
	store := NewStore(nil)
	peer := testStoreAuthor("bob")
	channel, err := models.NewPrivateChannel(models.ChannelPrivateTrade, peer, "my-profile")
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	if err := store.UpsertChannel(channel); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	now := time.Now()
	fresh := models.ChatMessage{
		Kind: models.KindPrivateTrade, ChannelID: channel.ID, Author: peer,
		Text: "fresh", Date: now.Add(-time.Hour), ReceiverProfileID: "my-profile",
	}
	stale := models.ChatMessage{
		Kind: models.KindPrivateTrade, ChannelID: channel.ID, Author: peer,
		Text: "stale", Date: now.Add(-models.PrivateMessageTTL - time.Hour), ReceiverProfileID: "my-profile",
	}
	for _, m := range []models.ChatMessage{fresh, stale} {
		if _, err := store.AddMessage(models.ChannelPrivateTrade, channel.ID, m); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	persists := 0
	store.SetPersister(func(State) error { persists++; return nil })

	removed, err := store.PurgeExpired(models.ChannelPrivateTrade, channel.ID, now)
	if err != nil || removed != 1 {
		t.Fatalf("purge: removed=%d err=%v", removed, err)
	}
	if persists != 1 {
		t.Fatalf("purge persisted %d times, want 1", persists)
	}

	removed, err = store.PurgeExpired(models.ChannelPrivateTrade, channel.ID, now)
	if err != nil || removed != 0 {
		t.Fatalf("idle purge: removed=%d err=%v", removed, err)
	}
	if persists != 1 {
		t.Fatal("idle purge must not persist")
	}

	ch, _ := store.Channel(models.ChannelPrivateTrade, channel.ID)
	if len(ch.Messages) != 1 || ch.Messages[0].Text != "fresh" {
		t.Fatalf("unexpected channel content after purge: %+v", ch.Messages)
	}
}

func TestSelectUnknownChannelFails(t *testing.T) {
	store := NewStore(nil)
	if err := store.SelectTradeChannel("nope"); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestSelectionCoversPublicAndPrivate(t *testing.T) {
	store := NewStore(nil)
	public := models.NewPublicTradeChannel("BTC/EUR", true)
	private, _ := models.NewPrivateChannel(models.ChannelPrivateTrade, testStoreAuthor("bob"), "me")
	for _, ch := range []*models.Channel{public, private} {
		if err := store.UpsertChannel(ch); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	if err := store.SelectTradeChannel(public.ID); err != nil {
		t.Fatalf("select public: %v", err)
	}
	if err := store.SelectTradeChannel(private.ID); err != nil {
		t.Fatalf("select private: %v", err)
	}
	if got := store.SelectedTradeChannelID(); got != private.ID {
		t.Fatalf("selected = %q, want %q", got, private.ID)
	}
}

func TestIgnoreListRoundtrip(t *testing.T) {
	store := NewStore(nil)
	if store.IsIgnored("troll") {
		t.Fatal("fresh store ignores someone")
	}
	if err := store.Ignore("troll"); err != nil {
		t.Fatalf("ignore: %v", err)
	}
	if err := store.Ignore("troll"); err != nil {
		t.Fatalf("repeat ignore: %v", err)
	}
	if !store.IsIgnored("troll") {
		t.Fatal("ignore not recorded")
	}
	if err := store.UndoIgnore("troll"); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if store.IsIgnored("troll") {
		t.Fatal("undo not applied")
	}
}

func TestUpsertKeepsMessagesAndNotification(t *testing.T) {
	store := NewStore(nil)
	channel := models.NewPublicTradeChannel("BTC/USD", true)
	if err := store.UpsertChannel(channel); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	msg := storeTradeMessage(testStoreAuthor("alice"), channel.ID, "keep me", time.Now())
	if _, err := store.AddMessage(models.ChannelPublicTrade, channel.ID, msg); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.SetNotificationSetting(models.ChannelPublicTrade, channel.ID, models.NotifyNone); err != nil {
		t.Fatalf("set notification: %v", err)
	}

	if err := store.UpsertChannel(models.NewPublicTradeChannel("BTC/USD", false)); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	ch, _ := store.Channel(models.ChannelPublicTrade, channel.ID)
	if len(ch.Messages) != 1 {
		t.Fatal("re-upsert dropped messages")
	}
	if ch.Notification != models.NotifyNone {
		t.Fatal("re-upsert dropped notification setting")
	}
	if ch.Visible {
		t.Fatal("re-upsert did not apply new visibility")
	}
}

func TestPersistedStateSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.dat")
	store := NewStore(nil)
	store.Configure(path, "hunter2")
	if err := maybeAddDefaultChannels(store); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	channelID := models.PublicTradeChannelID(markets.Default().Code())
	msg := storeTradeMessage(testStoreAuthor("alice"), channelID, "survives restart", time.Now())
	if _, err := store.AddMessage(models.ChannelPublicTrade, channelID, msg); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Ignore("troll"); err != nil {
		t.Fatalf("ignore: %v", err)
	}
	if err := store.SelectTradeChannel(channelID); err != nil {
		t.Fatalf("select: %v", err)
	}

	reloaded := NewStore(nil)
	if err := reloaded.LoadFrom(path, "hunter2"); err != nil {
		t.Fatalf("load: %v", err)
	}
	ch, ok := reloaded.Channel(models.ChannelPublicTrade, channelID)
	if !ok || len(ch.Messages) != 1 || ch.Messages[0].Text != "survives restart" {
		t.Fatalf("reloaded channel wrong: ok=%v", ok)
	}
	if !reloaded.IsIgnored("troll") {
		t.Fatal("ignore list lost on reload")
	}
	if reloaded.SelectedTradeChannelID() != channelID {
		t.Fatal("selection lost on reload")
	}
	if reloaded.HasDiscussionChannels() != true {
		t.Fatal("discussion channels lost on reload")
	}
}
