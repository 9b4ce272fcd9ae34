package chat

import (
	"bisq-social/go-backend/internal/markets"
	"bisq-social/go-backend/pkg/models"
)

// defaultDiscussionChannels seeds the channel list a fresh node starts with.
// The ids are stable so every node agrees on them without coordination.
var defaultDiscussionChannels = []struct {
	id          string
	name        string
	description string
}{
	{"discussion/bisq", "Discussions Bisq", "Discussions about Bisq"},
	{"discussion/bitcoin", "Discussions Bitcoin", "Discussions about Bitcoin"},
	{"discussion/monero", "Discussions Monero", "Discussions about Monero"},
	{"discussion/price", "Price", "Price and market discussions"},
	{"discussion/economy", "Economy", "Economy, politics and society"},
	{"discussion/off-topic", "Off-topic", "Everything else"},
}

var defaultCustomTags = []string{
	"BTC", "Bitcoin", "BSQ", "XMR", "Monero",
	"SEPA", "Bank-transfer", "Zelle", "Revolut", "Cash-by-mail",
	"Buy", "Sell", "Offer", "Mediation", "Dispute",
}

// seedAdmin is the placeholder admin attached to the bootstrap discussion
// channels; real channels created later carry a bonded admin.
func seedAdmin() models.ChatUser {
	return models.NewChatUser("Bisq", models.NetworkID{Address: "seed.bisq.network"})
}

// maybeAddDefaultChannels seeds the market trade channels and the default
// discussion channels. The guard is the public discussion set: once any
// discussion channel exists the store is considered initialized and nothing
// is added.
func maybeAddDefaultChannels(store *Store) error {
	if store.HasDiscussionChannels() {
		return nil
	}

	visible := map[string]bool{
		markets.Default().Code(): true,
		markets.BSQ().Code():     true,
		markets.XMR().Code():     true,
	}
	for _, market := range markets.ForTradeChannels() {
		ch := models.NewPublicTradeChannel(market.Code(), visible[market.Code()])
		if err := store.UpsertChannel(ch); err != nil {
			return err
		}
	}
	// The any-market channel collects offers not bound to one market.
	if err := store.UpsertChannel(models.NewPublicTradeChannel("", true)); err != nil {
		return err
	}

	admin := seedAdmin()
	for _, def := range defaultDiscussionChannels {
		ch := models.NewPublicDiscussionChannel(def.id, def.name, def.description, admin)
		if err := store.UpsertChannel(ch); err != nil {
			return err
		}
	}

	// A fresh node starts with the default market and "Discussions Bisq"
	// selected, so the UI has a channel to show before any user action.
	if err := store.SelectTradeChannel(models.PublicTradeChannelID(markets.Default().Code())); err != nil {
		return err
	}
	if err := store.SelectDiscussionChannel(defaultDiscussionChannels[0].id); err != nil {
		return err
	}
	return store.SetCustomTags(defaultCustomTags)
}
