package chat

import (
	"context"
	"crypto/ed25519"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bisq-social/go-backend/internal/contracts"
	"bisq-social/go-backend/internal/identity"
	"bisq-social/go-backend/internal/network"
	"bisq-social/go-backend/internal/platform/ratelimiter"
	"bisq-social/go-backend/pkg/models"
)

var (
	ErrNoProfile           = errors.New("no user profile is selected")
	ErrNotAuthorized       = errors.New("operation requires the message author's profile")
	ErrUserUnresolved      = errors.New("user profile could not be resolved")
	ErrEntitlementRequired = errors.New("valid bonded-role proof required")
	ErrChannelNameRequired = errors.New("channel name is required")
)

// Network is the transport surface the chat service depends on.
type Network interface {
	PublishAuthenticatedData(ctx context.Context, msg models.ChatMessage, priv ed25519.PrivateKey) error
	RemoveAuthenticatedData(ctx context.Context, msg models.ChatMessage, priv ed25519.PrivateKey) error
	SendConfidential(ctx context.Context, msg models.ChatMessage, receiver models.NetworkID, priv ed25519.PrivateKey) error
	AllAuthenticatedPayloads() []network.AuthenticatedPayload
	AddDataListener(l network.DataListener)
	AddMessageListener(h func(payload network.AuthenticatedPayload))
	RegisterIdentity(profileID string, encPriv, encPub []byte)
}

// Profiles is the identity surface the chat service depends on.
type Profiles interface {
	SelectedProfile() (identity.UserProfile, bool)
	FindProfile(profileID string) (identity.UserProfile, bool)
	Profiles() []identity.UserProfile
	IsMyMessage(msg models.ChatMessage) bool
	VerifyBondedRole(proof models.BondedRoleProof, userID string) bool
}

type ServiceDeps struct {
	Store    *Store
	Network  Network
	Profiles Profiles
	Limiter  *ratelimiter.AuthorLimiter
	Log      *slog.Logger
	Now      func() time.Time
}

// Service coordinates the four chat domains: publishing and lifecycle of
// public messages, confidential direct send, channel selection and the
// ignore list. Local channel state always follows the network's view: public
// messages land through the data listener, own ones included.
type Service struct {
	store    *Store
	net      Network
	profiles Profiles
	limiter  *ratelimiter.AuthorLimiter
	log      *slog.Logger
	now      func() time.Time

	mu         sync.RWMutex
	knownUsers map[string]models.ChatUser
}

func NewService(deps ServiceDeps) *Service {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:      deps.Store,
		net:        deps.Network,
		profiles:   deps.Profiles,
		limiter:    deps.Limiter,
		log:        log,
		now:        now,
		knownUsers: make(map[string]models.ChatUser),
	}
}

// Initialize seeds default channels on first run, registers the local
// profiles for confidential delivery, hooks the network listeners and
// replays the retained public data set.
func (s *Service) Initialize(ctx context.Context) error {
	if err := maybeAddDefaultChannels(s.store); err != nil {
		return contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
	}
	for _, p := range s.profiles.Profiles() {
		s.net.RegisterIdentity(p.ProfileID, p.Keys.EncryptionPrivate, p.Keys.EncryptionPublic)
	}
	s.net.AddDataListener(s)
	s.net.AddMessageListener(s.onConfidentialPayload)
	for _, payload := range s.net.AllAuthenticatedPayloads() {
		s.storeAuthenticated(payload, false)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// RegisterProfile makes a profile created after startup reachable for
// confidential delivery.
func (s *Service) RegisterProfile(p identity.UserProfile) {
	s.net.RegisterIdentity(p.ProfileID, p.Keys.EncryptionPrivate, p.Keys.EncryptionPublic)
}

// PublishTradeChatMessage broadcasts a text message into a public trade
// channel. The message is not inserted locally here; it arrives through the
// data listener like any other peer's message.
func (s *Service) PublishTradeChatMessage(ctx context.Context, channelID, text string, quotation *models.Quotation) (models.ChatMessage, error) {
	return s.publishPublic(ctx, models.ChannelPublicTrade, channelID, text, nil, quotation)
}

// PublishTradeChatOffer broadcasts an offer message into a public trade channel.
func (s *Service) PublishTradeChatOffer(ctx context.Context, channelID string, offer models.TradeOffer, text string) (models.ChatMessage, error) {
	return s.publishPublic(ctx, models.ChannelPublicTrade, channelID, text, &offer, nil)
}

// PublishDiscussionChatMessage broadcasts a text message into a public
// discussion channel.
func (s *Service) PublishDiscussionChatMessage(ctx context.Context, channelID, text string, quotation *models.Quotation) (models.ChatMessage, error) {
	return s.publishPublic(ctx, models.ChannelPublicDiscussion, channelID, text, nil, quotation)
}

func (s *Service) publishPublic(ctx context.Context, kind models.ChannelKind, channelID, text string, offer *models.TradeOffer, quotation *models.Quotation) (models.ChatMessage, error) {
	profile, ok := s.profiles.SelectedProfile()
	if !ok {
		return models.ChatMessage{}, ErrNoProfile
	}
	if _, ok := s.store.Channel(kind, channelID); !ok {
		return models.ChatMessage{}, ErrChannelNotFound
	}
	msg := models.ChatMessage{
		Kind:      kind.MessageKind(),
		ChannelID: channelID,
		Author:    profile.ChatUser(),
		Text:      text,
		Offer:     offer,
		Quotation: quotation,
		Date:      s.now(),
	}
	if err := msg.Validate(); err != nil {
		return models.ChatMessage{}, err
	}
	if err := s.net.PublishAuthenticatedData(ctx, msg, profile.Keys.SigningPrivateKey); err != nil {
		return models.ChatMessage{}, contracts.WrapCategorizedError(contracts.ErrorCategoryNetwork, err)
	}
	return msg, nil
}

// PublishEditedTradeChatMessage replaces an own public trade message. The old
// payload is removed from the network first; only when that succeeds is the
// replacement published, keeping the original date and marked as edited.
func (s *Service) PublishEditedTradeChatMessage(ctx context.Context, original models.ChatMessage, newText string) (models.ChatMessage, error) {
	return s.publishEdited(ctx, original, newText)
}

// PublishEditedDiscussionChatMessage replaces an own public discussion message.
func (s *Service) PublishEditedDiscussionChatMessage(ctx context.Context, original models.ChatMessage, newText string) (models.ChatMessage, error) {
	return s.publishEdited(ctx, original, newText)
}

func (s *Service) publishEdited(ctx context.Context, original models.ChatMessage, newText string) (models.ChatMessage, error) {
	profile, err := s.authorProfile(original)
	if err != nil {
		return models.ChatMessage{}, err
	}
	if err := s.net.RemoveAuthenticatedData(ctx, original, profile.Keys.SigningPrivateKey); err != nil {
		return models.ChatMessage{}, contracts.WrapCategorizedError(contracts.ErrorCategoryNetwork, err)
	}
	edited := original
	edited.Text = newText
	edited.WasEdited = true
	if err := edited.Validate(); err != nil {
		return models.ChatMessage{}, err
	}
	if err := s.net.PublishAuthenticatedData(ctx, edited, profile.Keys.SigningPrivateKey); err != nil {
		return models.ChatMessage{}, contracts.WrapCategorizedError(contracts.ErrorCategoryNetwork, err)
	}
	return edited, nil
}

// DeleteTradeChatMessage removes an own public trade message from the network.
// The local copy goes away when the removal echoes back.
func (s *Service) DeleteTradeChatMessage(ctx context.Context, msg models.ChatMessage) error {
	return s.deletePublic(ctx, msg)
}

// DeleteDiscussionChatMessage removes an own public discussion message.
func (s *Service) DeleteDiscussionChatMessage(ctx context.Context, msg models.ChatMessage) error {
	return s.deletePublic(ctx, msg)
}

func (s *Service) deletePublic(ctx context.Context, msg models.ChatMessage) error {
	profile, err := s.authorProfile(msg)
	if err != nil {
		return err
	}
	if err := s.net.RemoveAuthenticatedData(ctx, msg, profile.Keys.SigningPrivateKey); err != nil {
		return contracts.WrapCategorizedError(contracts.ErrorCategoryNetwork, err)
	}
	return nil
}

func (s *Service) authorProfile(msg models.ChatMessage) (identity.UserProfile, error) {
	profile, ok := s.profiles.FindProfile(msg.Author.ID)
	if !ok {
		return identity.UserProfile{}, ErrNotAuthorized
	}
	return profile, nil
}

// FindPublicTradeChannel looks up a public trade channel by id.
func (s *Service) FindPublicTradeChannel(channelID string) (*models.Channel, bool) {
	return s.store.Channel(models.ChannelPublicTrade, channelID)
}

// FindPublicDiscussionChannel looks up a public discussion channel by id.
func (s *Service) FindPublicDiscussionChannel(channelID string) (*models.Channel, bool) {
	return s.store.Channel(models.ChannelPublicDiscussion, channelID)
}

// Channels lists all channels of the kind, ordered by id.
func (s *Service) Channels(kind models.ChannelKind) []*models.Channel {
	return s.store.Channels(kind)
}

// GetOrCreatePrivateTradeChannel returns the 1:1 trade channel with the peer,
// creating it when absent. Both ends derive the same channel id.
func (s *Service) GetOrCreatePrivateTradeChannel(peer models.ChatUser) (*models.Channel, error) {
	profile, ok := s.profiles.SelectedProfile()
	if !ok {
		return nil, ErrNoProfile
	}
	return s.getOrCreatePrivate(models.ChannelPrivateTrade, peer, profile.ProfileID)
}

// GetOrCreatePrivateDiscussionChannel returns the 1:1 discussion channel with
// the peer, creating it when absent.
func (s *Service) GetOrCreatePrivateDiscussionChannel(peer models.ChatUser) (*models.Channel, error) {
	profile, ok := s.profiles.SelectedProfile()
	if !ok {
		return nil, ErrNoProfile
	}
	return s.getOrCreatePrivate(models.ChannelPrivateDiscussion, peer, profile.ProfileID)
}

// CreatePrivateChannelByID resolves the peer from the set of users seen on the
// network. Unresolved peers yield ErrUserUnresolved and no channel.
func (s *Service) CreatePrivateChannelByID(kind models.ChannelKind, peerProfileID string) (*models.Channel, error) {
	peer, ok := s.KnownUser(peerProfileID)
	if !ok {
		return nil, ErrUserUnresolved
	}
	profile, ok := s.profiles.SelectedProfile()
	if !ok {
		return nil, ErrNoProfile
	}
	return s.getOrCreatePrivate(kind, peer, profile.ProfileID)
}

func (s *Service) getOrCreatePrivate(kind models.ChannelKind, peer models.ChatUser, myProfileID string) (*models.Channel, error) {
	id := models.PrivateChannelID(peer.ID, myProfileID)
	if ch, ok := s.store.Channel(kind, id); ok {
		return ch, nil
	}
	ch, err := models.NewPrivateChannel(kind, peer, myProfileID)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpsertChannel(ch); err != nil {
		return nil, contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
	}
	created, _ := s.store.Channel(kind, id)
	return created, nil
}

// SendPrivateTradeChatMessage sends a direct trade message. The local copy is
// inserted before the confidential send; the receiver inserts on delivery.
func (s *Service) SendPrivateTradeChatMessage(ctx context.Context, peer models.ChatUser, text string) (models.ChatMessage, error) {
	return s.sendPrivate(ctx, models.ChannelPrivateTrade, peer, text)
}

// SendPrivateDiscussionChatMessage sends a direct discussion message.
func (s *Service) SendPrivateDiscussionChatMessage(ctx context.Context, peer models.ChatUser, text string) (models.ChatMessage, error) {
	return s.sendPrivate(ctx, models.ChannelPrivateDiscussion, peer, text)
}

func (s *Service) sendPrivate(ctx context.Context, kind models.ChannelKind, peer models.ChatUser, text string) (models.ChatMessage, error) {
	profile, ok := s.profiles.SelectedProfile()
	if !ok {
		return models.ChatMessage{}, ErrNoProfile
	}
	channel, err := s.getOrCreatePrivate(kind, peer, profile.ProfileID)
	if err != nil {
		return models.ChatMessage{}, err
	}
	msg := models.ChatMessage{
		Kind:              kind.MessageKind(),
		ChannelID:         channel.ID,
		Author:            profile.ChatUser(),
		Text:              text,
		Date:              s.now(),
		ReceiverProfileID: peer.ID,
	}
	if err := msg.Validate(); err != nil {
		return models.ChatMessage{}, err
	}
	if _, err := s.store.AddMessage(kind, channel.ID, msg); err != nil {
		return models.ChatMessage{}, contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
	}
	if err := s.net.SendConfidential(ctx, msg, peer.NetworkID, profile.Keys.SigningPrivateKey); err != nil {
		return msg, contracts.WrapCategorizedError(contracts.ErrorCategoryNetwork, err)
	}
	return msg, nil
}

// AddPublicDiscussionChannel creates a moderated discussion channel. The
// admin must present a bonded-role proof; without one the channel is refused.
func (s *Service) AddPublicDiscussionChannel(name, description, adminProfileID string, proof models.BondedRoleProof) (*models.Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrChannelNameRequired
	}
	profile, ok := s.profiles.FindProfile(adminProfileID)
	if !ok {
		return nil, ErrUserUnresolved
	}
	if !s.profiles.VerifyBondedRole(proof, adminProfileID) {
		return nil, ErrEntitlementRequired
	}
	admin := models.NewChatUser(profile.NickName, profile.NetworkID(), models.Entitlement{
		Type:  models.EntitlementChannelAdmin,
		Proof: proof,
	})
	id := "discussion/" + uuid.NewString()
	ch := models.NewPublicDiscussionChannel(id, name, strings.TrimSpace(description), admin)
	if err := s.store.UpsertChannel(ch); err != nil {
		return nil, contracts.WrapCategorizedError(contracts.ErrorCategoryStorage, err)
	}
	created, _ := s.store.Channel(models.ChannelPublicDiscussion, id)
	return created, nil
}

// ShowPublicTradeChannel adds the market's channel to the visible set.
func (s *Service) ShowPublicTradeChannel(marketCode string) error {
	return s.store.SetChannelVisible(models.PublicTradeChannelID(marketCode), true)
}

// HidePublicTradeChannel removes the market's channel from the visible set.
// The channel and its messages stay in the store.
func (s *Service) HidePublicTradeChannel(marketCode string) error {
	return s.store.SetChannelVisible(models.PublicTradeChannelID(marketCode), false)
}

// SelectTradeChannel switches the current trade channel. Selecting a private
// channel purges its expired messages first.
func (s *Service) SelectTradeChannel(channelID string) error {
	s.purgeIfPrivate(models.ChannelPrivateTrade, channelID)
	return s.store.SelectTradeChannel(channelID)
}

// SelectDiscussionChannel switches the current discussion channel.
func (s *Service) SelectDiscussionChannel(channelID string) error {
	s.purgeIfPrivate(models.ChannelPrivateDiscussion, channelID)
	return s.store.SelectDiscussionChannel(channelID)
}

func (s *Service) purgeIfPrivate(kind models.ChannelKind, channelID string) {
	if _, ok := s.store.Channel(kind, channelID); !ok {
		return
	}
	removed, err := s.store.PurgeExpired(kind, channelID, s.now())
	if err != nil {
		s.log.Error("purging expired messages failed", "channel_id", channelID, "error", err)
		return
	}
	if removed > 0 {
		s.log.Info("expired private messages purged", "channel_id", channelID, "count", removed)
	}
}

// IgnoreUser suppresses all future inbound messages from the user.
func (s *Service) IgnoreUser(profileID string) error {
	return s.store.Ignore(profileID)
}

func (s *Service) UndoIgnoreUser(profileID string) error {
	return s.store.UndoIgnore(profileID)
}

func (s *Service) IsIgnored(profileID string) bool {
	return s.store.IsIgnored(profileID)
}

// ReportUser hands a report to the moderation log. Chain of custody beyond
// the local log is handled by the operator.
func (s *Service) ReportUser(profileID, reason string) error {
	reporter := ""
	if p, ok := s.profiles.SelectedProfile(); ok {
		reporter = p.ProfileID
	}
	s.log.Warn("user reported", "reported_id", profileID, "reporter_id", reporter, "reason", reason)
	return nil
}

// SetNotificationSetting updates the per-channel notification preference.
func (s *Service) SetNotificationSetting(kind models.ChannelKind, channelID string, setting models.NotificationSetting) error {
	return s.store.SetNotificationSetting(kind, channelID, setting)
}

// CustomTags exposes the highlight vocabulary for client-side tagging.
func (s *Service) CustomTags() []string {
	return s.store.CustomTags()
}

// KnownUser returns a user previously seen as author on the network.
func (s *Service) KnownUser(profileID string) (models.ChatUser, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.knownUsers[profileID]
	return u, ok
}

func (s *Service) rememberUser(u models.ChatUser) {
	if u.ID == "" {
		return
	}
	s.mu.Lock()
	s.knownUsers[u.ID] = u
	s.mu.Unlock()
}

// OnAuthenticatedDataAdded feeds a broadcast payload into the matching public
// channel. Signature verification already happened at the transport; here the
// ignore list and the per-author rate limit apply. Own messages pass through,
// that is how locally published messages reach the local channel.
func (s *Service) OnAuthenticatedDataAdded(payload network.AuthenticatedPayload) {
	s.storeAuthenticated(payload, true)
}

// storeAuthenticated inserts a public payload. The throttle applies to live
// inbound traffic only; the startup replay of retained data bypasses it, the
// local store must mirror whatever the network still retains.
func (s *Service) storeAuthenticated(payload network.AuthenticatedPayload, throttle bool) {
	msg := payload.Message
	if msg.Kind.Private() || msg.Validate() != nil {
		return
	}
	s.rememberUser(msg.Author)
	if s.store.IsIgnored(msg.Author.ID) {
		return
	}
	if throttle && !s.profiles.IsMyMessage(msg) && !s.limiter.Allow(msg.Author.ID, s.now()) {
		s.log.Debug("inbound message rate limited", "author_id", msg.Author.ID)
		return
	}
	kind := models.ChannelKind(msg.Kind)
	if _, ok := s.store.Channel(kind, msg.ChannelID); !ok {
		s.log.Debug("message for unknown channel dropped", "channel_id", msg.ChannelID)
		return
	}
	if _, err := s.store.AddMessage(kind, msg.ChannelID, msg); err != nil {
		s.log.Error("storing inbound message failed", "channel_id", msg.ChannelID, "error", err)
	}
}

// OnAuthenticatedDataRemoved mirrors an authenticated removal into the local
// channel; the transport only delivers removals signed by the author.
func (s *Service) OnAuthenticatedDataRemoved(payload network.AuthenticatedPayload) {
	msg := payload.Message
	if msg.Kind.Private() {
		return
	}
	kind := models.ChannelKind(msg.Kind)
	if _, ok := s.store.Channel(kind, msg.ChannelID); !ok {
		return
	}
	if _, err := s.store.RemoveMessage(kind, msg.ChannelID, msg.ID()); err != nil {
		s.log.Error("removing message failed", "channel_id", msg.ChannelID, "error", err)
	}
}

// onConfidentialPayload handles a decrypted direct message: find or create
// the 1:1 channel keyed by the unordered profile pair and insert. The send
// side already holds its local copy, so own echoes are skipped.
func (s *Service) onConfidentialPayload(payload network.AuthenticatedPayload) {
	msg := payload.Message
	if !msg.Kind.Private() || msg.Validate() != nil {
		return
	}
	if s.profiles.IsMyMessage(msg) {
		return
	}
	s.rememberUser(msg.Author)
	if s.store.IsIgnored(msg.Author.ID) {
		return
	}
	if !s.limiter.Allow(msg.Author.ID, s.now()) {
		s.log.Debug("inbound direct message rate limited", "author_id", msg.Author.ID)
		return
	}
	if _, ok := s.profiles.FindProfile(msg.ReceiverProfileID); !ok {
		return
	}
	kind := models.ChannelKind(msg.Kind)
	channel, err := s.getOrCreatePrivate(kind, msg.Author, msg.ReceiverProfileID)
	if err != nil {
		s.log.Error("creating private channel failed", "author_id", msg.Author.ID, "error", err)
		return
	}
	if _, err := s.store.AddMessage(kind, channel.ID, msg); err != nil {
		s.log.Error("storing direct message failed", "channel_id", channel.ID, "error", err)
	}
}
