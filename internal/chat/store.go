package chat

import (
	"errors"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"bisq-social/go-backend/internal/securestore"
	"bisq-social/go-backend/pkg/models"
)

var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrBadStorePayload = errors.New("chat persistence payload is invalid")
)

// State is the persisted snapshot of the whole chat tree. A persister always
// receives the post-mutation state; on persist failure the in-memory mutation
// is rolled back.
type State struct {
	Version                     int               `json:"version"`
	PublicTradeChannels         []*models.Channel `json:"public_trade_channels"`
	PublicDiscussionChannels    []*models.Channel `json:"public_discussion_channels"`
	PrivateTradeChannels        []*models.Channel `json:"private_trade_channels"`
	PrivateDiscussionChannels   []*models.Channel `json:"private_discussion_channels"`
	SelectedTradeChannelID      string            `json:"selected_trade_channel_id"`
	SelectedDiscussionChannelID string            `json:"selected_discussion_channel_id"`
	IgnoredUserIDs              []string          `json:"ignored_user_ids"`
	CustomTags                  []string          `json:"custom_tags"`
}

// Store is the root aggregate for channels, selection and ignore state. All
// reads hand out clones; callers never touch shared channel memory.
type Store struct {
	mu                   sync.RWMutex
	publicTrade          map[string]*models.Channel
	publicDiscussion     map[string]*models.Channel
	privateTrade         map[string]*models.Channel
	privateDiscussion    map[string]*models.Channel
	selectedTradeID      string
	selectedDiscussionID string
	ignored              map[string]struct{}
	customTags           []string
	persist              func(State) error
	observers            []func()
	log                  *slog.Logger
}

func NewStore(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		publicTrade:       make(map[string]*models.Channel),
		publicDiscussion:  make(map[string]*models.Channel),
		privateTrade:      make(map[string]*models.Channel),
		privateDiscussion: make(map[string]*models.Channel),
		ignored:           make(map[string]struct{}),
		log:               log,
	}
}

// Configure installs the encrypted-file persister. Empty path keeps the store
// memory-only.
func (s *Store) Configure(path, secret string) {
	path = strings.TrimSpace(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if path == "" {
		s.persist = nil
		return
	}
	s.persist = func(state State) error {
		return securestore.WriteJSON(path, secret, state)
	}
}

// SetPersister overrides the persistence sink, mainly for tests asserting on
// snapshots.
func (s *Store) SetPersister(fn func(State) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persist = fn
}

// AddObserver registers a callback fired after every committed mutation.
func (s *Store) AddObserver(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// LoadFrom restores a previously persisted snapshot from disk.
func (s *Store) LoadFrom(path, secret string) error {
	var state State
	if err := securestore.ReadJSON(path, secret, &state); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if state.Version != 1 {
		return ErrBadStorePayload
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	restore := func(dst map[string]*models.Channel, channels []*models.Channel) {
		for _, ch := range channels {
			if ch == nil || ch.ID == "" {
				continue
			}
			dst[ch.ID] = ch.Clone()
		}
	}
	restore(s.publicTrade, state.PublicTradeChannels)
	restore(s.publicDiscussion, state.PublicDiscussionChannels)
	restore(s.privateTrade, state.PrivateTradeChannels)
	restore(s.privateDiscussion, state.PrivateDiscussionChannels)
	s.selectedTradeID = state.SelectedTradeChannelID
	s.selectedDiscussionID = state.SelectedDiscussionChannelID
	for _, id := range state.IgnoredUserIDs {
		s.ignored[id] = struct{}{}
	}
	s.customTags = append([]string(nil), state.CustomTags...)
	return nil
}

func (s *Store) channelsLocked(kind models.ChannelKind) map[string]*models.Channel {
	switch kind {
	case models.ChannelPublicTrade:
		return s.publicTrade
	case models.ChannelPublicDiscussion:
		return s.publicDiscussion
	case models.ChannelPrivateTrade:
		return s.privateTrade
	default:
		return s.privateDiscussion
	}
}

func (s *Store) snapshotLocked() State {
	collect := func(m map[string]*models.Channel) []*models.Channel {
		out := make([]*models.Channel, 0, len(m))
		for _, ch := range m {
			out = append(out, ch.Clone())
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return out
	}
	ignored := make([]string, 0, len(s.ignored))
	for id := range s.ignored {
		ignored = append(ignored, id)
	}
	sort.Strings(ignored)
	return State{
		Version:                     1,
		PublicTradeChannels:         collect(s.publicTrade),
		PublicDiscussionChannels:    collect(s.publicDiscussion),
		PrivateTradeChannels:        collect(s.privateTrade),
		PrivateDiscussionChannels:   collect(s.privateDiscussion),
		SelectedTradeChannelID:      s.selectedTradeID,
		SelectedDiscussionChannelID: s.selectedDiscussionID,
		IgnoredUserIDs:              ignored,
		CustomTags:                  append([]string(nil), s.customTags...),
	}
}

func (s *Store) persistLocked() error {
	if s.persist == nil {
		return nil
	}
	return s.persist(s.snapshotLocked())
}

func (s *Store) notify() {
	s.mu.RLock()
	observers := append([]func(){}, s.observers...)
	s.mu.RUnlock()
	for _, fn := range observers {
		fn()
	}
}

// Channel returns a clone of the channel, or false when it does not exist.
func (s *Store) Channel(kind models.ChannelKind, id string) (*models.Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channelsLocked(kind)[id]
	if !ok {
		return nil, false
	}
	return ch.Clone(), true
}

// Channels returns clones of all channels of the kind, ordered by id.
func (s *Store) Channels(kind models.ChannelKind) []*models.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.channelsLocked(kind)
	out := make([]*models.Channel, 0, len(m))
	for _, ch := range m {
		out = append(out, ch.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HasDiscussionChannels guards default-channel bootstrap: defaults are only
// seeded into an empty public discussion set.
func (s *Store) HasDiscussionChannels() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.publicDiscussion) > 0
}

// UpsertChannel stores a clone of the channel and persists. An existing
// channel with the same id keeps its messages and notification setting.
func (s *Store) UpsertChannel(ch *models.Channel) error {
	if ch == nil || ch.ID == "" {
		return ErrChannelNotFound
	}
	err := func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		chans := s.channelsLocked(ch.Kind)
		previous, existed := chans[ch.ID]
		clone := ch.Clone()
		if existed {
			clone.Messages = append([]models.ChatMessage(nil), previous.Messages...)
			clone.Notification = previous.Notification
		}
		chans[ch.ID] = clone
		if err := s.persistLocked(); err != nil {
			if existed {
				chans[ch.ID] = previous
			} else {
				delete(chans, ch.ID)
			}
			return err
		}
		return nil
	}()
	if err != nil {
		return err
	}
	s.notify()
	return nil
}

// mutateChannel clones the target channel, applies fn to the clone, persists
// and only then commits the clone. Readers never observe partial mutations.
func (s *Store) mutateChannel(kind models.ChannelKind, id string, fn func(*models.Channel) error) error {
	err := func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		chans := s.channelsLocked(kind)
		existing, ok := chans[id]
		if !ok {
			return ErrChannelNotFound
		}
		clone := existing.Clone()
		if err := fn(clone); err != nil {
			return err
		}
		chans[id] = clone
		if err := s.persistLocked(); err != nil {
			chans[id] = existing
			return err
		}
		return nil
	}()
	if err != nil {
		return err
	}
	s.notify()
	return nil
}

var errNoChange = errors.New("no change")

// AddMessage inserts a message into the channel; duplicates (by content id)
// report false without persisting.
func (s *Store) AddMessage(kind models.ChannelKind, channelID string, msg models.ChatMessage) (bool, error) {
	err := s.mutateChannel(kind, channelID, func(ch *models.Channel) error {
		if !ch.AddMessage(msg) {
			return errNoChange
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RemoveMessage drops the message with the given id; absence is not an error.
func (s *Store) RemoveMessage(kind models.ChannelKind, channelID, messageID string) (bool, error) {
	err := s.mutateChannel(kind, channelID, func(ch *models.Channel) error {
		if !ch.RemoveMessage(messageID) {
			return errNoChange
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PurgeExpired removes expired private messages from the channel. Persistence
// is skipped entirely when nothing was removed.
func (s *Store) PurgeExpired(kind models.ChannelKind, channelID string, now time.Time) (int, error) {
	removed := 0
	err := s.mutateChannel(kind, channelID, func(ch *models.Channel) error {
		removed = ch.RemoveExpired(now)
		if removed == 0 {
			return errNoChange
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// SetChannelVisible toggles a public trade channel in or out of the visible set.
func (s *Store) SetChannelVisible(channelID string, visible bool) error {
	return s.mutateChannel(models.ChannelPublicTrade, channelID, func(ch *models.Channel) error {
		if ch.Visible == visible {
			return errNoChange
		}
		ch.Visible = visible
		return nil
	})
}

// SetNotificationSetting updates the per-channel notification preference.
func (s *Store) SetNotificationSetting(kind models.ChannelKind, channelID string, setting models.NotificationSetting) error {
	return s.mutateChannel(kind, channelID, func(ch *models.Channel) error {
		ch.Notification = models.NormalizeNotificationSetting(setting)
		return nil
	})
}

func (s *Store) findAnyLocked(kinds []models.ChannelKind, id string) (models.ChannelKind, bool) {
	for _, kind := range kinds {
		if _, ok := s.channelsLocked(kind)[id]; ok {
			return kind, true
		}
	}
	return "", false
}

// SelectTradeChannel marks a public or private trade channel as the current one.
func (s *Store) SelectTradeChannel(id string) error {
	return s.selectChannel(id, []models.ChannelKind{models.ChannelPublicTrade, models.ChannelPrivateTrade}, &s.selectedTradeID)
}

// SelectDiscussionChannel marks a public or private discussion channel as the
// current one.
func (s *Store) SelectDiscussionChannel(id string) error {
	return s.selectChannel(id, []models.ChannelKind{models.ChannelPublicDiscussion, models.ChannelPrivateDiscussion}, &s.selectedDiscussionID)
}

func (s *Store) selectChannel(id string, kinds []models.ChannelKind, slot *string) error {
	err := func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.findAnyLocked(kinds, id); !ok {
			return ErrChannelNotFound
		}
		previous := *slot
		*slot = id
		if err := s.persistLocked(); err != nil {
			*slot = previous
			return err
		}
		return nil
	}()
	if err != nil {
		return err
	}
	s.notify()
	return nil
}

func (s *Store) SelectedTradeChannelID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedTradeID
}

func (s *Store) SelectedDiscussionChannelID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedDiscussionID
}

// Ignore adds the user to the ignore set; inbound messages from ignored
// authors are dropped before insertion.
func (s *Store) Ignore(userID string) error {
	return s.mutateIgnored(func() bool {
		if _, ok := s.ignored[userID]; ok {
			return false
		}
		s.ignored[userID] = struct{}{}
		return true
	}, func() { delete(s.ignored, userID) })
}

func (s *Store) UndoIgnore(userID string) error {
	return s.mutateIgnored(func() bool {
		if _, ok := s.ignored[userID]; !ok {
			return false
		}
		delete(s.ignored, userID)
		return true
	}, func() { s.ignored[userID] = struct{}{} })
}

func (s *Store) mutateIgnored(apply func() bool, rollback func()) error {
	err := func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !apply() {
			return errNoChange
		}
		if err := s.persistLocked(); err != nil {
			rollback()
			return err
		}
		return nil
	}()
	if errors.Is(err, errNoChange) {
		return nil
	}
	if err != nil {
		return err
	}
	s.notify()
	return nil
}

func (s *Store) IsIgnored(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ignored[userID]
	return ok
}

func (s *Store) IgnoredUserIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.ignored))
	for id := range s.ignored {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Store) CustomTags() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.customTags...)
}

func (s *Store) SetCustomTags(tags []string) error {
	err := func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		previous := s.customTags
		s.customTags = append([]string(nil), tags...)
		if err := s.persistLocked(); err != nil {
			s.customTags = previous
			return err
		}
		return nil
	}()
	if err != nil {
		return err
	}
	s.notify()
	return nil
}
