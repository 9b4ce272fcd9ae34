package identity

import (
	"errors"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"time"

	"bisq-social/go-backend/internal/securestore"
	"bisq-social/go-backend/pkg/models"
)

var (
	ErrNickNameRequired = errors.New("nick name is required")
	ErrProfileNotFound  = errors.New("profile not found")
)

// ProfileService owns the local user profiles and which one is selected.
type ProfileService struct {
	mu         sync.RWMutex
	profiles   map[string]UserProfile
	selectedID string
	path       string
	secret     string
	log        *slog.Logger
	now        func() time.Time
}

func NewProfileService(log *slog.Logger) *ProfileService {
	if log == nil {
		log = slog.Default()
	}
	return &ProfileService{
		profiles: make(map[string]UserProfile),
		log:      log,
		now:      time.Now,
	}
}

// Configure sets the persistence location; empty path keeps the service
// memory-only (tests).
func (s *ProfileService) Configure(path, secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = strings.TrimSpace(path)
	s.secret = secret
}

type persistedProfilesState struct {
	Version    int           `json:"version"`
	Profiles   []UserProfile `json:"profiles"`
	SelectedID string        `json:"selected_id"`
}

func (s *ProfileService) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return nil
	}
	var state persistedProfilesState
	if err := securestore.ReadJSON(s.path, s.secret, &state); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if state.Version != 1 {
		return errors.New("profile persistence payload is invalid")
	}
	for _, p := range state.Profiles {
		s.profiles[p.ProfileID] = p
	}
	s.selectedID = state.SelectedID
	return nil
}

func (s *ProfileService) persistLocked() error {
	if s.path == "" {
		return nil
	}
	state := persistedProfilesState{Version: 1, SelectedID: s.selectedID}
	for _, p := range s.profiles {
		state.Profiles = append(state.Profiles, p)
	}
	return securestore.WriteJSON(s.path, s.secret, state)
}

// CreateProfile derives a key ring from a fresh mnemonic and stores the
// profile. The first profile becomes the selected one.
func (s *ProfileService) CreateProfile(nickName, address string) (UserProfile, string, error) {
	nickName = strings.TrimSpace(nickName)
	if nickName == "" {
		return UserProfile{}, "", ErrNickNameRequired
	}
	mnemonic, err := NewMnemonic()
	if err != nil {
		return UserProfile{}, "", err
	}
	profile, err := s.ImportProfile(nickName, address, mnemonic)
	if err != nil {
		return UserProfile{}, "", err
	}
	return profile, mnemonic, nil
}

func (s *ProfileService) ImportProfile(nickName, address, mnemonic string) (UserProfile, error) {
	keys, err := DeriveKeyRing(mnemonic)
	if err != nil {
		return UserProfile{}, err
	}
	profile := UserProfile{
		ProfileID: models.UserID(keys.SigningPublicKey),
		NickName:  strings.TrimSpace(nickName),
		Address:   strings.TrimSpace(address),
		Keys:      keys,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.ProfileID] = profile
	if s.selectedID == "" {
		s.selectedID = profile.ProfileID
	}
	if err := s.persistLocked(); err != nil {
		return UserProfile{}, err
	}
	return profile, nil
}

func (s *ProfileService) FindProfile(profileID string) (UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[profileID]
	return p, ok
}

func (s *ProfileService) SelectedProfile() (UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[s.selectedID]
	return p, ok
}

func (s *ProfileService) SelectProfile(profileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[profileID]; !ok {
		return ErrProfileNotFound
	}
	s.selectedID = profileID
	return s.persistLocked()
}

func (s *ProfileService) Profiles() []UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]UserProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	return out
}

// IsMyMessage reports whether the message author is one of the local profiles.
func (s *ProfileService) IsMyMessage(msg models.ChatMessage) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.profiles[msg.Author.ID]
	return ok
}

// GrantEntitlement attaches a bonded-role proof to a profile; the proof itself
// is verified externally.
func (s *ProfileService) GrantEntitlement(profileID string, entitlement models.Entitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[profileID]
	if !ok {
		return ErrProfileNotFound
	}
	p.Entitlements = append(p.Entitlements, entitlement)
	s.profiles[profileID] = p
	return s.persistLocked()
}

// VerifyBondedRole is the hook for the external bond verifier. The local check
// only requires a structurally complete proof; chain lookup lives outside.
func (s *ProfileService) VerifyBondedRole(proof models.BondedRoleProof, userID string) bool {
	if strings.TrimSpace(proof.TxID) == "" || strings.TrimSpace(proof.Signature) == "" || userID == "" {
		return false
	}
	s.log.Info("bonded role accepted pending external verification",
		"user_id", userID, "tx_id", proof.TxID)
	return true
}
