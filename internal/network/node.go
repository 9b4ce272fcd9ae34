package network

import (
	"context"
	"crypto/ed25519"
	"errors"
	"sync"
	"time"

	"bisq-social/go-backend/pkg/models"
)

const (
	TransportMock   = "mock"
	TransportGoWaku = "go-waku"

	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
)

var (
	ErrNotConnected    = errors.New("network node is not connected")
	ErrPayloadNotFound = errors.New("authenticated payload not found")
)

type Config struct {
	Transport           string        `yaml:"transport"`
	Port                int           `yaml:"port"`
	AdvertiseAddress    string        `yaml:"advertiseAddress"`
	EnableRelay         bool          `yaml:"enableRelay"`
	EnableStore         bool          `yaml:"enableStore"`
	BootstrapNodes      []string      `yaml:"bootstrapNodes"`
	MinPeers            int           `yaml:"minPeers"`
	StoreQueryFanout    int           `yaml:"storeQueryFanout"`
	ReconnectInterval   time.Duration `yaml:"reconnectInterval"`
	ReconnectBackoffMax time.Duration `yaml:"reconnectBackoffMax"`
}

func DefaultConfig() Config {
	return Config{
		Transport:           TransportMock,
		Port:                61000,
		EnableRelay:         true,
		EnableStore:         true,
		MinPeers:            2,
		StoreQueryFanout:    2,
		ReconnectInterval:   1 * time.Second,
		ReconnectBackoffMax: 30 * time.Second,
	}
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Transport == "" {
		cfg.Transport = def.Transport
	}
	if cfg.Port <= 0 {
		cfg.Port = def.Port
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = def.ReconnectInterval
	}
	if cfg.ReconnectBackoffMax < cfg.ReconnectInterval {
		cfg.ReconnectBackoffMax = def.ReconnectBackoffMax
	}
	if cfg.MinPeers < 0 {
		cfg.MinPeers = 0
	}
	if cfg.StoreQueryFanout <= 0 {
		cfg.StoreQueryFanout = def.StoreQueryFanout
	}
	return cfg
}

type Status struct {
	State     string
	PeerCount int
	LastSync  time.Time
}

// DataListener observes the distributed authenticated-data store.
type DataListener interface {
	OnAuthenticatedDataAdded(payload AuthenticatedPayload)
	OnAuthenticatedDataRemoved(payload AuthenticatedPayload)
}

type localIdentity struct {
	profileID string
	encPriv   []byte
	encPub    []byte
}

// Node is the transport endpoint: authenticated broadcast of public chat
// payloads, confidential direct send, and inbound listener dispatch. The mock
// transport runs over an in-process bus; go-waku is compiled in behind the
// real_waku build tag.
type Node struct {
	mu            sync.RWMutex
	cfg           Config
	status        Status
	bus           *broadcastBus
	gw            wakuBackend
	dataListeners []DataListener
	msgHandlers   []func(payload AuthenticatedPayload)
	identities    map[string]localIdentity

	stateTransitions int
}

type wakuBackend interface {
	Start(ctx context.Context, cfg Config) error
	Stop()
	PeerCount() int
	ListenAddresses() []string
	PublishData(ctx context.Context, op string, payload AuthenticatedPayload) error
	PublishConfidential(ctx context.Context, recipientID string, env ConfidentialEnvelope) error
	FetchDataSince(ctx context.Context, since time.Time, limit int) ([]AuthenticatedPayload, error)
	Subscribe(onData func(op string, payload AuthenticatedPayload), onDirect func(recipientID string, env ConfidentialEnvelope)) error
}

func NewNode(cfg Config) *Node {
	return newNodeWithBus(cfg, globalBus)
}

func newNodeWithBus(cfg Config, bus *broadcastBus) *Node {
	return &Node{
		cfg:        normalizeConfig(cfg),
		status:     Status{State: StateDisconnected},
		bus:        bus,
		identities: make(map[string]localIdentity),
	}
}

func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	n.transitionStateLocked(StateConnecting)
	n.mu.Unlock()

	if n.cfg.Transport == TransportGoWaku {
		backend := newWakuBackend()
		if backend == nil {
			n.setDisconnected()
			return errors.New("go-waku backend is not available in this build")
		}
		if err := backend.Start(ctx, n.cfg); err != nil {
			n.setDisconnected()
			return err
		}
		if err := backend.Subscribe(n.onBackendData, n.onBackendDirect); err != nil {
			backend.Stop()
			n.setDisconnected()
			return err
		}
		n.mu.Lock()
		n.gw = backend
		n.transitionStateLocked(StateConnected)
		n.status.PeerCount = backend.PeerCount()
		n.status.LastSync = time.Now()
		n.mu.Unlock()
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	n.mu.Lock()
	n.transitionStateLocked(StateConnected)
	n.status.PeerCount = len(n.cfg.BootstrapNodes)
	n.status.LastSync = time.Now()
	n.mu.Unlock()
	n.bus.attach(n)
	return nil
}

func (n *Node) Stop(_ context.Context) error {
	n.bus.detach(n)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.gw != nil {
		n.gw.Stop()
		n.gw = nil
	}
	n.transitionStateLocked(StateDisconnected)
	n.status.PeerCount = 0
	n.status.LastSync = time.Now()
	return nil
}

func (n *Node) Status() Status {
	n.mu.RLock()
	defer n.mu.RUnlock()
	s := n.status
	if n.gw != nil {
		s.PeerCount = n.gw.PeerCount()
	}
	return s
}

func (n *Node) NetworkMetrics() map[string]int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return map[string]int{"network_state_transitions": n.stateTransitions}
}

// RegisterIdentity makes the node receive and decrypt direct messages
// addressed to one of the local profiles.
func (n *Node) RegisterIdentity(profileID string, encPriv, encPub []byte) {
	n.mu.Lock()
	n.identities[profileID] = localIdentity{
		profileID: profileID,
		encPriv:   append([]byte(nil), encPriv...),
		encPub:    append([]byte(nil), encPub...),
	}
	n.mu.Unlock()
}

func (n *Node) AddDataListener(l DataListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dataListeners = append(n.dataListeners, l)
}

func (n *Node) AddMessageListener(h func(payload AuthenticatedPayload)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgHandlers = append(n.msgHandlers, h)
}

// PublishAuthenticatedData broadcasts a public chat message bound to the
// sender's identity key. The local channel is not touched here; the payload
// comes back through the data listener like everyone else's.
func (n *Node) PublishAuthenticatedData(ctx context.Context, msg models.ChatMessage, priv ed25519.PrivateKey) error {
	if !n.connected() {
		return ErrNotConnected
	}
	payload, err := SealAuthenticated(msg, priv)
	if err != nil {
		return err
	}
	if gw := n.backend(); gw != nil {
		return gw.PublishData(ctx, "add", payload)
	}
	n.bus.add(payload)
	return nil
}

// RemoveAuthenticatedData issues an authenticated removal; the store rejects
// removals not signed by the original author's key.
func (n *Node) RemoveAuthenticatedData(ctx context.Context, msg models.ChatMessage, priv ed25519.PrivateKey) error {
	if !n.connected() {
		return ErrNotConnected
	}
	payload, err := SealAuthenticated(msg, priv)
	if err != nil {
		return err
	}
	if gw := n.backend(); gw != nil {
		return gw.PublishData(ctx, "remove", payload)
	}
	return n.bus.remove(payload, payload.PubKey)
}

// SendConfidential seals a signed payload to the receiver's encryption key
// and delivers it directly, never through the broadcast store.
func (n *Node) SendConfidential(ctx context.Context, msg models.ChatMessage, receiver models.NetworkID, priv ed25519.PrivateKey) error {
	if !n.connected() {
		return ErrNotConnected
	}
	payload, err := SealAuthenticated(msg, priv)
	if err != nil {
		return err
	}
	env, err := SealConfidential(payload, receiver)
	if err != nil {
		return err
	}
	recipientID := models.UserID(receiver.PubKey)
	if gw := n.backend(); gw != nil {
		return gw.PublishConfidential(ctx, recipientID, env)
	}
	n.bus.sendDirect(recipientID, env)
	return nil
}

// AllAuthenticatedPayloads returns the retained distributed store content,
// used to replay existing public messages at service start.
func (n *Node) AllAuthenticatedPayloads() []AuthenticatedPayload {
	if gw := n.backend(); gw != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		payloads, err := gw.FetchDataSince(ctx, time.Time{}, 1000)
		if err != nil {
			return nil
		}
		return payloads
	}
	return n.bus.all()
}

func (n *Node) connected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.status.State == StateConnected
}

func (n *Node) backend() wakuBackend {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.gw
}

func (n *Node) setDisconnected() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transitionStateLocked(StateDisconnected)
	n.status.PeerCount = 0
	n.status.LastSync = time.Now()
}

func (n *Node) transitionStateLocked(next string) {
	if next == "" || n.status.State == next {
		return
	}
	n.stateTransitions++
	n.status.State = next
}

func (n *Node) deliverDataAdded(payload AuthenticatedPayload) {
	if payload.Verify() != nil {
		return
	}
	n.mu.RLock()
	listeners := append([]DataListener(nil), n.dataListeners...)
	n.mu.RUnlock()
	for _, l := range listeners {
		l.OnAuthenticatedDataAdded(payload)
	}
}

func (n *Node) deliverDataRemoved(payload AuthenticatedPayload) {
	n.mu.RLock()
	listeners := append([]DataListener(nil), n.dataListeners...)
	n.mu.RUnlock()
	for _, l := range listeners {
		l.OnAuthenticatedDataRemoved(payload)
	}
}

func (n *Node) deliverConfidential(env ConfidentialEnvelope) {
	n.mu.RLock()
	identities := make([]localIdentity, 0, len(n.identities))
	for _, id := range n.identities {
		identities = append(identities, id)
	}
	handlers := append([]func(AuthenticatedPayload){}, n.msgHandlers...)
	n.mu.RUnlock()

	for _, id := range identities {
		payload, err := OpenConfidential(env, id.encPriv, id.encPub)
		if err != nil {
			continue
		}
		if payload.Verify() != nil {
			return
		}
		for _, h := range handlers {
			h(payload)
		}
		return
	}
}

func (n *Node) handlesRecipient(recipientID string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.identities[recipientID]
	return ok
}

func (n *Node) registeredRecipients() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.identities))
	for id := range n.identities {
		out = append(out, id)
	}
	return out
}

func (n *Node) onBackendData(op string, payload AuthenticatedPayload) {
	switch op {
	case "add":
		n.deliverDataAdded(payload)
	case "remove":
		if payload.Verify() == nil {
			n.deliverDataRemoved(payload)
		}
	}
}

func (n *Node) onBackendDirect(recipientID string, env ConfidentialEnvelope) {
	if !n.handlesRecipient(recipientID) {
		return
	}
	n.deliverConfidential(env)
}
