// Package daemonservice composes the chat daemon: configuration, identity,
// transport and the chat service, wired in dependency order.
package daemonservice

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"bisq-social/go-backend/internal/bootstrap/appconfig"
	"bisq-social/go-backend/internal/chat"
	"bisq-social/go-backend/internal/identity"
	"bisq-social/go-backend/internal/network"
	"bisq-social/go-backend/internal/platform/privacylog"
	"bisq-social/go-backend/internal/platform/ratelimiter"
)

// Inbound defaults: enough for lively channels, tight enough to stop floods.
const (
	inboundMessagesPerSecond = 5
	inboundBurst             = 10
)

type Daemon struct {
	cfg      appconfig.Config
	log      *slog.Logger
	node     *network.Node
	store    *chat.Store
	profiles *identity.ProfileService
	chat     *chat.Service
}

// New builds the daemon from config file, environment and flag overrides.
func New(configPath, dataDir, transport string) (*Daemon, error) {
	cfg := appconfig.LoadFromPath(configPath)
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	if transport != "" {
		cfg.Network.Transport = transport
	}
	log := newLogger(cfg.Logging)

	profiles := identity.NewProfileService(log)
	profiles.Configure(cfg.ProfileStorePath(), cfg.Storage.Passphrase)
	if err := profiles.Load(); err != nil {
		return nil, err
	}
	if _, ok := profiles.SelectedProfile(); !ok {
		profile, _, err := profiles.CreateProfile("anonymous", "")
		if err != nil {
			return nil, err
		}
		log.Info("created initial profile", "profile_id", profile.ProfileID)
	}

	store := chat.NewStore(log)
	if err := store.LoadFrom(cfg.ChatStorePath(), cfg.Storage.Passphrase); err != nil {
		return nil, err
	}
	store.Configure(cfg.ChatStorePath(), cfg.Storage.Passphrase)

	node := network.NewNode(cfg.Network)
	svc := chat.NewService(chat.ServiceDeps{
		Store:    store,
		Network:  node,
		Profiles: profiles,
		Limiter:  ratelimiter.New(inboundMessagesPerSecond, inboundBurst, 10*time.Minute),
		Log:      log,
	})

	return &Daemon{cfg: cfg, log: log, node: node, store: store, profiles: profiles, chat: svc}, nil
}

// Run starts the transport, initializes the chat service and blocks until the
// context is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.node.Start(ctx); err != nil {
		return err
	}
	defer func() {
		_ = d.node.Stop(context.Background())
	}()
	if err := d.chat.Initialize(ctx); err != nil {
		return err
	}
	status := d.node.Status()
	d.log.Info("chat daemon ready",
		"transport", d.cfg.Network.Transport,
		"state", status.State,
		"peer_count", status.PeerCount)
	<-ctx.Done()
	d.log.Info("chat daemon shutting down")
	return nil
}

// Chat exposes the composed chat service for embedding callers.
func (d *Daemon) Chat() *chat.Service {
	return d.chat
}

// Profiles exposes the composed profile service.
func (d *Daemon) Profiles() *identity.ProfileService {
	return d.profiles
}

// Store exposes the channel store for read access and observer registration.
func (d *Daemon) Store() *chat.Store {
	return d.store
}

func newLogger(cfg appconfig.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(cfg.Level)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(privacylog.WrapHandler(handler))
}
