package appconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"bisq-social/go-backend/internal/network"
)

func boolPtr(v bool) *bool {
	return &v
}

func TestMergeAppliesNetworkFields(t *testing.T) {
	dst := Default()
	src := fileConfig{
		Network: fileNetworkConfig{
			Transport:           network.TransportGoWaku,
			Port:                62001,
			BootstrapNodes:      []string{"/ip4/10.0.0.1/tcp/60000/p2p/peer1"},
			MinPeers:            4,
			StoreQueryFanout:    5,
			ReconnectInterval:   2 * time.Second,
			ReconnectBackoffMax: 45 * time.Second,
		},
		Storage: StorageConfig{DataDir: "/var/lib/bisq-social"},
		Logging: LoggingConfig{Level: "debug", Format: "json"},
	}

	Merge(&dst, src)

	if dst.Network.Transport != network.TransportGoWaku {
		t.Fatalf("transport = %q", dst.Network.Transport)
	}
	if dst.Network.Port != 62001 {
		t.Fatalf("port = %d", dst.Network.Port)
	}
	if len(dst.Network.BootstrapNodes) != 1 {
		t.Fatalf("bootstrap nodes = %v", dst.Network.BootstrapNodes)
	}
	if dst.Network.MinPeers != 4 || dst.Network.StoreQueryFanout != 5 {
		t.Fatalf("peer settings = %d/%d", dst.Network.MinPeers, dst.Network.StoreQueryFanout)
	}
	if dst.Network.ReconnectInterval != 2*time.Second || dst.Network.ReconnectBackoffMax != 45*time.Second {
		t.Fatalf("reconnect settings = %s/%s", dst.Network.ReconnectInterval, dst.Network.ReconnectBackoffMax)
	}
	if dst.Storage.DataDir != "/var/lib/bisq-social" {
		t.Fatalf("data dir = %q", dst.Storage.DataDir)
	}
	if dst.Logging.Level != "debug" || dst.Logging.Format != "json" {
		t.Fatalf("logging = %+v", dst.Logging)
	}
}

func TestMergeKeepsBoolDefaultsWhenUnset(t *testing.T) {
	dst := Default()
	dst.Network.EnableRelay = true
	dst.Network.EnableStore = true

	Merge(&dst, fileConfig{Network: fileNetworkConfig{Transport: network.TransportGoWaku}})

	if !dst.Network.EnableRelay || !dst.Network.EnableStore {
		t.Fatal("unset yaml booleans overwrote defaults")
	}

	Merge(&dst, fileConfig{Network: fileNetworkConfig{EnableRelay: boolPtr(false)}})
	if dst.Network.EnableRelay {
		t.Fatal("explicit false not applied")
	}
}

func TestLoadFromPathReadsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "network:\n  port: 62002\n  minPeers: 3\nstorage:\n  dataDir: " + dir + "\nlogging:\n  level: warn\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("BISQ_NETWORK_TRANSPORT", network.TransportMock)
	t.Setenv("BISQ_STORE_PASSPHRASE", "top-secret")

	cfg := LoadFromPath(path)
	if cfg.Network.Port != 62002 || cfg.Network.MinPeers != 3 {
		t.Fatalf("file values not applied: %+v", cfg.Network)
	}
	if cfg.Network.Transport != network.TransportMock {
		t.Fatalf("env override not applied: %q", cfg.Network.Transport)
	}
	if cfg.Storage.Passphrase != "top-secret" {
		t.Fatal("passphrase not read from environment")
	}
	if cfg.ChatStorePath() != filepath.Join(dir, "chat-store.dat") {
		t.Fatalf("chat store path = %q", cfg.ChatStorePath())
	}
}

func TestLoadFromPathMissingFileFallsBack(t *testing.T) {
	t.Setenv("BISQ_NETWORK_TRANSPORT", "")
	t.Setenv("BISQ_STORE_PASSPHRASE", "")
	t.Setenv("BISQ_DATA_DIR", "")
	t.Setenv("BISQ_LOG_LEVEL", "")
	cfg := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if cfg.Network.Transport != network.TransportMock {
		t.Fatalf("default transport = %q", cfg.Network.Transport)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("default log level = %q", cfg.Logging.Level)
	}
}
