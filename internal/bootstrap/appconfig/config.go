// Package appconfig loads the daemon configuration: yaml file first, then
// environment overrides on top of the built-in defaults.
package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bisq-social/go-backend/internal/network"
)

type Config struct {
	Network network.Config `yaml:"network"`
	Storage StorageConfig  `yaml:"storage"`
	Logging LoggingConfig  `yaml:"logging"`
}

type StorageConfig struct {
	DataDir string `yaml:"dataDir"`
	// Passphrase is only read from the environment, never from the file.
	Passphrase string `yaml:"-"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

type fileConfig struct {
	Network fileNetworkConfig `yaml:"network"`
	Storage StorageConfig     `yaml:"storage"`
	Logging LoggingConfig     `yaml:"logging"`
}

// fileNetworkConfig mirrors network.Config with pointer booleans so an absent
// yaml key keeps the default instead of forcing false.
type fileNetworkConfig struct {
	Transport           string        `yaml:"transport"`
	Port                int           `yaml:"port"`
	AdvertiseAddress    string        `yaml:"advertiseAddress"`
	EnableRelay         *bool         `yaml:"enableRelay"`
	EnableStore         *bool         `yaml:"enableStore"`
	BootstrapNodes      []string      `yaml:"bootstrapNodes"`
	MinPeers            int           `yaml:"minPeers"`
	StoreQueryFanout    int           `yaml:"storeQueryFanout"`
	ReconnectInterval   time.Duration `yaml:"reconnectInterval"`
	ReconnectBackoffMax time.Duration `yaml:"reconnectBackoffMax"`
}

func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Network: network.DefaultConfig(),
		Storage: StorageConfig{DataDir: filepath.Join(home, ".bisq-social")},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// LoadFromPath reads the first readable candidate config file, merges it over
// the defaults and applies environment overrides last. A missing or broken
// file falls back to defaults plus environment.
func LoadFromPath(configPath string) Config {
	cfg := Default()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates,
			"configs/config.yaml",
			filepath.Join(cfg.Storage.DataDir, "config.yaml"),
		)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var parsed fileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			continue
		}
		merged := cfg
		Merge(&merged, parsed)
		ApplyEnvOverrides(&merged)
		return merged
	}

	ApplyEnvOverrides(&cfg)
	return cfg
}

func Merge(dst *Config, src fileConfig) {
	if src.Network.Transport != "" {
		dst.Network.Transport = src.Network.Transport
	}
	if src.Network.Port != 0 {
		dst.Network.Port = src.Network.Port
	}
	if src.Network.AdvertiseAddress != "" {
		dst.Network.AdvertiseAddress = src.Network.AdvertiseAddress
	}
	if src.Network.EnableRelay != nil {
		dst.Network.EnableRelay = *src.Network.EnableRelay
	}
	if src.Network.EnableStore != nil {
		dst.Network.EnableStore = *src.Network.EnableStore
	}
	if src.Network.BootstrapNodes != nil {
		dst.Network.BootstrapNodes = src.Network.BootstrapNodes
	}
	if src.Network.MinPeers != 0 {
		dst.Network.MinPeers = src.Network.MinPeers
	}
	if src.Network.StoreQueryFanout != 0 {
		dst.Network.StoreQueryFanout = src.Network.StoreQueryFanout
	}
	if src.Network.ReconnectInterval != 0 {
		dst.Network.ReconnectInterval = src.Network.ReconnectInterval
	}
	if src.Network.ReconnectBackoffMax != 0 {
		dst.Network.ReconnectBackoffMax = src.Network.ReconnectBackoffMax
	}
	if src.Storage.DataDir != "" {
		dst.Storage.DataDir = src.Storage.DataDir
	}
	if src.Logging.Level != "" {
		dst.Logging.Level = src.Logging.Level
	}
	if src.Logging.Format != "" {
		dst.Logging.Format = src.Logging.Format
	}
}

func ApplyEnvOverrides(cfg *Config) {
	if transport := strings.TrimSpace(os.Getenv("BISQ_NETWORK_TRANSPORT")); transport != "" {
		cfg.Network.Transport = transport
	}
	if dataDir := strings.TrimSpace(os.Getenv("BISQ_DATA_DIR")); dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	if level := strings.TrimSpace(os.Getenv("BISQ_LOG_LEVEL")); level != "" {
		cfg.Logging.Level = level
	}
	// The store passphrase never lives in a config file.
	cfg.Storage.Passphrase = os.Getenv("BISQ_STORE_PASSPHRASE")
}

// ChatStorePath is the encrypted chat snapshot location under the data dir.
func (c Config) ChatStorePath() string {
	return filepath.Join(c.Storage.DataDir, "chat-store.dat")
}

// ProfileStorePath is the encrypted profile store location under the data dir.
func (c Config) ProfileStorePath() string {
	return filepath.Join(c.Storage.DataDir, "profiles.dat")
}
