package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the main configuration for devlog-cache.
type Config struct {
	SiteID  string `toml:"site_id"`
	BaseDir string `toml:"base_dir"`
	LogDir  string `toml:"log_dir"`

	Store    StoreConfig    `toml:"store"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Manifest ManifestConfig `toml:"manifest"`
	Edge     EdgeConfig     `toml:"edge"`
	Purge    PurgeConfig    `toml:"purge"`
}

// StoreConfig selects and configures the artifact store backend.
// This uses a tagged union pattern - the Type field determines which other
// fields are relevant.
type StoreConfig struct {
	Type string `toml:"type"` // "s3", "filesystem", or "memory"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3").
	// Endpoint points at an S3-compatible store such as Cloudflare R2.
	Bucket          string `toml:"bucket,omitempty"`
	Prefix          string `toml:"prefix,omitempty"`
	Region          string `toml:"region,omitempty"`
	Endpoint        string `toml:"endpoint,omitempty"`
	AccessKeyID     string `toml:"access_key_id,omitempty"`     // falls back to env AWS_ACCESS_KEY_ID
	SecretAccessKey string `toml:"secret_access_key,omitempty"` // falls back to env AWS_SECRET_ACCESS_KEY

	// Filesystem-specific fields (only used when Type == "filesystem").
	Root string `toml:"root,omitempty"`
}

// LedgerConfig locates the dedup ledger file.
type LedgerConfig struct {
	Path string `toml:"path"`
}

// ManifestConfig locates the local publish manifest file.
type ManifestConfig struct {
	Path string `toml:"path"`
}

// EdgeConfig configures the edge HTTP server.
type EdgeConfig struct {
	Listen string `toml:"listen"`
	// PublicBaseURL is the externally visible origin, used to turn purge
	// paths into absolute URLs.
	PublicBaseURL string `toml:"public_base_url"`
}

// PurgeConfig configures purge authentication and the edge-cache purge API.
type PurgeConfig struct {
	Token string `toml:"token"` // falls back to env PURGE_TOKEN

	// Cloudflare-style zone purge endpoint. An empty zone ID disables
	// real purge execution.
	ZoneID   string `toml:"zone_id,omitempty"`
	APIToken string `toml:"api_token,omitempty"` // falls back to env CLOUDFLARE_API_TOKEN
	APIBase  string `toml:"api_base,omitempty"`
}

// NewConfig creates a Config with the provided identity and default paths.
func NewConfig(siteID, baseDir string) *Config {
	return &Config{
		SiteID:  siteID,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Store: StoreConfig{
			Type: "filesystem",
			Name: "local",
			Root: filepath.Join(baseDir, "store"),
		},
		Ledger:   LedgerConfig{Path: filepath.Join(baseDir, "seen_ids.json")},
		Manifest: ManifestConfig{Path: filepath.Join(baseDir, "manifest.json")},
		Edge: EdgeConfig{
			Listen: ":8787",
		},
		Purge: PurgeConfig{
			APIBase: "https://api.cloudflare.com/client/v4",
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
