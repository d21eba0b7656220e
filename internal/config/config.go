package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by every stage of the update pipeline.
type Config struct {
	// Product is the artifact name prefix, e.g. "agent" in agent-linux-1.2.3-x64.zip.
	Product string `yaml:"product"`
	// Channel is the release stream the agent follows (stable or edge).
	Channel string `yaml:"channel"`
	// ReleasesURL is the base URL hosting latest.txt and one folder per version.
	ReleasesURL string `yaml:"releases_url"`
	// EdgeMetadataURL points to the structured metadata document with the "latest" tag.
	EdgeMetadataURL string `yaml:"edge_metadata_url"`
	// VersionsDir is the root holding one directory per installed version.
	VersionsDir string `yaml:"versions_dir"`
	// DownloadDir is where release artifacts are staged before verification.
	DownloadDir string `yaml:"download_dir"`
	// StateFile is the key/value store file holding update attempt records.
	StateFile string `yaml:"state_file"`
	// ChecksumAlgorithm names the hash used by the checksum manifest (sha1, sha256, sha512).
	ChecksumAlgorithm string `yaml:"checksum_algorithm"`
	// PublicKeyFile is an optional armored OpenPGP key used to check manifest signatures.
	PublicKeyFile string `yaml:"public_key_file"`
	// MaxAttempts bounds how many times one target version is attempted.
	MaxAttempts int `yaml:"max_attempts"`
	// Events configures the outcome reporter.
	Events Events `yaml:"events"`
	// Timeout bounds metadata requests (latest pointer, manifests, events).
	Timeout time.Duration `yaml:"timeout"`
	// DownloadTimeout bounds a single artifact transfer.
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	// ShowProgress renders a progress bar on stderr while downloading.
	ShowProgress bool `yaml:"show_progress"`
	// LogLevel is the minimum level written by the logger.
	LogLevel string `yaml:"log_level"`
}

// Events holds the remote management service settings.
type Events struct {
	// URL is the HTTP endpoint or, for the grpc transport, the host:port target.
	URL string `yaml:"url"`
	// Transport selects how events are pushed: http or grpc.
	Transport string `yaml:"transport"`
	// APIKey is the account credential used to authenticate the push.
	APIKey string `yaml:"api_key"`
	// DeviceKey identifies this device in the management service.
	DeviceKey string `yaml:"device_key"`
	// GeoURL answers with the public ip and country of the device.
	GeoURL string `yaml:"geo_url"`
}

const (
	// DefaultConfigFilename is the default filename for updater settings.
	DefaultConfigFilename = "agent-updater-settings.yaml"

	// DefaultStateFilename is the default filename for the attempt store.
	DefaultStateFilename = "agent-updater-state.yaml"

	// DefaultProduct is the artifact prefix used when none is configured.
	DefaultProduct = "agent"

	// DefaultVersionsDir is the versions root used when none is configured.
	DefaultVersionsDir = "versions"

	// DefaultChecksumAlgorithm matches the hash published by the release host.
	DefaultChecksumAlgorithm = "sha1"

	// DefaultGeoURL answers with {"ip": ..., "country": ...}.
	DefaultGeoURL = "http://ipinfo.io/geo"

	// DefaultMaxAttempts is the per-target retry cap.
	DefaultMaxAttempts = 3

	// DefaultTimeout is the default duration for metadata requests.
	DefaultTimeout = 30 * time.Second

	// DefaultDownloadTimeout is the default duration for one artifact transfer.
	DefaultDownloadTimeout = 10 * time.Minute

	// DefaultFilePermissions is the default file permission for config and state files.
	DefaultFilePermissions = 0o600

	// EnvPrefix prefixes environment overrides, e.g. AGENT_UPDATER_CHANNEL.
	EnvPrefix = "AGENT_UPDATER"

	// ChannelStable follows the plain-text latest pointer.
	ChannelStable = "stable"
	// ChannelEdge follows the structured metadata document.
	ChannelEdge = "edge"

	// TransportHTTP pushes events as JSON over HTTP.
	TransportHTTP = "http"
	// TransportGRPC pushes events over a unary gRPC call.
	TransportGRPC = "grpc"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errReleasesURLRequired is returned when the releases URL is missing.
	errReleasesURLRequired = errors.New("releases url must be provided")
	// errUnknownChannel is returned for channels other than stable and edge.
	errUnknownChannel = errors.New("unknown channel")
	// errUnknownTransport is returned for event transports other than http and grpc.
	errUnknownTransport = errors.New("unknown events transport")
	// errUnknownAlgorithm is returned for unsupported checksum algorithms.
	errUnknownAlgorithm = errors.New("unknown checksum algorithm")
)

// Load reads configuration from the provided path, applies environment
// overrides and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	ApplyEnv(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes Config to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Settings carry credentials, so restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// ApplyEnv overrides settings with AGENT_UPDATER_* environment variables.
// Nested keys use an underscore, e.g. AGENT_UPDATER_EVENTS_API_KEY.
func ApplyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, target := range map[string]*string{
		"product":            &cfg.Product,
		"channel":            &cfg.Channel,
		"releases_url":       &cfg.ReleasesURL,
		"edge_metadata_url":  &cfg.EdgeMetadataURL,
		"versions_dir":       &cfg.VersionsDir,
		"download_dir":       &cfg.DownloadDir,
		"state_file":         &cfg.StateFile,
		"checksum_algorithm": &cfg.ChecksumAlgorithm,
		"public_key_file":    &cfg.PublicKeyFile,
		"log_level":          &cfg.LogLevel,
		"events.url":         &cfg.Events.URL,
		"events.transport":   &cfg.Events.Transport,
		"events.api_key":     &cfg.Events.APIKey,
		"events.device_key":  &cfg.Events.DeviceKey,
		"events.geo_url":     &cfg.Events.GeoURL,
	} {
		if value := v.GetString(key); value != "" {
			*target = value
		}
	}

	if v.IsSet("max_attempts") {
		cfg.MaxAttempts = v.GetInt("max_attempts")
	}

	if v.IsSet("timeout") {
		cfg.Timeout = v.GetDuration("timeout")
	}

	if v.IsSet("download_timeout") {
		cfg.DownloadTimeout = v.GetDuration("download_timeout")
	}

	if v.IsSet("show_progress") {
		cfg.ShowProgress = v.GetBool("show_progress")
	}
}

// Validate checks the provided settings for required fields and fills defaults.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if settings.ReleasesURL == "" {
		return errReleasesURLRequired
	}

	if _, err := url.ParseRequestURI(settings.ReleasesURL); err != nil {
		return fmt.Errorf("invalid releases url: %w", err)
	}

	if settings.EdgeMetadataURL != "" {
		if _, err := url.ParseRequestURI(settings.EdgeMetadataURL); err != nil {
			return fmt.Errorf("invalid edge metadata url: %w", err)
		}
	}

	applyDefaults(settings)

	if !slices.Contains([]string{ChannelStable, ChannelEdge}, settings.Channel) {
		return fmt.Errorf("%w: %s", errUnknownChannel, settings.Channel)
	}

	if !slices.Contains([]string{TransportHTTP, TransportGRPC}, settings.Events.Transport) {
		return fmt.Errorf("%w: %s", errUnknownTransport, settings.Events.Transport)
	}

	if !slices.Contains([]string{"sha1", "sha256", "sha512"}, settings.ChecksumAlgorithm) {
		return fmt.Errorf("%w: %s", errUnknownAlgorithm, settings.ChecksumAlgorithm)
	}

	return nil
}

// applyDefaults fills every optional field left empty.
func applyDefaults(settings *Config) {
	settings.Channel = strings.ToLower(strings.TrimSpace(settings.Channel))
	settings.ChecksumAlgorithm = strings.ToLower(strings.TrimSpace(settings.ChecksumAlgorithm))
	settings.Events.Transport = strings.ToLower(strings.TrimSpace(settings.Events.Transport))

	if settings.Product == "" {
		settings.Product = DefaultProduct
	}

	if settings.Channel == "" {
		settings.Channel = ChannelStable
	}

	if settings.VersionsDir == "" {
		settings.VersionsDir = DefaultVersionsDir
	}

	if settings.DownloadDir == "" {
		settings.DownloadDir = os.TempDir()
	}

	if settings.StateFile == "" {
		settings.StateFile = DefaultStateFilename
	}

	if settings.ChecksumAlgorithm == "" {
		settings.ChecksumAlgorithm = DefaultChecksumAlgorithm
	}

	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = DefaultMaxAttempts
	}

	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	if settings.DownloadTimeout <= 0 {
		settings.DownloadTimeout = DefaultDownloadTimeout
	}

	if settings.Events.Transport == "" {
		settings.Events.Transport = TransportHTTP
	}

	if settings.Events.GeoURL == "" {
		settings.Events.GeoURL = DefaultGeoURL
	}
}
