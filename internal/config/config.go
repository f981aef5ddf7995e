package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	defaultAPIBase     = "https://rooster.rug.nl/api"
	defaultProfilesDir = "profiles"
	defaultTemplate    = "templates/index.html"
	defaultOutputDir   = "html"
	defaultCacheDir    = "./var/feed-cache"
	defaultRefreshCron = "0 */6 * * *"
	defaultHTTPTimeout = 30
)

// CaptureConfig controls the optional headless-Chromium preview of the
// filtered page.
type CaptureConfig struct {
	Enabled        bool `yaml:"enabled" json:"enabled"`
	Width          int  `yaml:"width" json:"width"`
	Height         int  `yaml:"height" json:"height"`
	TimeoutSeconds int  `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// SFTPConfig describes the static host that generated pages are pushed to.
// An empty Host disables uploading.
type SFTPConfig struct {
	Host                  string `yaml:"host" json:"host"`
	Port                  int    `yaml:"port" json:"port"`
	User                  string `yaml:"user" json:"user"`
	Pass                  string `yaml:"pass" json:"-"`
	RemoteDir             string `yaml:"remote_dir" json:"remote_dir"`
	InsecureIgnoreHostKey bool   `yaml:"insecure_ignore_host_key" json:"insecure_ignore_host_key"`
	// HostKey is the server key in authorized_keys format, required unless
	// InsecureIgnoreHostKey is set.
	HostKey string `yaml:"host_key" json:"host_key"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the status server.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// APIBase is the timetable API root; feeds live under
	// {APIBase}/{year}/activity/by/course/{code}.
	APIBase string `yaml:"api_base" json:"api_base"`

	// Languages is the resolver preference order for multilingual fields.
	Languages []string `yaml:"languages" json:"languages"`

	ProfilesDir string `yaml:"profiles_dir" json:"profiles_dir"`
	Template    string `yaml:"template" json:"template"`
	OutputDir   string `yaml:"output_dir" json:"output_dir"`

	// CacheDir holds per-URL ETag/Last-Modified metadata and bodies.
	CacheDir           string `yaml:"cache_dir" json:"cache_dir"`
	HTTPTimeoutSeconds int    `yaml:"http_timeout_seconds" json:"http_timeout_seconds"`
	// AllowStale serves a cached body when the network fetch fails.
	AllowStale bool `yaml:"allow_stale" json:"allow_stale"`

	// RefreshCron is a standard 5-field cron spec for daemon mode.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Listen enables the status/preview HTTP server when non-empty.
	Listen    string           `yaml:"listen" json:"listen"`
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"-"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// EscapeHTML escapes rendered text before template substitution.
	EscapeHTML *bool `yaml:"escape_html,omitempty" json:"escape_html,omitempty"`
	// Compress writes a brotli .br sibling next to every output file.
	Compress bool `yaml:"compress" json:"compress"`
	// ICal writes calendar.ics for the filtered view.
	ICal *bool `yaml:"ical,omitempty" json:"ical,omitempty"`

	Capture CaptureConfig `yaml:"capture" json:"capture"`
	SFTP    SFTPConfig    `yaml:"sftp" json:"sftp"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values so that partially-filled configs
// still behave correctly.
func (c *Config) Normalize() {
	if c.APIBase == "" {
		c.APIBase = defaultAPIBase
	}
	if len(c.Languages) == 0 {
		c.Languages = []string{"en", "nl"}
	}
	if c.ProfilesDir == "" {
		c.ProfilesDir = defaultProfilesDir
	}
	if c.Template == "" {
		c.Template = defaultTemplate
	}
	if c.OutputDir == "" {
		c.OutputDir = defaultOutputDir
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.HTTPTimeoutSeconds <= 0 {
		c.HTTPTimeoutSeconds = defaultHTTPTimeout
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.EscapeHTML == nil {
		t := true
		c.EscapeHTML = &t
	}
	if c.ICal == nil {
		t := true
		c.ICal = &t
	}
	if c.Capture.Width <= 0 {
		c.Capture.Width = 1024
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = 1400
	}
	if c.Capture.TimeoutSeconds <= 0 {
		c.Capture.TimeoutSeconds = 30
	}
	if c.SFTP.Port <= 0 {
		c.SFTP.Port = 22
	}
	if c.SFTP.RemoteDir == "" {
		c.SFTP.RemoteDir = "/"
	}
}

// ShouldEscapeHTML reports the effective escape_html setting.
func (c *Config) ShouldEscapeHTML() bool {
	return c.EscapeHTML == nil || *c.EscapeHTML
}

// ShouldWriteICal reports the effective ical setting.
func (c *Config) ShouldWriteICal() bool {
	return c.ICal == nil || *c.ICal
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (parent directory created as needed) and returned.
//   - Otherwise the YAML is unmarshalled and defaults are normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to path atomically (temp file in the
// same directory, then rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".schedlist-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
