// internal/config/config.go
//
// This package handles configuration and the .savethetrash directory.
// Settings come from .savethetrash/config.yaml, then .env files in the
// working directory, then SAVETHETRASH_* environment variables.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// AppDir is the directory we create under the user's home
	AppDir = ".savethetrash"

	// EnvPrefix namespaces every environment override
	EnvPrefix = "SAVETHETRASH_"

	DefaultBaseURL          = "http://localhost:8080"
	DefaultUploadPath       = "/api/upload-file"
	DefaultAnalyzePath      = "/api/analyze"
	DefaultTimeout          = 30 * time.Second
	DefaultMaxResponseBytes = 4 << 20
	DefaultMaxImageBytes    = 10 << 20

	SourceStatic = "static"
	SourceFile   = "file"
	SourceOAuth2 = "oauth2"
)

const defaultConfigYAML = `# save-the-trash configuration
version: 1

backend:
  base_url: http://localhost:8080
  upload_path: /api/upload-file
  analyze_path: /api/analyze
  timeout: 30s

# Where bearer tokens come from: static, file or oauth2.
credentials:
  source: static
  # token: paste-a-token-here
  # token_file: ~/.savethetrash/token
  # oauth2:
  #   client_id: ""
  #   client_secret: ""
  #   token_url: https://example.auth0.com/oauth/token
  #   audience: https://api.savethetrash.example

images:
  max_bytes: 10485760

logging:
  level: info
`

// BackendConfig points the client at the classification service.
type BackendConfig struct {
	BaseURL          string `yaml:"base_url"`
	UploadPath       string `yaml:"upload_path"`
	AnalyzePath      string `yaml:"analyze_path"`
	Timeout          string `yaml:"timeout"`
	MaxResponseBytes int64  `yaml:"max_response_bytes,omitempty"`
}

// TimeoutDuration parses Timeout, falling back to DefaultTimeout.
func (b BackendConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(b.Timeout))
	if err != nil || d <= 0 {
		return DefaultTimeout
	}
	return d
}

// OAuth2Config holds client-credentials settings.
type OAuth2Config struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	TokenURL     string   `yaml:"token_url"`
	Audience     string   `yaml:"audience,omitempty"`
	Scopes       []string `yaml:"scopes,omitempty"`
}

// CredentialsConfig selects how bearer tokens are obtained.
type CredentialsConfig struct {
	Source    string       `yaml:"source"`
	Token     string       `yaml:"token,omitempty"`
	TokenFile string       `yaml:"token_file,omitempty"`
	OAuth2    OAuth2Config `yaml:"oauth2,omitempty"`
}

// ImagesConfig limits what the user may submit.
type ImagesConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// LoggingConfig controls the file logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// FileConfig models .savethetrash/config.yaml.
type FileConfig struct {
	Version     int               `yaml:"version"`
	Backend     BackendConfig     `yaml:"backend"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Images      ImagesConfig      `yaml:"images"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Config holds the runtime configuration.
type Config struct {
	// BaseDir is the directory that contains AppDir (normally $HOME)
	BaseDir string

	// Dir is BaseDir/.savethetrash
	Dir string

	Settings FileConfig
}

// InitAppDir creates the .savethetrash directory structure and writes the
// default config file if none exists yet.
//
// .savethetrash/
// ├── config.yaml
// └── logs/        <- savethetrash.log and journey.log
func InitAppDir(baseDir string) error {
	dir := filepath.Join(baseDir, AppDir)
	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0o755); err != nil {
		return err
	}
	return ensureConfigFile(filepath.Join(dir, "config.yaml"))
}

// NewConfig loads settings for baseDir. Missing files are not an error.
func NewConfig(baseDir string) (*Config, error) {
	LoadDotEnv(".env", ".env.local")

	cfg := &Config{
		BaseDir:  baseDir,
		Dir:      filepath.Join(baseDir, AppDir),
		Settings: defaultFileConfig(),
	}
	if err := cfg.load(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads each file that exists. Variables already present in the
// environment win.
func LoadDotEnv(files ...string) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		_ = godotenv.Load(f)
	}
}

// ConfigPath returns the on-disk location for the config file.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.Dir, "config.yaml")
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.Dir, "logs")
}

// JournalPath returns the human-readable journey log path.
func (c *Config) JournalPath() string {
	return filepath.Join(c.LogsDir(), "journey.log")
}

func (c *Config) load() error {
	path := c.ConfigPath()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var parsed FileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
		c.Settings = parsed
	case errors.Is(err, fs.ErrNotExist):
	default:
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := c.Settings.applyEnv(os.LookupEnv); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.Settings.applyDefaults()
	c.Settings.normalize(c.BaseDir)
	if err := c.Settings.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func defaultFileConfig() FileConfig {
	return FileConfig{
		Version: 1,
		Backend: BackendConfig{
			BaseURL:     DefaultBaseURL,
			UploadPath:  DefaultUploadPath,
			AnalyzePath: DefaultAnalyzePath,
			Timeout:     DefaultTimeout.String(),
		},
		Credentials: CredentialsConfig{Source: SourceStatic},
		Images:      ImagesConfig{MaxBytes: DefaultMaxImageBytes},
		Logging:     LoggingConfig{Level: "info"},
	}
}

func (fc *FileConfig) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("BASE_URL", &fc.Backend.BaseURL)
	str("UPLOAD_PATH", &fc.Backend.UploadPath)
	str("ANALYZE_PATH", &fc.Backend.AnalyzePath)
	str("TIMEOUT", &fc.Backend.Timeout)
	str("CREDENTIAL_SOURCE", &fc.Credentials.Source)
	str("TOKEN", &fc.Credentials.Token)
	str("TOKEN_FILE", &fc.Credentials.TokenFile)
	str("CLIENT_ID", &fc.Credentials.OAuth2.ClientID)
	str("CLIENT_SECRET", &fc.Credentials.OAuth2.ClientSecret)
	str("TOKEN_URL", &fc.Credentials.OAuth2.TokenURL)
	str("AUDIENCE", &fc.Credentials.OAuth2.Audience)
	str("LOG_LEVEL", &fc.Logging.Level)

	if v, ok := lookup(EnvPrefix + "MAX_IMAGE_BYTES"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_IMAGE_BYTES: %w", EnvPrefix, err)
		}
		fc.Images.MaxBytes = n
	}

	// A token in the environment implies the static source unless one was
	// chosen explicitly.
	if _, explicit := lookup(EnvPrefix + "CREDENTIAL_SOURCE"); !explicit {
		if v, ok := lookup(EnvPrefix + "TOKEN"); ok && strings.TrimSpace(v) != "" {
			fc.Credentials.Source = SourceStatic
		}
	}
	return nil
}

func (fc *FileConfig) applyDefaults() {
	if fc.Version == 0 {
		fc.Version = 1
	}
	if strings.TrimSpace(fc.Backend.BaseURL) == "" {
		fc.Backend.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(fc.Backend.UploadPath) == "" {
		fc.Backend.UploadPath = DefaultUploadPath
	}
	if strings.TrimSpace(fc.Backend.AnalyzePath) == "" {
		fc.Backend.AnalyzePath = DefaultAnalyzePath
	}
	if strings.TrimSpace(fc.Backend.Timeout) == "" {
		fc.Backend.Timeout = DefaultTimeout.String()
	}
	if fc.Backend.MaxResponseBytes <= 0 {
		fc.Backend.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if fc.Images.MaxBytes <= 0 {
		fc.Images.MaxBytes = DefaultMaxImageBytes
	}
	if strings.TrimSpace(fc.Credentials.Source) == "" {
		fc.Credentials.Source = SourceStatic
	}
	if strings.TrimSpace(fc.Logging.Level) == "" {
		fc.Logging.Level = "info"
	}
}

func (fc *FileConfig) normalize(base string) {
	fc.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(fc.Backend.BaseURL), "/")
	fc.Backend.UploadPath = ensureLeadingSlash(fc.Backend.UploadPath)
	fc.Backend.AnalyzePath = ensureLeadingSlash(fc.Backend.AnalyzePath)
	fc.Credentials.Source = strings.ToLower(strings.TrimSpace(fc.Credentials.Source))
	fc.Credentials.Token = strings.TrimSpace(fc.Credentials.Token)
	fc.Credentials.TokenFile = resolvePath(base, fc.Credentials.TokenFile)
	fc.Logging.Level = strings.ToLower(strings.TrimSpace(fc.Logging.Level))
}

func (fc *FileConfig) validate() error {
	if fc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	u, err := url.Parse(fc.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.base_url must be an http(s) URL, got %q", fc.Backend.BaseURL)
	}
	if _, err := time.ParseDuration(fc.Backend.Timeout); err != nil {
		return fmt.Errorf("backend.timeout: %w", err)
	}
	switch fc.Credentials.Source {
	case SourceStatic:
	case SourceFile:
		if fc.Credentials.TokenFile == "" {
			return fmt.Errorf("credentials.token_file is required for source %q", SourceFile)
		}
	case SourceOAuth2:
		if strings.TrimSpace(fc.Credentials.OAuth2.ClientID) == "" {
			return fmt.Errorf("credentials.oauth2.client_id is required for source %q", SourceOAuth2)
		}
		if strings.TrimSpace(fc.Credentials.OAuth2.TokenURL) == "" {
			return fmt.Errorf("credentials.oauth2.token_url is required for source %q", SourceOAuth2)
		}
	default:
		return fmt.Errorf("credentials.source must be 'static', 'file' or 'oauth2'")
	}
	switch fc.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error")
	}
	return nil
}

func ensureConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o600)
}

func ensureLeadingSlash(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			trimmed = filepath.Join(home, trimmed[2:])
		}
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}
