package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
	AuthModeJWT      = "jwt"
)

// minJWTSecret is the shortest accepted HS256 signing key.
const minJWTSecret = 32

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Files  FilesConfig       `yaml:"files"`
	Editor EditorConfig      `yaml:"editor"`
	Vault  VaultConfig       `yaml:"vault"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Files.Validate(); err != nil {
		return err
	}
	if err := c.Editor.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// FilesConfig holds the directory attachment blobs are stored in.
type FilesConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the files configuration.
func (c *FilesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// EditorConfig tunes the editor session.
type EditorConfig struct {
	Debounce         time.Duration `yaml:"debounce"`
	AckTimeout       time.Duration `yaml:"ack_timeout"`
	ImageLoadDelay   time.Duration `yaml:"image_load_delay"`
	RefreshThrottle  time.Duration `yaml:"refresh_throttle"`
	Sanitize         bool          `yaml:"sanitize"`
	PlaceholderAsset string        `yaml:"placeholder_asset"`
	Placeholder      string        `yaml:"placeholder"`
	Theme            string        `yaml:"theme"`
}

// Validate validates the editor configuration.
func (c *EditorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Required, validation.Min(10*time.Millisecond), validation.Max(time.Minute)),
		validation.Field(&c.AckTimeout, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&c.ImageLoadDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.RefreshThrottle, validation.Required),
		validation.Field(&c.PlaceholderAsset, validation.Required),
	)
}

// VaultConfig holds the optional password used to unlock the vault at start.
type VaultConfig struct {
	Password string `yaml:"password"`
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
//   - "jwt": HS256-signed Bearer JWTs; JWTSecret must be at least 32 bytes.
type AuthConfig struct {
	Mode      string `yaml:"mode"`
	Token     string `yaml:"token"`
	JWTSecret string `yaml:"jwt_secret"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken, AuthModeJWT)),
	); err != nil {
		return err
	}
	switch c.Mode {
	case AuthModeToken:
		if c.Token == "" {
			return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
		}
	case AuthModeJWT:
		if len(c.JWTSecret) < minJWTSecret {
			return fmt.Errorf("auth: mode is %q but jwt_secret is shorter than %d bytes", AuthModeJWT, minJWTSecret)
		}
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken || c.Mode == AuthModeJWT
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./quill.db",
		},
		Files: FilesConfig{
			Path: "./files",
		},
		Editor: EditorConfig{
			Debounce:         500 * time.Millisecond,
			AckTimeout:       5 * time.Second,
			ImageLoadDelay:   300 * time.Millisecond,
			RefreshThrottle:  time.Second,
			PlaceholderAsset: "/assets/placeholder.svg",
			Placeholder:      "Start writing your note...",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
