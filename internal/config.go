package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/dstanfill/inkwell/internal/queue"
	"github.com/dstanfill/inkwell/internal/syncer"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// ApplicationConfig holds application-level configuration shared by the
// agent and the server.
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
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address returns the HTTP listen address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// QueueConfig holds the local capture queue configuration.
type QueueConfig struct {
	Path         string `yaml:"path"`
	MaxEntries   int    `yaml:"max_entries"`
	MaxRetries   int    `yaml:"max_retries"`
	RetainSynced int    `yaml:"retain_synced"`
}

// Validate validates the queue configuration.
func (c *QueueConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.MaxEntries, validation.Min(1)),
		validation.Field(&c.MaxRetries, validation.Min(1)),
	)
}

// RemoteConfig points the agent at its sync endpoint. An empty URL means
// the agent runs capture-only: everything queues locally and nothing
// syncs until a URL is configured.
type RemoteConfig struct {
	URL       string        `yaml:"url"`
	Token     string        `yaml:"token"`
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
}

// Enabled reports whether a sync endpoint is configured.
func (c *RemoteConfig) Enabled() bool {
	return c.URL != ""
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.BatchSize, validation.Min(0), validation.Max(100)),
	)
}

// SpoolConfig holds the draft drop-directory configuration. An empty dir
// disables the spool watcher.
type SpoolConfig struct {
	Dir string `yaml:"dir"`
}

// AgentConfig is the configuration for the local capture agent.
type AgentConfig struct {
	App    ApplicationConfig `yaml:"app"`
	Queue  QueueConfig       `yaml:"queue"`
	Remote RemoteConfig      `yaml:"remote"`
	Spool  SpoolConfig       `yaml:"spool"`
}

// Validate validates the agent configuration.
func (c *AgentConfig) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Queue.Validate(); err != nil {
		return err
	}
	return c.Remote.Validate()
}

// NewDefaultAgentConfig returns an AgentConfig with sensible defaults.
// The agent binds loopback only; it is not meant to be reachable from
// other machines.
func NewDefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Host: "127.0.0.1",
				Port: 8515,
			},
		},
		Queue: QueueConfig{
			Path:         "./inkwell-queue.db",
			MaxEntries:   queue.DefaultMaxEntries,
			MaxRetries:   queue.DefaultMaxRetries,
			RetainSynced: queue.DefaultRetain,
		},
		Remote: RemoteConfig{
			Interval:  syncer.DefaultInterval,
			BatchSize: syncer.DefaultBatchSize,
		},
	}
}

// SQLiteConfig holds the server record database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AttachmentsConfig holds the audio attachment store configuration.
type AttachmentsConfig struct {
	Dir string `yaml:"dir"`
}

// Validate validates the attachments configuration.
func (c *AttachmentsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// ServerConfig is the configuration for the remote ingest server.
type ServerConfig struct {
	App         ApplicationConfig `yaml:"app"`
	SQLite      SQLiteConfig      `yaml:"sqlite"`
	Attachments AttachmentsConfig `yaml:"attachments"`
	Auth        AuthConfig        `yaml:"auth"`
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Attachments.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// NewDefaultServerConfig returns a ServerConfig with sensible defaults.
func NewDefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./inkwell.db",
		},
		Attachments: AttachmentsConfig{
			Dir: "./attachments",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
