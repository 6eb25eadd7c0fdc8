package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lattice/internal/graphstore"
	"github.com/starford/lattice/internal/importer"
	"github.com/starford/lattice/internal/llm"
	"github.com/starford/lattice/internal/models"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Suggestion providers.
const (
	ProviderAuto     = "auto"
	ProviderOpenAI   = "openai"
	ProviderLocal    = "local"
	ProviderDisabled = "disabled"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	Workspace WorkspaceConfig   `yaml:"workspace"`
	Editor    EditorConfig      `yaml:"editor"`
	Suggest   SuggestConfig     `yaml:"suggest"`
	Import    ImportConfig      `yaml:"import"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []interface{ Validate() error }{
		&c.App, &c.SQLite, &c.Auth, &c.Workspace, &c.Editor, &c.Suggest, &c.Import,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	// GraphThrottle is the minimum gap between graph.updated events.
	GraphThrottle time.Duration `yaml:"graph_throttle"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.GraphThrottle, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}
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

// SQLiteConfig holds SQLite database configuration. With Enabled false the
// workspace lives in memory and starts from the seed on every run.
type SQLiteConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
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

// WorkspaceConfig holds knowledge graph settings.
type WorkspaceConfig struct {
	// DefaultSpace names the space imports land in.
	DefaultSpace string `yaml:"default_space"`
	// Spaces are created at startup unless a space with the name exists.
	Spaces []SpaceConfig `yaml:"spaces"`
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DefaultSpace, validation.Required),
		validation.Field(&c.Spaces),
	)
}

// Models converts the configured spaces.
func (c *WorkspaceConfig) Models() []models.Space {
	out := make([]models.Space, 0, len(c.Spaces))
	for _, sp := range c.Spaces {
		out = append(out, models.Space{Name: sp.Name, Color: sp.Color})
	}
	return out
}

// SpaceConfig declares a space.
type SpaceConfig struct {
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
}

// Validate validates the space declaration.
func (c SpaceConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required),
	)
}

// EditorConfig holds the edit debounce windows.
type EditorConfig struct {
	TitleDebounce   time.Duration `yaml:"title_debounce"`
	ContentDebounce time.Duration `yaml:"content_debounce"`
}

// Validate validates the editor configuration.
func (c *EditorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.TitleDebounce, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.ContentDebounce, validation.Required, validation.Min(time.Millisecond)),
	)
}

// SuggestConfig holds suggestion provider configuration.
//
// Provider selects the backend:
//   - "auto" (default): OpenAI when APIKey is set, otherwise local.
//   - "openai": OpenAI-compatible chat completions; APIKey is required.
//   - "local": keyword overlap, no network.
//   - "disabled": no suggestions.
type SuggestConfig struct {
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Debounce   time.Duration `yaml:"debounce"`
	Timeout    time.Duration `yaml:"timeout"`
	Rate       float64       `yaml:"rate"`
	Burst      int           `yaml:"burst"`
	MinOverlap int           `yaml:"min_overlap"`
}

// Validate validates the suggestion configuration.
func (c *SuggestConfig) Validate() error {
	if c.Provider == "" {
		c.Provider = ProviderAuto
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.In(ProviderAuto, ProviderOpenAI, ProviderLocal, ProviderDisabled)),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.Rate, validation.Min(0.0)),
		validation.Field(&c.Burst, validation.Min(0)),
		validation.Field(&c.MinOverlap, validation.Min(0)),
	); err != nil {
		return err
	}
	if c.Provider == ProviderOpenAI && c.APIKey == "" {
		return fmt.Errorf("suggest: provider is %q but api_key is empty", ProviderOpenAI)
	}
	return nil
}

// Backend resolves "auto" to the provider that will actually be used.
func (c *SuggestConfig) Backend() string {
	if c.Provider != ProviderAuto && c.Provider != "" {
		return c.Provider
	}
	if c.APIKey != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}

// OpenAI returns the OpenAI provider settings.
func (c *SuggestConfig) OpenAI() llm.OpenAIConfig {
	return llm.OpenAIConfig{
		APIKey:        c.APIKey,
		Model:         c.Model,
		BaseURL:       c.BaseURL,
		RatePerSecond: c.Rate,
		Burst:         c.Burst,
	}
}

// ImportConfig holds import source configuration.
type ImportConfig struct {
	// InboxDir is watched for .txt and .md files; empty disables the inbox.
	InboxDir          string        `yaml:"inbox_dir"`
	InboxDebounce     time.Duration `yaml:"inbox_debounce"`
	DeleteAfterImport bool          `yaml:"delete_after_import"`
	Drive             DriveConfig   `yaml:"drive"`
}

// Validate validates the import configuration.
func (c *ImportConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.InboxDebounce, validation.Min(time.Duration(0))),
	)
}

// DriveConfig holds Google Drive credentials. Drive import is off unless
// one of them is set.
type DriveConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	APIKey          string `yaml:"api_key"`
	Endpoint        string `yaml:"endpoint"`
}

// Source returns the importer settings.
func (c *DriveConfig) Source() importer.DriveConfig {
	return importer.DriveConfig{CredentialsFile: c.CredentialsFile, APIKey: c.APIKey, Endpoint: c.Endpoint}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
			GraphThrottle: 2 * time.Second,
		},
		SQLite: SQLiteConfig{
			Enabled: true,
			Path:    "./lattice.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Workspace: WorkspaceConfig{
			DefaultSpace: graphstore.DefaultSpaceName,
		},
		Editor: EditorConfig{
			TitleDebounce:   500 * time.Millisecond,
			ContentDebounce: time.Second,
		},
		Suggest: SuggestConfig{
			Provider:   ProviderAuto,
			Debounce:   time.Second,
			Timeout:    30 * time.Second,
			MinOverlap: 2,
		},
		Import: ImportConfig{
			InboxDebounce: 300 * time.Millisecond,
		},
	}
}
