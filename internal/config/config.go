package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// WorkspaceDirName is the directory name for project-level panelqa config.
	WorkspaceDirName = ".panelqa"
	// WorkspaceConfigFile is the config file name inside the workspace directory.
	WorkspaceConfigFile = "config.yaml"
	// MaxSearchDepth limits how many parent directories to walk when discovering a workspace.
	MaxSearchDepth = 10
)

// WorkspaceOptions controls workspace discovery behavior.
type WorkspaceOptions struct {
	// Disable skips workspace discovery entirely (--no-workspace flag).
	Disable bool
	// ExplicitDir uses this directory as workspace root instead of walking up (--workspace-dir flag).
	ExplicitDir string
}

// Config captures all tunable settings for the panelqa runner.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logger     LoggerConfig     `yaml:"logger"`
	Browser    BrowserConfig    `yaml:"browser"`
	MCP        MCPConfig        `yaml:"mcp"`
	Mangle     MangleConfig     `yaml:"mangle"`
	Recorder   RecorderConfig   `yaml:"recorder"`
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	Timing     TimingConfig     `yaml:"timing"`
	Heuristics HeuristicsConfig `yaml:"heuristics"`
	Fuzz       FuzzConfig       `yaml:"fuzz"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// LoggerConfig configures the zap logger and its rotating file sink.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console | json
	// File enables the lumberjack sink when set.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
	// Console writes to stderr in addition to the file.
	Console bool `yaml:"console"`
}

// BrowserConfig configures how we attach to the already running Chrome.
type BrowserConfig struct {
	// Remote debugging endpoint, http://host:port or a ws:// URL.
	DebuggerURL string `yaml:"debugger_url"`
	// Timeout when attaching to the browser (e.g., "10s").
	AttachTimeout string `yaml:"attach_timeout"`
	// Timeout for direct URL navigation (e.g., "15s").
	NavigationTimeout string `yaml:"navigation_timeout"`
	// Upper bound for network-idle waits (e.g., "5s").
	IdleTimeout string `yaml:"idle_timeout"`
}

type MCPConfig struct {
	// When set, starts an SSE server on this port instead of stdio-only.
	SSEPort int `yaml:"sse_port"`
}

// MangleConfig controls the run journal.
type MangleConfig struct {
	Enable bool `yaml:"enable"`
	// SchemaPath overrides the embedded journal schema.
	SchemaPath      string `yaml:"schema_path"`
	FactBufferLimit int    `yaml:"fact_buffer_limit"`
}

// RecorderConfig controls the per-run JSONL trace.
type RecorderConfig struct {
	Enable bool   `yaml:"enable"`
	Dir    string `yaml:"dir"`
}

// WorkspaceConfig locates the working-file directory. CSV reads and writes,
// uploads and downloads all address files by name inside WorkDir.
type WorkspaceConfig struct {
	WorkDir string `yaml:"work_dir"`
}

// TimingConfig holds every wait window and pacing delay. Values are Go
// duration strings; empty or invalid values fall back to defaults.
type TimingConfig struct {
	StepDelay           string `yaml:"step_delay"`
	MenuReveal          string `yaml:"menu_reveal"`
	SpinnerAppear       string `yaml:"spinner_appear"`
	SpinnerTimeout      string `yaml:"spinner_timeout"`
	TableWait           string `yaml:"table_wait"`
	UploadWindow        string `yaml:"upload_window"`
	UploadConfirmWindow string `yaml:"upload_confirm_window"`
	UploadAttempts      int    `yaml:"upload_attempts"`
	DownloadTimeout     string `yaml:"download_timeout"`
	PollInterval        string `yaml:"poll_interval"`
	SaveToast           string `yaml:"save_toast"`
	SaveBackdrop        string `yaml:"save_backdrop"`
	FilterSettle        string `yaml:"filter_settle"`
	FieldRetry          string `yaml:"field_retry"`
	FieldAttempts       int    `yaml:"field_attempts"`
	TabSettle           string `yaml:"tab_settle"`
}

// Timings is TimingConfig with every value parsed.
type Timings struct {
	StepDelay           time.Duration
	MenuReveal          time.Duration
	SpinnerAppear       time.Duration
	SpinnerTimeout      time.Duration
	TableWait           time.Duration
	UploadWindow        time.Duration
	UploadConfirmWindow time.Duration
	UploadAttempts      int
	DownloadTimeout     time.Duration
	PollInterval        time.Duration
	SaveToast           time.Duration
	SaveBackdrop        time.Duration
	FilterSettle        time.Duration
	FieldRetry          time.Duration
	FieldAttempts       int
	TabSettle           time.Duration
}

// HeuristicsConfig holds the admin-panel specific lookup tables.
type HeuristicsConfig struct {
	// Synonyms maps a lowercase field key to alternative label texts.
	Synonyms map[string][]string `yaml:"synonyms"`
	// IDAliases maps a lowercase field key to an element id.
	IDAliases map[string]string `yaml:"id_aliases"`
	// QuantityKeys enable the blind numeric fallback in non-strict fills.
	QuantityKeys []string `yaml:"quantity_keys"`
	// SidebarKeywords are section names looked for when scanning tabs.
	SidebarKeywords []string `yaml:"sidebar_keywords"`
	// IDPrefixes pick the prefix used when regenerating identifiers. The
	// first entry whose fragment the column name contains wins.
	IDPrefixes []IDPrefix `yaml:"id_prefixes"`
	// DefaultIDPrefix applies when no fragment matches.
	DefaultIDPrefix string `yaml:"default_id_prefix"`
	// ForeignKeyColumns are never regenerated.
	ForeignKeyColumns []string `yaml:"foreign_key_columns"`
	// GatingColumn, when false-ish, clears GatedColumns.
	GatingColumn string   `yaml:"gating_column"`
	GatedColumns []string `yaml:"gated_columns"`
}

// IDPrefix maps a column-name fragment to an identifier prefix.
type IDPrefix struct {
	Fragment string `yaml:"fragment"`
	Prefix   string `yaml:"prefix"`
}

// FuzzConfig tunes the fuzz generator.
type FuzzConfig struct {
	// RandomPayloads adds this many seeded garbage cases per id-like column.
	RandomPayloads int   `yaml:"random_payloads"`
	Seed           int64 `yaml:"seed"`
}

// DefaultConfig provides reasonable defaults for local development.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:    "panelqa-runner",
			Version: "0.3.0",
		},
		Logger: LoggerConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  20,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Console:    true,
		},
		Browser: BrowserConfig{
			DebuggerURL:       "http://localhost:9222",
			AttachTimeout:     "10s",
			NavigationTimeout: "15s",
			IdleTimeout:       "5s",
		},
		Mangle: MangleConfig{
			Enable:          true,
			FactBufferLimit: 4096,
		},
		Recorder: RecorderConfig{
			Enable: true,
			Dir:    "traces",
		},
		Workspace: WorkspaceConfig{
			WorkDir: "downloads",
		},
		Timing: TimingConfig{
			StepDelay:           "1s",
			MenuReveal:          "500ms",
			SpinnerAppear:       "1s",
			SpinnerTimeout:      "60s",
			TableWait:           "10s",
			UploadWindow:        "90s",
			UploadConfirmWindow: "20s",
			UploadAttempts:      3,
			DownloadTimeout:     "30s",
			PollInterval:        "500ms",
			SaveToast:           "2s",
			SaveBackdrop:        "2s",
			FilterSettle:        "2s",
			FieldRetry:          "1s",
			FieldAttempts:       3,
			TabSettle:           "1s",
		},
		Heuristics: DefaultHeuristics(),
	}
}

// DefaultHeuristics returns the lookup tables tuned for the event admin panel.
func DefaultHeuristics() HeuristicsConfig {
	return HeuristicsConfig{
		Synonyms: map[string][]string{
			"id":       {"ffID", "New Event ID", "New ID", "BagID", "Gacha ID"},
			"gate":     {"ff_gate", "Gate", "Condition"},
			"currency": {"Currency", "Type", "Cost Type"},
			"cost":     {"HC Cost", "Price", "Amount"},
			"stock":    {"Initial Stock", "Limit", "Count"},
		},
		IDAliases: map[string]string{
			"paid-only": "category",
			"gate":      "gate",
		},
		QuantityKeys:    []string{"quantity", "weight", "cost", "stock"},
		SidebarKeywords: []string{"Grabbag Info", "Bag Token", "Display Info", "Odds", "Pulls & Pools"},
		IDPrefixes: []IDPrefix{
			{Fragment: "bagid", Prefix: "Grabbag_"},
			{Fragment: "boost", Prefix: "Boost_"},
			{Fragment: "wrestler", Prefix: "Wrestler_"},
			{Fragment: "perk", Prefix: "Perk_"},
			{Fragment: "offer", Prefix: "Offer_"},
		},
		DefaultIDPrefix:   "Auto_",
		ForeignKeyColumns: []string{"tab_id", "tabid", "group_id", "parent_id", "milestone_id", "type_id"},
		GatingColumn:      "ShowInStore",
		GatedColumns:      []string{"OfferDisplayID", "OfferParentID", "OfferSectionID"},
	}
}

// Load reads YAML config from disk and overlays defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// DiscoverWorkspace walks up from startDir looking for a .panelqa/config.yaml file.
// Returns the workspace root directory (parent of .panelqa/) or empty string if not found.
func DiscoverWorkspace(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving start directory: %w", err)
	}

	for i := 0; i < MaxSearchDepth; i++ {
		candidate := filepath.Join(dir, WorkspaceDirName, WorkspaceConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// LoadWithWorkspace implements multi-layer config merge:
//
//	DefaultConfig() <- .panelqa/config.yaml <- explicit --config <- CLI flags
//
// Returns the merged config and the workspace directory (empty if none found).
func LoadWithWorkspace(explicitConfig string, opts WorkspaceOptions) (Config, string, error) {
	cfg := DefaultConfig()
	wsDir := ""

	if !opts.Disable {
		var err error
		if opts.ExplicitDir != "" {
			candidate := filepath.Join(opts.ExplicitDir, WorkspaceDirName, WorkspaceConfigFile)
			if _, statErr := os.Stat(candidate); statErr == nil {
				wsDir = opts.ExplicitDir
			}
		} else {
			cwd, cwdErr := os.Getwd()
			if cwdErr != nil {
				return cfg, "", fmt.Errorf("getting working directory: %w", cwdErr)
			}
			wsDir, err = DiscoverWorkspace(cwd)
			if err != nil {
				return cfg, "", fmt.Errorf("discovering workspace: %w", err)
			}
		}

		if wsDir != "" {
			wsConfigPath := filepath.Join(wsDir, WorkspaceDirName, WorkspaceConfigFile)
			raw, err := os.ReadFile(wsConfigPath)
			if err != nil {
				return cfg, "", fmt.Errorf("reading workspace config %s: %w", wsConfigPath, err)
			}
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, "", fmt.Errorf("parsing workspace config %s: %w", wsConfigPath, err)
			}
			cfg = resolveWorkspacePaths(cfg, wsDir)
		}
	}

	if explicitConfig != "" {
		raw, err := os.ReadFile(explicitConfig)
		if err != nil {
			return cfg, wsDir, fmt.Errorf("reading explicit config %s: %w", explicitConfig, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, wsDir, fmt.Errorf("parsing explicit config %s: %w", explicitConfig, err)
		}
	}

	return cfg, wsDir, cfg.Validate()
}

// InitWorkspace creates a .panelqa/ directory with template files at root.
func InitWorkspace(root string) error {
	wsDir := filepath.Join(root, WorkspaceDirName)

	if _, err := os.Stat(wsDir); err == nil {
		return fmt.Errorf("workspace directory already exists: %s", wsDir)
	}

	for _, d := range []string{wsDir, filepath.Join(wsDir, "downloads"), filepath.Join(wsDir, "traces")} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	templateConfig := `# panelqa project-level configuration
# Values here override defaults but are overridden by --config and CLI flags.

# browser:
#   debugger_url: "http://localhost:9222"

# workspace:
#   work_dir: "downloads"

# timing:
#   upload_window: "90s"
#   step_delay: "1s"

# heuristics:
#   sidebar_keywords: ["Grabbag Info", "Odds"]
`
	configPath := filepath.Join(wsDir, WorkspaceConfigFile)
	if err := os.WriteFile(configPath, []byte(templateConfig), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	gitignoreContent := "# Runtime data (downloads, traces) - do not version control\ndownloads/\ntraces/\n"
	if err := os.WriteFile(filepath.Join(wsDir, ".gitignore"), []byte(gitignoreContent), 0644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	return nil
}

// resolveWorkspacePaths resolves relative paths in the config against the
// .panelqa directory.
func resolveWorkspacePaths(cfg Config, wsDir string) Config {
	base := filepath.Join(wsDir, WorkspaceDirName)
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}

	cfg.Logger.File = resolve(cfg.Logger.File)
	cfg.Mangle.SchemaPath = resolve(cfg.Mangle.SchemaPath)
	cfg.Recorder.Dir = resolve(cfg.Recorder.Dir)
	cfg.Workspace.WorkDir = resolve(cfg.Workspace.WorkDir)
	return cfg
}

// Validate ensures required fields exist so runs start deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	if c.Browser.DebuggerURL == "" {
		return errors.New("browser.debugger_url is required")
	}
	if c.Workspace.WorkDir == "" {
		return errors.New("workspace.work_dir is required")
	}
	switch strings.ToLower(c.Logger.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logger.format must be console or json, got %q", c.Logger.Format)
	}
	if c.Timing.UploadAttempts < 0 || c.Timing.FieldAttempts < 0 {
		return errors.New("timing attempt counts must not be negative")
	}
	return nil
}

func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}

func intOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// AttachTimeoutDuration returns the parsed attach timeout with a sane default.
func (b BrowserConfig) AttachTimeoutDuration() time.Duration {
	return durationOr(b.AttachTimeout, 10*time.Second)
}

// NavigationTimeoutDuration returns the parsed navigation timeout with a sane default.
func (b BrowserConfig) NavigationTimeoutDuration() time.Duration {
	return durationOr(b.NavigationTimeout, 15*time.Second)
}

// IdleTimeoutDuration returns the parsed network-idle bound with a sane default.
func (b BrowserConfig) IdleTimeoutDuration() time.Duration {
	return durationOr(b.IdleTimeout, 5*time.Second)
}

// Resolve parses every timing value, falling back to defaults.
func (t TimingConfig) Resolve() Timings {
	return Timings{
		StepDelay:           durationOr(t.StepDelay, time.Second),
		MenuReveal:          durationOr(t.MenuReveal, 500*time.Millisecond),
		SpinnerAppear:       durationOr(t.SpinnerAppear, time.Second),
		SpinnerTimeout:      durationOr(t.SpinnerTimeout, 60*time.Second),
		TableWait:           durationOr(t.TableWait, 10*time.Second),
		UploadWindow:        durationOr(t.UploadWindow, 90*time.Second),
		UploadConfirmWindow: durationOr(t.UploadConfirmWindow, 20*time.Second),
		UploadAttempts:      intOr(t.UploadAttempts, 3),
		DownloadTimeout:     durationOr(t.DownloadTimeout, 30*time.Second),
		PollInterval:        durationOr(t.PollInterval, 500*time.Millisecond),
		SaveToast:           durationOr(t.SaveToast, 2*time.Second),
		SaveBackdrop:        durationOr(t.SaveBackdrop, 2*time.Second),
		FilterSettle:        durationOr(t.FilterSettle, 2*time.Second),
		FieldRetry:          durationOr(t.FieldRetry, time.Second),
		FieldAttempts:       intOr(t.FieldAttempts, 3),
		TabSettle:           durationOr(t.TabSettle, time.Second),
	}
}

// Prefix returns the identifier prefix for column: the first configured
// fragment the column name contains, else the default.
func (h HeuristicsConfig) Prefix(column string) string {
	col := strings.ToLower(column)
	for _, p := range h.IDPrefixes {
		if p.Fragment != "" && strings.Contains(col, strings.ToLower(p.Fragment)) {
			return p.Prefix
		}
	}
	if h.DefaultIDPrefix != "" {
		return h.DefaultIDPrefix
	}
	return "Auto_"
}

// IsForeignKey reports whether column is excluded from id regeneration: its
// name contains one of the configured foreign-key fragments.
func (h HeuristicsConfig) IsForeignKey(column string) bool {
	col := strings.ToLower(strings.TrimSpace(column))
	for _, fk := range h.ForeignKeyColumns {
		if fk != "" && strings.Contains(col, strings.ToLower(fk)) {
			return true
		}
	}
	return false
}
