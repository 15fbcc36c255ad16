package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Name != "panelqa-runner" {
		t.Errorf("expected server name 'panelqa-runner', got %q", cfg.Server.Name)
	}
	if cfg.Browser.DebuggerURL != "http://localhost:9222" {
		t.Errorf("expected debugger url 'http://localhost:9222', got %q", cfg.Browser.DebuggerURL)
	}
	if cfg.Workspace.WorkDir != "downloads" {
		t.Errorf("expected work dir 'downloads', got %q", cfg.Workspace.WorkDir)
	}
	if !cfg.Mangle.Enable {
		t.Error("expected Mangle.Enable to be true")
	}
	if cfg.Mangle.SchemaPath != "" {
		t.Errorf("expected embedded schema by default, got %q", cfg.Mangle.SchemaPath)
	}
	if cfg.Timing.UploadAttempts != 3 {
		t.Errorf("expected 3 upload attempts, got %d", cfg.Timing.UploadAttempts)
	}
	if got := cfg.Heuristics.Synonyms["id"]; len(got) != 5 || got[0] != "ffID" {
		t.Errorf("unexpected id synonyms: %v", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	_, err := Load("")
	if err == nil {
		t.Fatal("expected error for empty path")
	}
	if err.Error() != "config path is required" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestLoadValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  name: "qa-staging"

browser:
  debugger_url: "ws://127.0.0.1:9333/devtools/browser/abc"
  attach_timeout: "3s"

workspace:
  work_dir: "/tmp/qa-files"

timing:
  upload_window: "20s"
  step_delay: "250ms"

heuristics:
  sidebar_keywords: ["Rewards"]
  synonyms:
    points: ["Point", "Score"]
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Name != "qa-staging" {
		t.Errorf("expected server name 'qa-staging', got %q", cfg.Server.Name)
	}
	if cfg.Browser.AttachTimeoutDuration() != 3*time.Second {
		t.Errorf("expected attach timeout 3s, got %v", cfg.Browser.AttachTimeoutDuration())
	}
	timings := cfg.Timing.Resolve()
	if timings.UploadWindow != 20*time.Second {
		t.Errorf("expected upload window 20s, got %v", timings.UploadWindow)
	}
	if timings.StepDelay != 250*time.Millisecond {
		t.Errorf("expected step delay 250ms, got %v", timings.StepDelay)
	}
	if timings.SpinnerTimeout != 60*time.Second {
		t.Errorf("expected default spinner timeout, got %v", timings.SpinnerTimeout)
	}
	if len(cfg.Heuristics.SidebarKeywords) != 1 || cfg.Heuristics.SidebarKeywords[0] != "Rewards" {
		t.Errorf("expected sidebar keywords override, got %v", cfg.Heuristics.SidebarKeywords)
	}
	if _, ok := cfg.Heuristics.Synonyms["id"]; !ok {
		t.Error("expected default synonyms to survive a partial override")
	}
	if got := cfg.Heuristics.Synonyms["points"]; len(got) != 2 {
		t.Errorf("expected added synonyms, got %v", got)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(configPath, []byte("server: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(configPath); err == nil {
		t.Error("expected YAML parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"missing name", func(c *Config) { c.Server.Name = "" }, false},
		{"missing debugger", func(c *Config) { c.Browser.DebuggerURL = "" }, false},
		{"missing work dir", func(c *Config) { c.Workspace.WorkDir = "" }, false},
		{"bad log format", func(c *Config) { c.Logger.Format = "xml" }, false},
		{"negative attempts", func(c *Config) { c.Timing.UploadAttempts = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestTimingFallbacks(t *testing.T) {
	timings := TimingConfig{UploadWindow: "not-a-duration", PollInterval: "-1s"}.Resolve()
	if timings.UploadWindow != 90*time.Second {
		t.Errorf("expected fallback upload window, got %v", timings.UploadWindow)
	}
	if timings.PollInterval != 500*time.Millisecond {
		t.Errorf("expected fallback poll interval, got %v", timings.PollInterval)
	}
	if timings.UploadAttempts != 3 || timings.FieldAttempts != 3 {
		t.Errorf("expected default attempt counts, got %d/%d", timings.UploadAttempts, timings.FieldAttempts)
	}
}

func TestBrowserDurations(t *testing.T) {
	b := BrowserConfig{}
	if b.AttachTimeoutDuration() != 10*time.Second {
		t.Errorf("unexpected attach default %v", b.AttachTimeoutDuration())
	}
	if b.NavigationTimeoutDuration() != 15*time.Second {
		t.Errorf("unexpected navigation default %v", b.NavigationTimeoutDuration())
	}
	if b.IdleTimeoutDuration() != 5*time.Second {
		t.Errorf("unexpected idle default %v", b.IdleTimeoutDuration())
	}
}

func TestHeuristicsPrefix(t *testing.T) {
	h := DefaultHeuristics()
	cases := map[string]string{
		"BagID":         "Grabbag_",
		"BoostItemID":   "Boost_",
		"WrestlerKey":   "Wrestler_",
		"PerkID":        "Perk_",
		"OfferID":       "Offer_",
		"EventID":       "Auto_",
		"boost_offerid": "Boost_",
	}
	for col, want := range cases {
		if got := h.Prefix(col); got != want {
			t.Errorf("Prefix(%q) = %q, want %q", col, got, want)
		}
	}
	if got := (HeuristicsConfig{}).Prefix("x"); got != "Auto_" {
		t.Errorf("expected Auto_ without table, got %q", got)
	}
}

func TestHeuristicsPrefixFirstMatchIsStable(t *testing.T) {
	h := DefaultHeuristics()
	for i := 0; i < 200; i++ {
		if got := h.Prefix("offer_boostid"); got != "Boost_" {
			t.Fatalf("call %d: Prefix(offer_boostid) = %q, want Boost_", i, got)
		}
	}

	h.IDPrefixes = append([]IDPrefix{{Fragment: "offer", Prefix: "Offer_"}}, h.IDPrefixes...)
	if got := h.Prefix("offer_boostid"); got != "Offer_" {
		t.Errorf("earlier entry should win, got %q", got)
	}
	h.DefaultIDPrefix = "Gen_"
	if got := h.Prefix("EventID"); got != "Gen_" {
		t.Errorf("configured default ignored, got %q", got)
	}
}

func TestLoadIDPrefixesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	raw := "heuristics:\n  id_prefixes:\n    - fragment: gacha\n      prefix: Gacha_\n  default_id_prefix: X_\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Heuristics.Prefix("GachaID"); got != "Gacha_" {
		t.Errorf("Prefix(GachaID) = %q", got)
	}
	if got := cfg.Heuristics.Prefix("BagID"); got != "X_" {
		t.Errorf("replaced table should drop defaults, got %q", got)
	}
}

func TestHeuristicsForeignKey(t *testing.T) {
	h := DefaultHeuristics()
	if !h.IsForeignKey("Tab_ID") {
		t.Error("expected Tab_ID to be a foreign key")
	}
	if h.IsForeignKey("BagID") {
		t.Error("BagID is not a foreign key")
	}
}
