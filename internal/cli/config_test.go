package cli

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigSaveAndLoad(t *testing.T) {
	// Use a temp dir as home
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)

	cfg := CLIConfig{
		ServerURL: "http://myhost:9090",
		User:      "alice",
	}

	if err := saveConfig(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	path := filepath.Join(tmp, ".config", "ptc", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not found: %v", err)
	}

	loaded, err := loadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != cfg {
		t.Errorf("loaded = %+v, want %+v", loaded, cfg)
	}
}

func TestConfigLoadMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if cfg != (CLIConfig{}) {
		t.Error("expected zero-value config for missing file")
	}
}

func TestConfigLoadInvalid(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)

	path := filepath.Join(tmp, ".config", "ptc", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("user: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := loadConfig(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestGetServerURL(t *testing.T) {
	tests := []struct {
		name   string
		flag   string
		env    string
		config string
		want   string
	}{
		{"default", "", "", "", "http://localhost:8080"},
		{"config", "", "", "http://cfg:1", "http://cfg:1"},
		{"env over config", "", "http://env:2", "http://cfg:1", "http://env:2"},
		{"flag over env", "http://flag:3", "http://env:2", "http://cfg:1", "http://flag:3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			t.Setenv("PTC_SERVER_URL", tt.env)
			if tt.config != "" {
				if err := saveConfig(CLIConfig{ServerURL: tt.config}); err != nil {
					t.Fatalf("save: %v", err)
				}
			}
			flagServer = tt.flag
			defer func() { flagServer = "" }()

			if got := getServerURL(); got != tt.want {
				t.Errorf("url = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetUser(t *testing.T) {
	tests := []struct {
		name   string
		flag   string
		env    string
		config string
		want   string
	}{
		{"none", "", "", "", ""},
		{"config", "", "", "carol", "carol"},
		{"env over config", "", "bob", "carol", "bob"},
		{"flag over env", "alice", "bob", "carol", "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			t.Setenv("PTC_USER", tt.env)
			if tt.config != "" {
				if err := saveConfig(CLIConfig{User: tt.config}); err != nil {
					t.Fatalf("save: %v", err)
				}
			}
			flagUser = tt.flag
			defer func() { flagUser = "" }()

			if got := getUser(); got != tt.want {
				t.Errorf("user = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequireUser(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PTC_USER", "")

	if _, err := requireUser(); err == nil {
		t.Fatal("expected error with no user configured")
	}

	t.Setenv("PTC_USER", "dana")
	user, err := requireUser()
	if err != nil || user != "dana" {
		t.Errorf("requireUser() = %q, %v", user, err)
	}
}
