package cli

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/evcraddock/proptech-copilot/internal/audit"
	"github.com/evcraddock/proptech-copilot/internal/config"
	"github.com/evcraddock/proptech-copilot/internal/scenario/scenariotest"
	"github.com/evcraddock/proptech-copilot/internal/web"
)

func testAPI(t *testing.T) (*scenariotest.Fixture, string) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	f := scenariotest.New(t)
	srv := httptest.NewServer(web.NewServer(f.Service, nil))
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func TestRemoteCloseAndReset(t *testing.T) {
	f, url := testAPI(t)
	ctx := context.Background()

	if _, err := executeCommand("close", "prop_001", "7,8", "--user", "alice", "--server", url); err != nil {
		t.Fatalf("close: %v", err)
	}
	v, err := f.Service.EffectiveView(ctx, "alice", "prop_001")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(v.ClosedFloors) != 2 {
		t.Errorf("closed floors = %v, want [7 8]", v.ClosedFloors)
	}

	if _, err := executeCommand("open", "prop_001", "8", "--user", "alice", "--server", url, "--format", "json"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := executeCommand("reset-all", "--user", "alice", "--server", url); err != nil {
		t.Fatalf("reset-all: %v", err)
	}
	v, err = f.Service.EffectiveView(ctx, "alice", "prop_001")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if v.HasOverride {
		t.Error("override survived reset-all")
	}

	changes, err := f.Ledger.Query(ctx, "alice", audit.Filter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(changes) != 3 {
		t.Errorf("got %d changes, want 3", len(changes))
	}
}

func TestRemoteSessionAttribution(t *testing.T) {
	f, url := testAPI(t)
	ctx := context.Background()

	sess, err := f.Service.CreateSession(ctx, "alice", "test", "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := executeCommand("close", "prop_002", "4", "--user", "alice", "--server", url, "--session", sess.SessionID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := executeCommand("session", "end", sess.SessionID, "--user", "alice", "--server", url); err != nil {
		t.Fatalf("end: %v", err)
	}

	summary, err := f.Service.SessionSummary(ctx, "alice", sess.SessionID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Active || summary.TotalChanges != 1 {
		t.Errorf("summary = %+v", summary.Session)
	}
}

func TestRemoteReadCommands(t *testing.T) {
	_, url := testAPI(t)

	for _, args := range [][]string{
		{"properties"},
		{"view", "prop_001"},
		{"overlays"},
		{"changes", "--limit", "5"},
		{"stats"},
		{"history", "property_state", "prop_001"},
		{"session", "list"},
		{"recommend", "prop_002"},
		{"forecast", "prop_001"},
		{"risk", "prop_002"},
		{"params", "prop_001", "--hybrid", "0.8"},
	} {
		for _, format := range []string{"text", "json"} {
			full := append(append([]string{}, args...), "--user", "alice", "--server", url, "--format", format)
			if _, err := executeCommand(full...); err != nil {
				t.Errorf("%v: %v", full, err)
			}
		}
	}
}

func TestRemoteErrorsSurface(t *testing.T) {
	_, url := testAPI(t)

	if _, err := executeCommand("view", "nope", "--user", "alice", "--server", url); err == nil {
		t.Error("expected error for unknown property")
	}
	if _, err := executeCommand("close", "prop_001", "99", "--user", "alice", "--server", url); err == nil {
		t.Error("expected error for out-of-range floor")
	}
}

func TestBuildStack(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		DBPath:         filepath.Join(dir, "ptc.db"),
		BaselinePath:   filepath.Join("..", "..", "baseline.example.yaml"),
		StorageTimeout: time.Second,
		GridFactor:     0.82,
	}
	st, err := buildStack(cfg, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer st.Close()

	views, err := st.svc.Portfolio(context.Background(), "alice")
	if err != nil {
		t.Fatalf("portfolio: %v", err)
	}
	if len(views) != 3 {
		t.Errorf("got %d views, want 3", len(views))
	}
}

func TestBuildStackMissingBaseline(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		DBPath:         filepath.Join(dir, "ptc.db"),
		BaselinePath:   filepath.Join(dir, "missing.yaml"),
		StorageTimeout: time.Second,
		GridFactor:     0.82,
	}
	if _, err := buildStack(cfg, nil); err == nil {
		t.Fatal("expected error for missing baseline file")
	}
}
