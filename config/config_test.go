package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.MaxIterations != 6 {
		t.Fatalf("expected default max iterations 6, got %d", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.AllowNetwork {
		t.Fatalf("network must be disabled by default")
	}
	if cfg.Agent.CollectorTimeout != 20*time.Second {
		t.Fatalf("unexpected collector timeout %s", cfg.Agent.CollectorTimeout)
	}
	if cfg.Search.Provider != "serpapi" {
		t.Fatalf("unexpected search provider %q", cfg.Search.Provider)
	}
	if cfg.Server.MaxIterations != 20 || cfg.RunLog.Index.MaxRuns != 1000 {
		t.Fatalf("unexpected server/index bounds %d/%d", cfg.Server.MaxIterations, cfg.RunLog.Index.MaxRuns)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "osinthunter.yaml")
	body := strings.Join([]string{
		"agent:",
		"  max_iterations: 3",
		"  collectors: [text-analysis, url-investigation]",
		"search:",
		"  provider: Brave",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SHODAN_API_KEY", "shodan-key")
	t.Setenv("OSINTHUNTER_ALLOW_NETWORK", "true")
	t.Setenv("OSINTHUNTER_SERVER_ADDRESS", ":9999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.MaxIterations != 3 {
		t.Fatalf("expected max iterations from file, got %d", cfg.Agent.MaxIterations)
	}
	if diff := cmp.Diff([]string{"text-analysis", "url-investigation"}, cfg.Agent.Collectors); diff != "" {
		t.Fatalf("collectors mismatch (-want +got):\n%s", diff)
	}
	if cfg.Search.Provider != "brave" {
		t.Fatalf("expected provider to be normalised, got %q", cfg.Search.Provider)
	}
	if cfg.Credentials.Shodan != "shodan-key" {
		t.Fatalf("expected legacy env key to bind, got %q", cfg.Credentials.Shodan)
	}
	if !cfg.Agent.AllowNetwork {
		t.Fatalf("expected allow_network from env")
	}
	if cfg.Server.Address != ":9999" {
		t.Fatalf("expected prefixed env override, got %q", cfg.Server.Address)
	}
}

func TestLoadRejectsNegativeIterations(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("OSINTHUNTER_MAX_ITERATIONS", "-1")

	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "max_iterations") {
		t.Fatalf("expected max_iterations validation error, got %v", err)
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	s := SearchConfig{Provider: "altavista", MaxResults: 3}
	if err := s.Validate(); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestNormalizeNames(t *testing.T) {
	got := normalizeNames([]string{"text-analysis,whois", " shodan ", ""})
	want := []string{"text-analysis", "whois", "shodan"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsNegativeServerIterationCap(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("OSINTHUNTER_SERVER_MAX_ITERATIONS", "-5")

	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "server.max_iterations") {
		t.Fatalf("expected server.max_iterations validation error, got %v", err)
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent to testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore cwd: %v", err)
		}
	})
}
