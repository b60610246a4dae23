package bootstrap_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ambrood/sitepulse/bootstrap"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewWithMemoryStore(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 0

database:
  driver: "memory"

recorder:
  mode: "sync"

metrics:
  enabled: false
`)

	a, err := bootstrap.New(bootstrap.Options{ConfigPath: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Shutdown()

	if a.Ingest == nil || a.Analytics == nil || a.Retention == nil || a.Reporter == nil {
		t.Fatal("services not wired")
	}
	if a.Store() == nil {
		t.Fatal("store not wired")
	}
	if a.DB != nil {
		t.Fatal("memory driver opened a database")
	}
	if a.HTTPServer == nil {
		t.Fatal("http server not wired")
	}
}

func TestNewWithSQLiteStore(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.db")
	path := writeConfig(t, `
database:
  driver: "sqlite"
  dsn: "`+dsn+`"

recorder:
  mode: "sync"

metrics:
  enabled: false
`)

	a, err := bootstrap.New(bootstrap.Options{ConfigPath: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Shutdown()

	if a.DB == nil {
		t.Fatal("sqlite driver did not open a database")
	}
}

func TestReloadAppliesThresholds(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: "memory"

recorder:
  mode: "sync"

metrics:
  enabled: false

analytics:
  exact_max_days: 90
`)

	a, err := bootstrap.New(bootstrap.Options{ConfigPath: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Shutdown()

	if got := a.Analytics.Thresholds().ExactMaxDays; got != 90 {
		t.Fatalf("initial ExactMaxDays = %d, want 90", got)
	}

	newContent := `
database:
  driver: "memory"

recorder:
  mode: "sync"

metrics:
  enabled: false

analytics:
  exact_max_days: 30
`
	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}
	if err := a.Config.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if got := a.Analytics.Thresholds().ExactMaxDays; got != 30 {
		t.Fatalf("reloaded ExactMaxDays = %d, want 30", got)
	}
}
