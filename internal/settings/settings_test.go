package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "settings.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s != Default() {
		t.Fatalf("Load on missing file = %+v, want defaults %+v", s, Default())
	}
	if s.FixedPort != 52100 {
		t.Fatalf("default FixedPort = %d, want 52100", s.FixedPort)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "settings.yaml")
	want := Settings{
		FixedPort:          52200,
		AllowNetworkAccess: true,
		NetworkPort:        52300,
		LastTargetDatabase: "SalesModel",
	}
	if err := want.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Fatalf("round trip = %+v, want %+v", got, want)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("last_target_database: OnlyThis\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.LastTargetDatabase != "OnlyThis" {
		t.Fatalf("LastTargetDatabase = %q", got.LastTargetDatabase)
	}
	// Fields absent from the file fall back to defaults, not zero values.
	if got.FixedPort != 52100 {
		t.Fatalf("FixedPort = %d, want default 52100", got.FixedPort)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("fixed_port: [broken"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load on malformed file succeeded")
	}
}
