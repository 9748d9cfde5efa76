package discovery

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func utf16le(s string, bom bool) []byte {
	var out []byte
	if bom {
		out = append(out, 0xFF, 0xFE)
	}
	for _, r := range s {
		out = append(out, byte(r), byte(r>>8))
	}
	return out
}

func utf16be(s string, bom bool) []byte {
	var out []byte
	if bom {
		out = append(out, 0xFE, 0xFF)
	}
	for _, r := range s {
		out = append(out, byte(r>>8), byte(r))
	}
	return out
}

func TestParsePortFile(t *testing.T) {
	cases := []struct {
		name    string
		raw     []byte
		want    int
		wantErr bool
	}{
		{name: "utf16le with bom", raw: utf16le("51234", true), want: 51234},
		{name: "utf16be with bom", raw: utf16be("51234", true), want: 51234},
		{name: "utf16le without bom", raw: utf16le("443", false), want: 443},
		{name: "utf8 with bom", raw: []byte{0xEF, 0xBB, 0xBF, '8', '0', '8', '0'}, want: 8080},
		{name: "plain utf8", raw: []byte("65000"), want: 65000},
		{name: "trailing whitespace", raw: utf16le("51234\r\n", true), want: 51234},
		{name: "empty", raw: nil, wantErr: true},
		{name: "not a number", raw: []byte("abc"), wantErr: true},
		{name: "out of range", raw: []byte("70000"), wantErr: true},
		{name: "zero", raw: []byte("0"), wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParsePortFile(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParsePortFile = %d, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePortFile: %v", err)
			}
			if got != tc.want {
				t.Fatalf("ParsePortFile = %d, want %d", got, tc.want)
			}
		})
	}
}

// writeWorkspace lays out one workspace directory the way the engine does:
// Data/msmdsrv.port.txt plus an optional <db>.0.db directory.
func writeWorkspace(t *testing.T, root, id, port, database string) string {
	t.Helper()
	dataDir := filepath.Join(root, id, "Data")
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if port != "" {
		if err := os.WriteFile(filepath.Join(dataDir, portFileName), utf16le(port, true), 0o600); err != nil {
			t.Fatalf("write port file: %v", err)
		}
	}
	if database != "" {
		if err := os.Mkdir(filepath.Join(dataDir, database+".0.db"), 0o750); err != nil {
			t.Fatalf("mkdir db: %v", err)
		}
	}
	return filepath.Join(root, id)
}

func TestScan(t *testing.T) {
	root := t.TempDir()

	writeWorkspace(t, root, "AnalysisServicesWorkspace_old", "50001", "11112222-3333-4444-5555-666677778888")
	writeWorkspace(t, root, "AnalysisServicesWorkspace_new", "50002", "aabbccdd-0000-1111-2222-333344445555")
	// No port file: must be skipped.
	writeWorkspace(t, root, "AnalysisServicesWorkspace_stale", "", "")
	// Garbage port file: must be skipped too.
	badDir := filepath.Join(root, "AnalysisServicesWorkspace_bad", "Data")
	if err := os.MkdirAll(badDir, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(badDir, portFileName), []byte("not a port"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Pin modification times so the ordering is deterministic.
	now := time.Now()
	oldPort := filepath.Join(root, "AnalysisServicesWorkspace_old", "Data", portFileName)
	newPort := filepath.Join(root, "AnalysisServicesWorkspace_new", "Data", portFileName)
	if err := os.Chtimes(oldPort, now.Add(-time.Hour), now.Add(-time.Hour)); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if err := os.Chtimes(newPort, now, now); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	instances, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(instances) != 2 {
		t.Fatalf("Scan returned %d instances, want 2: %+v", len(instances), instances)
	}
	if instances[0].ID != "AnalysisServicesWorkspace_new" {
		t.Fatalf("newest instance is %q, want the recently modified one", instances[0].ID)
	}
	if instances[0].Port != 50002 {
		t.Fatalf("newest instance port = %d, want 50002", instances[0].Port)
	}
	if instances[0].Database != "aabbccdd-0000-1111-2222-333344445555" {
		t.Fatalf("newest instance database = %q", instances[0].Database)
	}
	if instances[1].Port != 50001 {
		t.Fatalf("older instance port = %d, want 50001", instances[1].Port)
	}
}

func TestScanPortFileAtWorkspaceRoot(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "ws")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// Some engine versions drop the port file next to Data instead of inside.
	if err := os.WriteFile(filepath.Join(dir, portFileName), []byte("50100"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	instances, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("Scan returned %d instances, want 1", len(instances))
	}
	if instances[0].Port != 50100 {
		t.Fatalf("port = %d, want 50100", instances[0].Port)
	}
	if instances[0].Database != "" {
		t.Fatalf("database = %q, want empty when no Data dir exists", instances[0].Database)
	}
}

func TestScanMissingRoot(t *testing.T) {
	if _, err := Scan(filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Fatal("Scan on missing root succeeded")
	}
}

func TestFindDatabase(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "Data")
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if got := findDatabase(dataDir); got != "" {
		t.Fatalf("findDatabase on empty dir = %q", got)
	}

	// A stray file with the suffix must not count, only directories do.
	if err := os.WriteFile(filepath.Join(dataDir, "notadir.0.db"), nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := findDatabase(dataDir); got != "" {
		t.Fatalf("findDatabase matched a file: %q", got)
	}

	if err := os.Mkdir(filepath.Join(dataDir, "deadbeef-1234.0.db"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if got := findDatabase(dataDir); got != "deadbeef-1234" {
		t.Fatalf("findDatabase = %q, want %q", got, "deadbeef-1234")
	}
}

func TestDefaultRootOverride(t *testing.T) {
	t.Setenv("XMLABRIDGE_WORKSPACE_ROOT", "/custom/workspaces")
	root, err := DefaultRoot()
	if err != nil {
		t.Fatalf("DefaultRoot: %v", err)
	}
	if root != "/custom/workspaces" {
		t.Fatalf("DefaultRoot = %q, want override", root)
	}
}
