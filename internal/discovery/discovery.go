// Package discovery locates candidate target instances by scanning the
// Analysis Services workspace directories that Power BI Desktop creates, one
// per open report. Each workspace carries a port file written by the engine
// on startup and a data directory named after the active database.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
)

const portFileName = "msmdsrv.port.txt"

// Instance is one running workspace candidate. Database is empty when the
// data directory has not been materialized yet; the caller treats that as
// "unknown", not as an error.
type Instance struct {
	ID       string
	Port     int
	Database string
	ModTime  time.Time
}

// DefaultRoot returns the conventional workspace root for the current user.
// The XMLABRIDGE_WORKSPACE_ROOT environment variable overrides it.
func DefaultRoot() (string, error) {
	if v := os.Getenv("XMLABRIDGE_WORKSPACE_ROOT"); v != "" {
		return v, nil
	}
	if runtime.GOOS == "windows" {
		local := os.Getenv("LOCALAPPDATA")
		if local == "" {
			return "", fmt.Errorf("LOCALAPPDATA not set")
		}
		return filepath.Join(local, "Microsoft", "Power BI Desktop", "AnalysisServicesWorkspaces"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".xmlabridge", "workspaces"), nil
}

// Scan walks the workspace root and returns every instance with a readable
// port file, ordered most-recently-modified first. Workspaces without a port
// file, or with an unparseable one, are skipped silently: a half-started
// engine is indistinguishable from a stale directory.
func Scan(root string) ([]Instance, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read workspace root %q: %w", root, err)
	}

	var instances []Instance
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		inst, ok := probeWorkspace(filepath.Join(root, entry.Name()), entry.Name())
		if ok {
			instances = append(instances, inst)
		}
	}

	sort.Slice(instances, func(i, j int) bool {
		return instances[i].ModTime.After(instances[j].ModTime)
	})
	return instances, nil
}

func probeWorkspace(dir, id string) (Instance, bool) {
	portPath := filepath.Join(dir, "Data", portFileName)
	info, err := os.Stat(portPath)
	if err != nil {
		portPath = filepath.Join(dir, portFileName)
		if info, err = os.Stat(portPath); err != nil {
			return Instance{}, false
		}
	}

	raw, err := os.ReadFile(portPath)
	if err != nil {
		return Instance{}, false
	}
	port, err := ParsePortFile(raw)
	if err != nil {
		return Instance{}, false
	}

	return Instance{
		ID:       id,
		Port:     port,
		Database: findDatabase(filepath.Join(dir, "Data")),
		ModTime:  info.ModTime(),
	}, true
}

// ParsePortFile decodes the engine's port file. msmdsrv writes it as
// UTF-16LE with a BOM; older builds and hand-edited files show up as
// UTF-16BE or plain UTF-8, so all three are accepted.
func ParsePortFile(raw []byte) (int, error) {
	text := decodePortText(raw)
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("empty port file")
	}
	port, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", text, err)
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}

func decodePortText(raw []byte) string {
	switch {
	case len(raw) >= 2 && raw[0] == 0xFF && raw[1] == 0xFE:
		return decodeUTF16(raw[2:], true)
	case len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF:
		return decodeUTF16(raw[2:], false)
	case len(raw) >= 3 && raw[0] == 0xEF && raw[1] == 0xBB && raw[2] == 0xBF:
		return string(raw[3:])
	case len(raw) >= 2 && len(raw)%2 == 0 && raw[1] == 0x00:
		// UTF-16LE without BOM: ASCII digits land in the low byte.
		return decodeUTF16(raw, true)
	default:
		return string(raw)
	}
}

func decodeUTF16(raw []byte, littleEndian bool) string {
	if len(raw)%2 != 0 {
		raw = raw[:len(raw)-1]
	}
	units := make([]uint16, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		if littleEndian {
			units = append(units, uint16(raw[i])|uint16(raw[i+1])<<8)
		} else {
			units = append(units, uint16(raw[i])<<8|uint16(raw[i+1]))
		}
	}
	return string(utf16.Decode(units))
}

// findDatabase returns the identifier of the workspace's active database,
// taken from the "<id>.0.db" directory under Data. Empty when absent.
func findDatabase(dataDir string) string {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() && strings.HasSuffix(name, ".db") {
			name = strings.TrimSuffix(name, ".db")
			if i := strings.LastIndex(name, "."); i >= 0 {
				name = name[:i]
			}
			return name
		}
	}
	return ""
}
