// Package session resolves the storage partition of a capture run.
//
// A partition is a UUID naming a per-run browser profile directory. Runs that
// share a partition share cookies and local storage, which is what lets a
// repeat run log in silently.
package session

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
)

// Application namespace, reverse-domain style.
const (
	Qualifier    = "moe"
	Organization = "skjsjhb"
	Application  = "LCAP"
)

// ResolvePartition parses raw as a UUID. When raw is empty or malformed a new
// random UUID is returned and generated is true. It never fails.
func ResolvePartition(raw string) (id uuid.UUID, generated bool) {
	if raw != "" {
		if parsed, err := uuid.Parse(raw); err == nil {
			return parsed, false
		}
	}
	return uuid.New(), true
}

// Locator computes filesystem locations. The zero value is not usable; use
// DefaultLocator or fill every field in tests.
type Locator struct {
	GOOS    string
	Getenv  func(string) string
	HomeDir func() (string, error)
	TempDir func() string
}

// DefaultLocator reads the real environment.
func DefaultLocator() Locator {
	return Locator{
		GOOS:    runtime.GOOS,
		Getenv:  os.Getenv,
		HomeDir: homedir.Dir,
		TempDir: os.TempDir,
	}
}

// DataLocalDir returns the per-user, machine-local data directory for the
// application, or "" when the platform location cannot be resolved.
func (l Locator) DataLocalDir() string {
	switch l.GOOS {
	case "windows":
		base := l.Getenv("LOCALAPPDATA")
		if base == "" || !filepath.IsAbs(base) {
			return ""
		}
		return filepath.Join(base, Application, "data")
	case "darwin":
		home, err := l.HomeDir()
		if err != nil || home == "" {
			return ""
		}
		return filepath.Join(home, "Library", "Application Support", Qualifier+"."+Organization+"."+Application)
	default:
		base := l.Getenv("XDG_DATA_HOME")
		if base == "" || !filepath.IsAbs(base) {
			home, err := l.HomeDir()
			if err != nil || home == "" {
				return ""
			}
			base = filepath.Join(home, ".local", "share")
		}
		return filepath.Join(base, "lcap")
	}
}

// CacheRoot returns the browser profile directory of partition id. When the
// platform directory is unknown it falls back to <home>/LCAP, then to
// <temp>/LCAP.
func (l Locator) CacheRoot(id uuid.UUID) string {
	if dir := l.DataLocalDir(); dir != "" {
		return filepath.Join(dir, id.String())
	}
	if home, err := l.HomeDir(); err == nil && home != "" {
		return filepath.Join(home, Application, id.String())
	}
	return filepath.Join(l.TempDir(), Application, id.String())
}

// CacheRoot is DefaultLocator().CacheRoot(id).
func CacheRoot(id uuid.UUID) string {
	return DefaultLocator().CacheRoot(id)
}
