package state

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// ConfigStore reads the site assignment the agent recorded locally.
type ConfigStore interface {
	// ReadAssignedSiteCode returns the locally stored site assignment.
	// Absence (missing file, missing key, unreadable store) is a valid
	// outcome and yields the unset SiteCode; it never returns an error.
	ReadAssignedSiteCode() SiteCode
}

// assignedSiteKey is the key the agent writes its site assignment under.
const assignedSiteKey = "assigned_site_code"

// FileStore reads the agent's key=value configuration file. This is the
// local configuration cache; the live assignment is held by the agent
// itself and queried through the admin API.
type FileStore struct {
	Path string
}

// NewFileStore returns a store backed by the agent config file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: filepath.Clean(path)}
}

// ReadAssignedSiteCode scans the config file for the assignment key.
// A first run has no file and no key; both read as unset.
func (s *FileStore) ReadAssignedSiteCode() SiteCode {
	f, err := os.Open(s.Path) // #nosec G304 -- path comes from config or CLI flag
	if err != nil {
		log.Debug().Err(err).Str("path", s.Path).Msg("agent config not readable, treating site code as unset")
		return SiteCode{}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(key), assignedSiteKey) {
			return NewSiteCode(value)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Debug().Err(err).Str("path", s.Path).Msg("agent config scan failed, treating site code as unset")
	}
	return SiteCode{}
}
