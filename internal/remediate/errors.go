package remediate

import (
	"errors"
	"fmt"
)

// Sentinel errors for typed error checking.
var (
	ErrInstallerNotFound = errors.New("installer binary not found")
	ErrNoUninstallArgs   = errors.New("uninstall arguments not configured")
	ErrRunInProgress     = errors.New("a remediation run is already in progress")
)

// InstallerError wraps installer subprocess failures with context.
// These are journaled, never escalated; a run always completes and
// reports through its record.
type InstallerError struct {
	Op   string // "install" or "uninstall"
	Path string // binary that was invoked
	Err  error
}

func (e *InstallerError) Error() string {
	return fmt.Sprintf("%s via %s: %s", e.Op, e.Path, e.Err)
}

func (e *InstallerError) Unwrap() error {
	return e.Err
}
