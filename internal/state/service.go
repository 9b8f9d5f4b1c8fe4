package state

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// ServiceManager queries and controls the agent's background service.
type ServiceManager interface {
	// Status returns the service's current state. Query failures read as
	// ServiceNotFound; status is a health probe, not an error source.
	Status(ctx context.Context, name string) ServiceState
	// Restart restarts the named service and waits for the control
	// command to exit.
	Restart(ctx context.Context, name string) error
}

// SystemdManager drives the host's systemd via systemctl, the same way
// the agent installer registers its unit.
type SystemdManager struct{}

// NewSystemdManager returns the systemctl-backed service manager.
func NewSystemdManager() *SystemdManager {
	return &SystemdManager{}
}

// Status shells out to systemctl show, which reports both whether the
// unit exists (LoadState) and whether it is active (ActiveState) in one
// call, without a nonzero exit for stopped units.
func (m *SystemdManager) Status(ctx context.Context, name string) ServiceState {
	cmd := exec.CommandContext(ctx, "systemctl", "show", name, "--property=LoadState,ActiveState") // #nosec G204 -- service name from config
	out, err := cmd.Output()
	if err != nil {
		log.Debug().Err(err).Str("service", name).Msg("systemctl query failed, treating service as not found")
		return ServiceNotFound
	}
	return parseSystemdShow(string(out))
}

// Restart issues systemctl restart and waits for it to complete.
func (m *SystemdManager) Restart(ctx context.Context, name string) error {
	cmd := exec.CommandContext(ctx, "systemctl", "restart", name) // #nosec G204 -- service name from config
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("restarting service %s: %w", name, err)
	}
	return nil
}

// parseSystemdShow maps systemctl show output onto the ServiceState enum.
func parseSystemdShow(out string) ServiceState {
	loadState, activeState := "", ""
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "LoadState":
			loadState = value
		case "ActiveState":
			activeState = value
		}
	}

	if loadState == "" || loadState == "not-found" {
		return ServiceNotFound
	}
	switch activeState {
	case "active":
		return ServiceRunning
	case "inactive", "failed", "dead":
		return ServiceStopped
	default:
		// activating, deactivating, reloading and friends
		return ServiceOther
	}
}
