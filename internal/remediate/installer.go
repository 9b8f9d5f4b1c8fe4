package remediate

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// InstallerRunner abstracts the agent installer binary so the workflow
// can be tested without spawning processes.
type InstallerRunner interface {
	// ActivePath is the installer binary the next invocation will use.
	ActivePath() string
	// RemotePath is the network copy of the installer.
	RemotePath() string
	// RemoteReachable reports whether the network copy can be reached.
	RemoteReachable() bool
	// Uninstall removes the current agent instance and waits for the
	// subprocess to exit. On success the active path is redirected to
	// the remote copy, since the local copy may remove itself.
	Uninstall(ctx context.Context) error
	// Install invokes the installer with the setup argument string and
	// waits for the subprocess to exit.
	Install(ctx context.Context, args string) error
}

// Installer invokes the agent installer binary. Only success or failure
// is captured; installer output goes nowhere. No timeout is imposed on
// the subprocess; callers needing bounded execution cancel the context.
type Installer struct {
	remotePath    string
	localPath     string
	uninstallArgs string
	activePath    string

	// Overridable in tests; default spawns the real subprocess.
	run  func(ctx context.Context, path string, args []string) error
	stat func(path string) error
}

// NewInstaller resolves the active installer path: the local copy when
// it exists, otherwise the remote copy.
func NewInstaller(remotePath, localPath, uninstallArgs string) *Installer {
	i := &Installer{
		remotePath:    remotePath,
		localPath:     localPath,
		uninstallArgs: uninstallArgs,
		run:           runCommand,
		stat:          statPath,
	}

	i.activePath = remotePath
	if localPath != "" {
		if err := i.stat(localPath); err == nil {
			i.activePath = localPath
		} else {
			log.Debug().Str("path", localPath).Msg("local installer not present, using remote copy")
		}
	}
	return i
}

func (i *Installer) ActivePath() string {
	return i.activePath
}

func (i *Installer) RemotePath() string {
	return i.remotePath
}

func (i *Installer) RemoteReachable() bool {
	return i.stat(i.remotePath) == nil
}

func (i *Installer) Uninstall(ctx context.Context) error {
	path := i.activePath
	if strings.TrimSpace(i.uninstallArgs) == "" {
		// Without the uninstall directive the binary would run an install.
		return &InstallerError{Op: "uninstall", Path: path, Err: ErrNoUninstallArgs}
	}
	if err := i.stat(path); err != nil {
		return &InstallerError{Op: "uninstall", Path: path, Err: ErrInstallerNotFound}
	}
	if err := i.run(ctx, path, strings.Fields(i.uninstallArgs)); err != nil {
		return &InstallerError{Op: "uninstall", Path: path, Err: err}
	}
	// The uninstall may have deleted the local copy along with the agent.
	i.activePath = i.remotePath
	return nil
}

func (i *Installer) Install(ctx context.Context, args string) error {
	path := i.activePath
	if err := i.stat(path); err != nil {
		return &InstallerError{Op: "install", Path: path, Err: ErrInstallerNotFound}
	}
	if err := i.run(ctx, path, strings.Fields(args)); err != nil {
		return &InstallerError{Op: "install", Path: path, Err: err}
	}
	return nil
}

func runCommand(ctx context.Context, path string, args []string) error {
	cmd := exec.CommandContext(ctx, path, args...) // #nosec G204 -- installer path and args from config/CLI
	return cmd.Run()
}

func statPath(path string) error {
	_, err := os.Stat(path)
	return err
}
