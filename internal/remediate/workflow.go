// Package remediate validates an endpoint's agent installation against
// its expected configuration and repairs it when the check fails. The
// path is linear: read state, decide, optionally reinstall, re-read,
// optionally force the site assignment, record. Nothing inside a run is
// fatal; every path produces a complete execution record.
package remediate

import (
	"context"
	"fmt"
	"time"

	"agent-remediator/internal/adminapi"
	"agent-remediator/internal/engine"
	"agent-remediator/internal/monitor"
	"agent-remediator/internal/record"
	"agent-remediator/internal/state"
)

// Params are the per-run inputs, typically from CLI flags or an API
// request.
type Params struct {
	ExpectedSiteCode    state.SiteCode
	ManagementPoint     string
	RemoteInstallerPath string // network copy of the installer binary
	SetupArgs           string // empty derives the default from site and management point
	UninstallFirst      bool
	ForceInstall        bool
	CheckOnly           bool // evaluate and report without remediating
}

// Validate rejects runs that cannot be evaluated at all. Everything
// past this point is non-fatal.
func (p Params) Validate() error {
	if !p.ExpectedSiteCode.IsSet() {
		return fmt.Errorf("expected site code is required")
	}
	if p.ManagementPoint == "" {
		return fmt.Errorf("management point is required")
	}
	if p.RemoteInstallerPath == "" {
		return fmt.Errorf("remote installer path is required")
	}
	return nil
}

// InstallArgs returns the setup argument string, deriving the default
// when none was given.
func (p Params) InstallArgs() string {
	if p.SetupArgs != "" {
		return p.SetupArgs
	}
	return fmt.Sprintf("--management-point=%s --site-code=%s", p.ManagementPoint, p.ExpectedSiteCode.Value())
}

// Workflow wires the collaborators one remediation run needs. All
// fields except Metrics and Tracer are required.
type Workflow struct {
	Store       state.ConfigStore
	Services    state.ServiceManager
	Admin       adminapi.Client
	Installer   InstallerRunner
	ServiceName string
	Domain      string

	Metrics *monitor.Metrics
	Tracer  *monitor.Tracer
}

// Run executes one remediation pass and returns the completed record.
// It never returns an error: subprocess, service and API failures are
// journaled and reflected in the record's Passed/Remediated flags.
func (w *Workflow) Run(ctx context.Context, p Params) *record.ExecutionRecord {
	rec := record.New(p.ExpectedSiteCode, p.ManagementPoint)
	rec.Domain = w.Domain
	rec.UninstallFirst = p.UninstallFirst
	rec.ForceInstall = p.ForceInstall
	rec.InstallArgs = p.InstallArgs()
	rec.InstallerPath = w.Installer.ActivePath()

	ctx, span := w.Tracer.StartSpan(ctx, "run",
		monitor.AttrRunID.String(rec.RunID),
		monitor.AttrExpectedSite.String(p.ExpectedSiteCode.Value()),
	)
	defer span.End()

	rec.Logf("Remediation run %s starting on %s.", rec.RunID, rec.Hostname)

	assigned := w.Store.ReadAssignedSiteCode()
	svc := w.Services.Status(ctx, w.ServiceName)
	rec.InitialSiteCode, rec.FinalSiteCode = assigned, assigned
	rec.InitialServiceState, rec.FinalServiceState = svc, svc
	rec.Logf("Assigned site code is %s; service %s is %s.", assigned, w.ServiceName, svc)

	decision := engine.Evaluate(engine.Input{
		Expected:     p.ExpectedSiteCode,
		Assigned:     assigned,
		ServiceState: svc,
		ForceInstall: p.ForceInstall,
	})
	rec.Logf("%s", decision.Narration)
	rec.SetPassed(decision.Passed)
	if w.Metrics != nil {
		w.Metrics.RecordDecision(string(decision.Reason))
	}
	span.SetAttributes(
		monitor.AttrAssignedSite.String(assigned.String()),
		monitor.AttrServiceState.String(svc.String()),
	)

	if decision.Passed || p.CheckOnly {
		if !decision.Passed {
			rec.Logf("Check-only run; remediation skipped.")
		}
		return w.finish(ctx, rec)
	}

	w.reinstall(ctx, rec, p, svc)

	assigned = w.Store.ReadAssignedSiteCode()
	svc = w.Services.Status(ctx, w.ServiceName)
	rec.FinalSiteCode, rec.FinalServiceState = assigned, svc
	rec.Logf("Post-install state: site %s, service %s.", assigned, svc)

	if !assigned.Equal(p.ExpectedSiteCode) && svc == state.ServiceRunning {
		assigned, svc = w.reassign(ctx, rec, p.ExpectedSiteCode)
		rec.FinalSiteCode, rec.FinalServiceState = assigned, svc
	}

	w.confirm(ctx, rec, p.ExpectedSiteCode, assigned, svc)
	return w.finish(ctx, rec)
}

// reinstall performs the optional uninstall followed by the install.
// Both steps are fault-tolerant: failures are journaled and the run
// proceeds so re-validation can report the true final state.
func (w *Workflow) reinstall(ctx context.Context, rec *record.ExecutionRecord, p Params, svc state.ServiceState) {
	if p.UninstallFirst {
		switch {
		case !w.Installer.RemoteReachable():
			// Uninstalling without a reachable remote copy could leave
			// the endpoint with no usable installer at all.
			rec.Logf("Warning: remote installer path %s is unreachable; skipping uninstall.", w.Installer.RemotePath())
		case svc == state.ServiceNotFound:
			rec.Logf("No existing agent instance; skipping uninstall.")
		default:
			rec.Logf("Uninstalling existing agent via %s.", w.Installer.ActivePath())
			if err := w.Installer.Uninstall(ctx); err != nil {
				rec.Logf("Uninstall failed: %v. Proceeding to install.", err)
				w.recordInstaller("uninstall", "failed")
			} else {
				rec.Logf("Uninstall succeeded; installer path is now %s.", w.Installer.ActivePath())
				rec.InstallerPath = w.Installer.ActivePath()
				w.recordInstaller("uninstall", "success")
			}
		}
	}

	args := p.InstallArgs()
	rec.Logf("Installing agent: %s %s", w.Installer.ActivePath(), args)
	if err := w.Installer.Install(ctx, args); err != nil {
		rec.Logf("Install failed: %v.", err)
		w.recordInstaller("install", "failed")
	} else {
		rec.Logf("Install completed.")
		w.recordInstaller("install", "success")
	}
}

// reassign forces the site assignment through the admin API and
// restarts the service. The two calls are independently fault-tolerant.
func (w *Workflow) reassign(ctx context.Context, rec *record.ExecutionRecord, expected state.SiteCode) (state.SiteCode, state.ServiceState) {
	rec.Logf("Site is still %s but the service is running; forcing assignment to %s.", rec.FinalSiteCode, expected)

	start := time.Now()
	err := w.Admin.SetAssignedSite(ctx, expected)
	w.observeAdminCall("set_assigned_site", time.Since(start))
	if err != nil {
		rec.Logf("Site assignment failed: %v.", err)
	} else {
		rec.Logf("Site assignment to %s accepted.", expected)
	}

	if err := w.Services.Restart(ctx, w.ServiceName); err != nil {
		rec.Logf("Service restart failed: %v.", err)
	} else {
		rec.Logf("Service %s restarted.", w.ServiceName)
	}

	return w.Store.ReadAssignedSiteCode(), w.Services.Status(ctx, w.ServiceName)
}

// confirm performs the final check: when the local store and service
// manager both look healthy, the live assignment is read back through
// the admin API to reconcile the local cache with the agent's own view.
func (w *Workflow) confirm(ctx context.Context, rec *record.ExecutionRecord, expected, assigned state.SiteCode, svc state.ServiceState) {
	if !assigned.Equal(expected) || svc != state.ServiceRunning {
		rec.Logf("Remediation did not reach a healthy state; site %s, service %s.", assigned, svc)
		return
	}

	start := time.Now()
	live, err := w.Admin.GetAssignedSite(ctx)
	w.observeAdminCall("get_assigned_site", time.Since(start))
	switch {
	case err != nil:
		rec.Logf("Could not confirm live assignment via admin API: %v. Trusting local state.", err)
	case !live.Equal(expected):
		rec.Logf("Agent reports live site %s, expected %s; not marking remediated.", live, expected)
		return
	default:
		rec.Logf("Agent confirms live site assignment %s.", live)
	}

	rec.Remediated = true
	rec.Logf("Remediation complete: site %s assigned and service running.", expected)
}

func (w *Workflow) finish(ctx context.Context, rec *record.ExecutionRecord) *record.ExecutionRecord {
	outcome := "failed"
	switch {
	case rec.PassedOrFalse():
		outcome = "passed"
	case rec.Remediated:
		outcome = "remediated"
	}
	rec.Logf("Run %s finished in %s: %s.", rec.RunID, time.Since(rec.StartedAt).Round(time.Millisecond), outcome)
	rec.Finish()
	monitor.SpanFromContext(ctx).SetAttributes(monitor.AttrOutcome.String(outcome))

	if w.Metrics != nil {
		w.Metrics.RecordRun(outcome, rec.Duration().Seconds())
		w.Metrics.JournalLinesPerRun.Observe(float64(len(rec.Log)))
	}
	return rec
}

func (w *Workflow) recordInstaller(action, status string) {
	if w.Metrics != nil {
		w.Metrics.RecordInstallerInvocation(action, status)
	}
}

func (w *Workflow) observeAdminCall(op string, d time.Duration) {
	if w.Metrics != nil {
		w.Metrics.AdminAPILatency.WithLabelValues(op).Observe(d.Seconds())
	}
}
