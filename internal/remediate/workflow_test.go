package remediate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"agent-remediator/internal/record"
	"agent-remediator/internal/state"
)

// fakeStore replays a sequence of site code reads; the last value
// repeats once the sequence is exhausted.
type fakeStore struct {
	codes []state.SiteCode
	reads int
}

func (s *fakeStore) ReadAssignedSiteCode() state.SiteCode {
	i := s.reads
	if i >= len(s.codes) {
		i = len(s.codes) - 1
	}
	s.reads++
	if i < 0 {
		return state.SiteCode{}
	}
	return s.codes[i]
}

// fakeServices replays a sequence of status reads and counts restarts.
type fakeServices struct {
	states     []state.ServiceState
	reads      int
	restarts   int
	restartErr error
}

func (s *fakeServices) Status(_ context.Context, _ string) state.ServiceState {
	i := s.reads
	if i >= len(s.states) {
		i = len(s.states) - 1
	}
	s.reads++
	if i < 0 {
		return state.ServiceNotFound
	}
	return s.states[i]
}

func (s *fakeServices) Restart(_ context.Context, _ string) error {
	s.restarts++
	return s.restartErr
}

type fakeAdmin struct {
	assigned []state.SiteCode
	setErr   error
	live     state.SiteCode
	liveErr  error
}

func (a *fakeAdmin) SetAssignedSite(_ context.Context, code state.SiteCode) error {
	if a.setErr != nil {
		return a.setErr
	}
	a.assigned = append(a.assigned, code)
	return nil
}

func (a *fakeAdmin) GetAssignedSite(_ context.Context) (state.SiteCode, error) {
	return a.live, a.liveErr
}

type fakeInstaller struct {
	active       string
	remote       string
	reachable    bool
	uninstalls   int
	installs     int
	lastArgs     string
	uninstallErr error
	installErr   error
}

func (f *fakeInstaller) ActivePath() string    { return f.active }
func (f *fakeInstaller) RemotePath() string    { return f.remote }
func (f *fakeInstaller) RemoteReachable() bool { return f.reachable }

func (f *fakeInstaller) Uninstall(_ context.Context) error {
	f.uninstalls++
	if f.uninstallErr != nil {
		return f.uninstallErr
	}
	f.active = f.remote
	return nil
}

func (f *fakeInstaller) Install(_ context.Context, args string) error {
	f.installs++
	f.lastArgs = args
	return f.installErr
}

func testParams() Params {
	return Params{
		ExpectedSiteCode:    state.NewSiteCode("ABC"),
		ManagementPoint:     "mp01.corp.example.com",
		RemoteInstallerPath: "/mnt/deploy/agent/setup",
	}
}

func journalText(rec *record.ExecutionRecord) string {
	var sb strings.Builder
	for _, e := range rec.Log {
		sb.WriteString(e.Message)
		sb.WriteString("\n")
	}
	return sb.String()
}

func TestRun_HealthyEndpointPasses(t *testing.T) {
	inst := &fakeInstaller{active: "/opt/agent/setup", remote: "/mnt/deploy/agent/setup", reachable: true}
	wf := &Workflow{
		Store:       &fakeStore{codes: []state.SiteCode{state.NewSiteCode("ABC")}},
		Services:    &fakeServices{states: []state.ServiceState{state.ServiceRunning}},
		Admin:       &fakeAdmin{live: state.NewSiteCode("ABC")},
		Installer:   inst,
		ServiceName: "mgmt-agent",
	}

	rec := wf.Run(context.Background(), testParams())

	if !rec.PassedOrFalse() {
		t.Error("Passed = false, want true")
	}
	if rec.Remediated {
		t.Error("Remediated = true, want false on a passing run")
	}
	if inst.installs != 0 || inst.uninstalls != 0 {
		t.Errorf("installer invoked on a passing run: %d installs, %d uninstalls", inst.installs, inst.uninstalls)
	}
	if !strings.Contains(journalText(rec), "No action required") {
		t.Errorf("journal missing %q:\n%s", "No action required", journalText(rec))
	}
	if rec.CompletedAt.IsZero() {
		t.Error("CompletedAt not stamped")
	}
}

func TestRun_SiteMismatchRemediates(t *testing.T) {
	// Store reads ABC after the reinstall; service keeps running.
	inst := &fakeInstaller{active: "/opt/agent/setup", remote: "/mnt/deploy/agent/setup", reachable: true}
	wf := &Workflow{
		Store: &fakeStore{codes: []state.SiteCode{
			state.NewSiteCode("XYZ"), // initial
			state.NewSiteCode("ABC"), // post-install
		}},
		Services:    &fakeServices{states: []state.ServiceState{state.ServiceRunning}},
		Admin:       &fakeAdmin{live: state.NewSiteCode("ABC")},
		Installer:   inst,
		ServiceName: "mgmt-agent",
	}

	rec := wf.Run(context.Background(), testParams())

	if rec.PassedOrFalse() {
		t.Error("Passed = true, want false on a mismatched site")
	}
	if inst.installs != 1 {
		t.Errorf("installs = %d, want 1", inst.installs)
	}
	if !rec.Remediated {
		t.Errorf("Remediated = false, want true; journal:\n%s", journalText(rec))
	}
	if !rec.FinalSiteCode.Equal(state.NewSiteCode("ABC")) {
		t.Errorf("FinalSiteCode = %s, want ABC", rec.FinalSiteCode)
	}
	if rec.FinalServiceState != state.ServiceRunning {
		t.Errorf("FinalServiceState = %s, want running", rec.FinalServiceState)
	}
}

func TestRun_ReassignmentStep(t *testing.T) {
	// Install completes but the agent keeps the old site; the service is
	// running, so assignment is forced through the admin API and the
	// service restarted.
	admin := &fakeAdmin{live: state.NewSiteCode("ABC")}
	services := &fakeServices{states: []state.ServiceState{state.ServiceRunning}}
	wf := &Workflow{
		Store: &fakeStore{codes: []state.SiteCode{
			state.NewSiteCode("XYZ"), // initial
			state.NewSiteCode("XYZ"), // post-install, still wrong
			state.NewSiteCode("ABC"), // after forced assignment
		}},
		Services:    services,
		Admin:       admin,
		Installer:   &fakeInstaller{active: "/opt/agent/setup", remote: "/mnt/deploy/agent/setup", reachable: true},
		ServiceName: "mgmt-agent",
	}

	rec := wf.Run(context.Background(), testParams())

	if len(admin.assigned) != 1 || !admin.assigned[0].Equal(state.NewSiteCode("ABC")) {
		t.Errorf("SetAssignedSite calls = %v, want one call with ABC", admin.assigned)
	}
	if services.restarts != 1 {
		t.Errorf("restarts = %d, want 1", services.restarts)
	}
	if !rec.Remediated {
		t.Errorf("Remediated = false, want true; journal:\n%s", journalText(rec))
	}
}

func TestRun_FreshEndpointSkipsUninstall(t *testing.T) {
	// No site assigned and no service registered: uninstall is skipped
	// because there is nothing to remove, install still runs.
	inst := &fakeInstaller{active: "/mnt/deploy/agent/setup", remote: "/mnt/deploy/agent/setup", reachable: true}
	wf := &Workflow{
		Store:       &fakeStore{codes: []state.SiteCode{{}}},
		Services:    &fakeServices{states: []state.ServiceState{state.ServiceNotFound}},
		Admin:       &fakeAdmin{liveErr: errors.New("connection refused")},
		Installer:   inst,
		ServiceName: "mgmt-agent",
	}

	p := testParams()
	p.UninstallFirst = true
	rec := wf.Run(context.Background(), p)

	if rec.PassedOrFalse() {
		t.Error("Passed = true, want false for an unprovisioned endpoint")
	}
	if inst.uninstalls != 0 {
		t.Errorf("uninstalls = %d, want 0 when no instance exists", inst.uninstalls)
	}
	if inst.installs != 1 {
		t.Errorf("installs = %d, want 1", inst.installs)
	}
	if !strings.Contains(journalText(rec), "skipping uninstall") {
		t.Errorf("journal missing uninstall skip:\n%s", journalText(rec))
	}
	if rec.Remediated {
		t.Error("Remediated = true, want false when the endpoint never became healthy")
	}
}

func TestRun_UnreachableRemoteSkipsUninstall(t *testing.T) {
	inst := &fakeInstaller{active: "/opt/agent/setup", remote: "/mnt/deploy/agent/setup", reachable: false}
	wf := &Workflow{
		Store: &fakeStore{codes: []state.SiteCode{
			state.NewSiteCode("XYZ"),
			state.NewSiteCode("ABC"),
		}},
		Services:    &fakeServices{states: []state.ServiceState{state.ServiceRunning}},
		Admin:       &fakeAdmin{live: state.NewSiteCode("ABC")},
		Installer:   inst,
		ServiceName: "mgmt-agent",
	}

	p := testParams()
	p.UninstallFirst = true
	rec := wf.Run(context.Background(), p)

	if inst.uninstalls != 0 {
		t.Errorf("uninstalls = %d, want 0 when remote path is unreachable", inst.uninstalls)
	}
	if inst.installs != 1 {
		t.Errorf("installs = %d, want 1 (install proceeds with best-available path)", inst.installs)
	}
	got := journalText(rec)
	if !strings.Contains(got, "unreachable") || !strings.Contains(got, "skipping uninstall") {
		t.Errorf("journal missing unreachable-remote warning:\n%s", got)
	}
}

func TestRun_UninstallFirstRedirectsInstallerPath(t *testing.T) {
	inst := &fakeInstaller{active: "/opt/agent/setup", remote: "/mnt/deploy/agent/setup", reachable: true}
	wf := &Workflow{
		Store: &fakeStore{codes: []state.SiteCode{
			state.NewSiteCode("XYZ"),
			state.NewSiteCode("ABC"),
		}},
		Services:    &fakeServices{states: []state.ServiceState{state.ServiceRunning}},
		Admin:       &fakeAdmin{live: state.NewSiteCode("ABC")},
		Installer:   inst,
		ServiceName: "mgmt-agent",
	}

	p := testParams()
	p.UninstallFirst = true
	rec := wf.Run(context.Background(), p)

	if inst.uninstalls != 1 {
		t.Fatalf("uninstalls = %d, want 1", inst.uninstalls)
	}
	if rec.InstallerPath != "/mnt/deploy/agent/setup" {
		t.Errorf("InstallerPath = %q, want redirected remote path", rec.InstallerPath)
	}
}

func TestRun_ForceInstallOverridesPassingState(t *testing.T) {
	inst := &fakeInstaller{active: "/opt/agent/setup", remote: "/mnt/deploy/agent/setup", reachable: true}
	wf := &Workflow{
		Store:       &fakeStore{codes: []state.SiteCode{state.NewSiteCode("ABC")}},
		Services:    &fakeServices{states: []state.ServiceState{state.ServiceRunning}},
		Admin:       &fakeAdmin{live: state.NewSiteCode("ABC")},
		Installer:   inst,
		ServiceName: "mgmt-agent",
	}

	p := testParams()
	p.ForceInstall = true
	rec := wf.Run(context.Background(), p)

	if rec.PassedOrFalse() {
		t.Error("Passed = true, want false under force install")
	}
	if inst.installs != 1 {
		t.Errorf("installs = %d, want 1", inst.installs)
	}
	if !rec.Remediated {
		t.Error("Remediated = false, want true after a successful forced reinstall")
	}
}

func TestRun_InstallFailureStillRevalidates(t *testing.T) {
	inst := &fakeInstaller{
		active:     "/opt/agent/setup",
		remote:     "/mnt/deploy/agent/setup",
		reachable:  true,
		installErr: errors.New("exit status 1"),
	}
	wf := &Workflow{
		Store:       &fakeStore{codes: []state.SiteCode{state.NewSiteCode("XYZ")}},
		Services:    &fakeServices{states: []state.ServiceState{state.ServiceStopped}},
		Admin:       &fakeAdmin{liveErr: errors.New("connection refused")},
		Installer:   inst,
		ServiceName: "mgmt-agent",
	}

	rec := wf.Run(context.Background(), testParams())

	if rec.Remediated {
		t.Error("Remediated = true, want false after a failed install")
	}
	if !strings.Contains(journalText(rec), "Install failed") {
		t.Errorf("journal missing install failure:\n%s", journalText(rec))
	}
	if rec.CompletedAt.IsZero() {
		t.Error("run must complete and stamp the record even when the install fails")
	}
}

func TestRun_AdminFailuresAreNonFatal(t *testing.T) {
	// Assignment and restart both fail; the run still completes with a
	// full record and Remediated=false.
	services := &fakeServices{
		states:     []state.ServiceState{state.ServiceRunning},
		restartErr: errors.New("restart timed out"),
	}
	wf := &Workflow{
		Store:       &fakeStore{codes: []state.SiteCode{state.NewSiteCode("XYZ")}},
		Services:    services,
		Admin:       &fakeAdmin{setErr: errors.New("access denied"), liveErr: errors.New("access denied")},
		Installer:   &fakeInstaller{active: "/opt/agent/setup", remote: "/mnt/deploy/agent/setup", reachable: true},
		ServiceName: "mgmt-agent",
	}

	rec := wf.Run(context.Background(), testParams())

	if services.restarts != 1 {
		t.Errorf("restarts = %d, want 1 (restart attempted despite failed assignment)", services.restarts)
	}
	if rec.Remediated {
		t.Error("Remediated = true, want false")
	}
	got := journalText(rec)
	if !strings.Contains(got, "Site assignment failed") {
		t.Errorf("journal missing assignment failure:\n%s", got)
	}
	if !strings.Contains(got, "Service restart failed") {
		t.Errorf("journal missing restart failure:\n%s", got)
	}
}

func TestRun_LiveSiteDisagreementBlocksRemediated(t *testing.T) {
	// Local store and service look healthy after install, but the agent
	// itself reports a different live assignment.
	wf := &Workflow{
		Store: &fakeStore{codes: []state.SiteCode{
			state.NewSiteCode("XYZ"),
			state.NewSiteCode("ABC"),
		}},
		Services:    &fakeServices{states: []state.ServiceState{state.ServiceRunning}},
		Admin:       &fakeAdmin{live: state.NewSiteCode("XYZ")},
		Installer:   &fakeInstaller{active: "/opt/agent/setup", remote: "/mnt/deploy/agent/setup", reachable: true},
		ServiceName: "mgmt-agent",
	}

	rec := wf.Run(context.Background(), testParams())

	if rec.Remediated {
		t.Error("Remediated = true, want false when the agent disputes the assignment")
	}
}

func TestRun_CheckOnlySkipsRemediation(t *testing.T) {
	inst := &fakeInstaller{active: "/opt/agent/setup", remote: "/mnt/deploy/agent/setup", reachable: true}
	wf := &Workflow{
		Store:       &fakeStore{codes: []state.SiteCode{state.NewSiteCode("XYZ")}},
		Services:    &fakeServices{states: []state.ServiceState{state.ServiceRunning}},
		Admin:       &fakeAdmin{},
		Installer:   inst,
		ServiceName: "mgmt-agent",
	}

	p := testParams()
	p.CheckOnly = true
	rec := wf.Run(context.Background(), p)

	if rec.PassedOrFalse() {
		t.Error("Passed = true, want false")
	}
	if inst.installs != 0 || inst.uninstalls != 0 {
		t.Error("check-only run must not invoke the installer")
	}
	if !strings.Contains(journalText(rec), "Check-only run") {
		t.Errorf("journal missing check-only note:\n%s", journalText(rec))
	}
}

func TestRun_IdempotentAfterRemediation(t *testing.T) {
	// First run remediates; a second run against the now-healthy state
	// passes without touching the installer.
	firstInst := &fakeInstaller{active: "/opt/agent/setup", remote: "/mnt/deploy/agent/setup", reachable: true}
	first := &Workflow{
		Store: &fakeStore{codes: []state.SiteCode{
			state.NewSiteCode("XYZ"),
			state.NewSiteCode("ABC"),
		}},
		Services:    &fakeServices{states: []state.ServiceState{state.ServiceRunning}},
		Admin:       &fakeAdmin{live: state.NewSiteCode("ABC")},
		Installer:   firstInst,
		ServiceName: "mgmt-agent",
	}
	rec1 := first.Run(context.Background(), testParams())
	if !rec1.Remediated {
		t.Fatalf("first run: Remediated = false; journal:\n%s", journalText(rec1))
	}

	secondInst := &fakeInstaller{active: "/opt/agent/setup", remote: "/mnt/deploy/agent/setup", reachable: true}
	second := &Workflow{
		Store:       &fakeStore{codes: []state.SiteCode{state.NewSiteCode("ABC")}},
		Services:    &fakeServices{states: []state.ServiceState{state.ServiceRunning}},
		Admin:       &fakeAdmin{live: state.NewSiteCode("ABC")},
		Installer:   secondInst,
		ServiceName: "mgmt-agent",
	}
	rec2 := second.Run(context.Background(), testParams())

	if !rec2.PassedOrFalse() {
		t.Error("second run: Passed = false, want true")
	}
	if secondInst.installs != 0 {
		t.Errorf("second run: installs = %d, want 0", secondInst.installs)
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Params)
		wantErr bool
	}{
		{"complete", func(p *Params) {}, false},
		{"missing site code", func(p *Params) { p.ExpectedSiteCode = state.SiteCode{} }, true},
		{"missing management point", func(p *Params) { p.ManagementPoint = "" }, true},
		{"missing installer path", func(p *Params) { p.RemoteInstallerPath = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams()
			tt.modify(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParamsInstallArgs(t *testing.T) {
	p := testParams()
	got := p.InstallArgs()
	if !strings.Contains(got, "mp01.corp.example.com") || !strings.Contains(got, "ABC") {
		t.Errorf("default InstallArgs() = %q, want it to embed management point and site code", got)
	}

	p.SetupArgs = "--quiet --site-code=ABC"
	if got := p.InstallArgs(); got != "--quiet --site-code=ABC" {
		t.Errorf("InstallArgs() = %q, want explicit args unchanged", got)
	}
}
