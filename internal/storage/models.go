package storage

import (
	"encoding/json"
	"time"

	"agent-remediator/internal/record"
)

// Run is a stored remediation run. Site codes are flattened to strings
// for the database; an empty string means the code was unset.
type Run struct {
	ID                  string     `json:"id" db:"id"`
	Hostname            string     `json:"hostname" db:"hostname"`
	Domain              string     `json:"domain" db:"domain"`
	ExpectedSiteCode    string     `json:"expected_site_code" db:"expected_site_code"`
	ManagementPoint     string     `json:"management_point" db:"management_point"`
	InstallerPath       string     `json:"installer_path" db:"installer_path"`
	InstallArgs         string     `json:"install_args" db:"install_args"`
	UninstallFirst      bool       `json:"uninstall_first" db:"uninstall_first"`
	ForceInstall        bool       `json:"force_install" db:"force_install"`
	InitialSiteCode     string     `json:"initial_site_code" db:"initial_site_code"`
	FinalSiteCode       string     `json:"final_site_code" db:"final_site_code"`
	InitialServiceState string     `json:"initial_service_state" db:"initial_service_state"`
	FinalServiceState   string     `json:"final_service_state" db:"final_service_state"`
	Passed              *bool      `json:"passed" db:"passed"`
	Remediated          bool       `json:"remediated" db:"remediated"`
	Journal             []byte     `json:"journal" db:"journal"` // full ordered log, JSONB
	StartedAt           time.Time  `json:"started_at" db:"started_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// FromRecord flattens an execution record into its storage shape.
func FromRecord(rec *record.ExecutionRecord) *Run {
	journal, _ := json.Marshal(rec.Log)
	completed := rec.CompletedAt
	return &Run{
		ID:                  rec.RunID,
		Hostname:            rec.Hostname,
		Domain:              rec.Domain,
		ExpectedSiteCode:    rec.ExpectedSiteCode.Value(),
		ManagementPoint:     rec.ManagementPoint,
		InstallerPath:       rec.InstallerPath,
		InstallArgs:         rec.InstallArgs,
		UninstallFirst:      rec.UninstallFirst,
		ForceInstall:        rec.ForceInstall,
		InitialSiteCode:     rec.InitialSiteCode.Value(),
		FinalSiteCode:       rec.FinalSiteCode.Value(),
		InitialServiceState: rec.InitialServiceState.String(),
		FinalServiceState:   rec.FinalServiceState.String(),
		Passed:              rec.Passed,
		Remediated:          rec.Remediated,
		Journal:             journal,
		StartedAt:           rec.StartedAt,
		CompletedAt:         &completed,
	}
}

// RunFilter provides criteria for querying runs.
type RunFilter struct {
	SiteCode   string
	Remediated *bool
	Since      *time.Time
	Limit      int
	Offset     int
}
