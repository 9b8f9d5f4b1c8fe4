// Package record holds the structured audit record a remediation run
// produces. The record is mutated by every workflow step and emitted
// once, whole, when the run completes.
package record

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"agent-remediator/internal/state"
)

// LogEntry is one timestamped journal line. Insertion order is the
// audit trail and is preserved verbatim in the emitted record.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// String renders the entry the way it appears in human-facing output.
func (e LogEntry) String() string {
	return fmt.Sprintf("[%s] %s", e.Time.Format(time.RFC3339), e.Message)
}

// ExecutionRecord is the full account of one remediation run.
type ExecutionRecord struct {
	RunID    string `json:"run_id"`
	Hostname string `json:"hostname"`
	Domain   string `json:"domain,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	ExpectedSiteCode state.SiteCode `json:"expected_site_code"`
	ManagementPoint  string         `json:"management_point"`
	InstallerPath    string         `json:"installer_path"`
	InstallArgs      string         `json:"install_args"`
	UninstallFirst   bool           `json:"uninstall_first"`
	ForceInstall     bool           `json:"force_install"`

	InitialSiteCode     state.SiteCode     `json:"initial_site_code"`
	FinalSiteCode       state.SiteCode     `json:"final_site_code"`
	InitialServiceState state.ServiceState `json:"initial_service_state"`
	FinalServiceState   state.ServiceState `json:"final_service_state"`

	// Passed is tri-state: nil until the decision engine has run.
	Passed     *bool `json:"passed"`
	Remediated bool  `json:"remediated"`

	Log []LogEntry `json:"log"`
}

// New creates the record at the start of a run.
func New(expected state.SiteCode, managementPoint string) *ExecutionRecord {
	hostname, _ := os.Hostname()
	return &ExecutionRecord{
		RunID:            uuid.New().String(),
		Hostname:         hostname,
		StartedAt:        time.Now().UTC(),
		ExpectedSiteCode: expected,
		ManagementPoint:  managementPoint,
	}
}

// Logf appends a timestamped line to the journal and mirrors it to the
// structured log.
func (r *ExecutionRecord) Logf(format string, args ...any) {
	entry := LogEntry{
		Time:    time.Now().UTC(),
		Message: fmt.Sprintf(format, args...),
	}
	r.Log = append(r.Log, entry)
	log.Debug().Str("run_id", r.RunID).Msg(entry.Message)
}

// SetPassed resolves the tri-state verdict.
func (r *ExecutionRecord) SetPassed(passed bool) {
	r.Passed = &passed
}

// PassedOrFalse collapses the tri-state for callers that only need the
// boolean (metrics labels, exit codes).
func (r *ExecutionRecord) PassedOrFalse() bool {
	return r.Passed != nil && *r.Passed
}

// Finish stamps the completion time. The record is immutable once the
// caller receives it.
func (r *ExecutionRecord) Finish() {
	r.CompletedAt = time.Now().UTC()
}

// Duration is the wall time of the run.
func (r *ExecutionRecord) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Emit writes the record as indented JSON; this is the run's one output.
func (r *ExecutionRecord) Emit(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding execution record: %w", err)
	}
	return nil
}
