// Package engine decides whether an endpoint needs remediation. The
// decision is a fixed five-branch tree over the observed state, not a
// rule engine; every branch is narrated so the run journal shows which
// terminal was hit.
package engine

import (
	"fmt"

	"agent-remediator/internal/state"
)

// Input is the observed endpoint state the decision is made over.
type Input struct {
	Expected     state.SiteCode
	Assigned     state.SiteCode
	ServiceState state.ServiceState
	ForceInstall bool
}

// Reason identifies which terminal of the decision tree was reached.
type Reason string

const (
	ReasonHealthy           Reason = "healthy"
	ReasonForceInstall      Reason = "force_install"
	ReasonServiceNotFound   Reason = "service_not_found"
	ReasonServiceNotRunning Reason = "service_not_running"
	ReasonSiteMismatch      Reason = "site_mismatch"
)

// Decision is the evaluation outcome. Passed is the headline verdict;
// Reason and Narration carry the why.
type Decision struct {
	Passed    bool
	Reason    Reason
	Narration string
}

// Evaluate is a pure function over the observed state and the force
// flag. Remediation runs exactly when Passed is false.
func Evaluate(in Input) Decision {
	if !in.Expected.Equal(in.Assigned) {
		narration := fmt.Sprintf("Assigned site %s does not match expected site %s.", in.Assigned, in.Expected)
		if !in.Assigned.IsSet() {
			narration = fmt.Sprintf("No site code is assigned; expected site is %s.", in.Expected)
		}
		return Decision{Passed: false, Reason: ReasonSiteMismatch, Narration: narration}
	}

	switch in.ServiceState {
	case state.ServiceNotFound:
		return Decision{
			Passed:    false,
			Reason:    ReasonServiceNotFound,
			Narration: fmt.Sprintf("Assigned site %s matches, but the agent service is not installed.", in.Assigned),
		}
	case state.ServiceRunning:
		if in.ForceInstall {
			return Decision{
				Passed:    false,
				Reason:    ReasonForceInstall,
				Narration: fmt.Sprintf("Assigned site %s matches and the agent service is running, but force install was requested.", in.Assigned),
			}
		}
		return Decision{
			Passed:    true,
			Reason:    ReasonHealthy,
			Narration: fmt.Sprintf("Assigned site %s matches and the agent service is running. No action required.", in.Assigned),
		}
	default:
		return Decision{
			Passed:    false,
			Reason:    ReasonServiceNotRunning,
			Narration: fmt.Sprintf("Assigned site %s matches, but the agent service is %s instead of running.", in.Assigned, in.ServiceState),
		}
	}
}
