package state

import "encoding/json"

// ServiceState is the agent service's status as reported by the service
// manager. NotFound means the unit is not registered at all, which is a
// distinct signal from a registered-but-stopped service.
type ServiceState int

const (
	ServiceNotFound ServiceState = iota
	ServiceStopped
	ServiceRunning
	ServiceOther
)

var serviceStateNames = map[ServiceState]string{
	ServiceNotFound: "not_found",
	ServiceStopped:  "stopped",
	ServiceRunning:  "running",
	ServiceOther:    "other",
}

func (s ServiceState) String() string {
	if name, ok := serviceStateNames[s]; ok {
		return name
	}
	return "other"
}

// MarshalJSON emits the state name rather than the numeric value.
func (s ServiceState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts a state name; unknown names map to ServiceOther.
func (s *ServiceState) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for state, n := range serviceStateNames {
		if n == name {
			*s = state
			return nil
		}
	}
	*s = ServiceOther
	return nil
}
