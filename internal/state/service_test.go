package state

import "testing"

func TestParseSystemdShow(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want ServiceState
	}{
		{"running", "LoadState=loaded\nActiveState=active\n", ServiceRunning},
		{"stopped", "LoadState=loaded\nActiveState=inactive\n", ServiceStopped},
		{"failed", "LoadState=loaded\nActiveState=failed\n", ServiceStopped},
		{"not registered", "LoadState=not-found\nActiveState=inactive\n", ServiceNotFound},
		{"starting up", "LoadState=loaded\nActiveState=activating\n", ServiceOther},
		{"empty output", "", ServiceNotFound},
		{"trailing whitespace", "LoadState=loaded\nActiveState=active\n\n", ServiceRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseSystemdShow(tt.out); got != tt.want {
				t.Errorf("parseSystemdShow(%q) = %s, want %s", tt.out, got, tt.want)
			}
		})
	}
}

func TestServiceStateJSON(t *testing.T) {
	b, err := ServiceRunning.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"running"` {
		t.Errorf("marshal = %s, want %q", b, `"running"`)
	}

	var s ServiceState
	if err := s.UnmarshalJSON([]byte(`"not_found"`)); err != nil {
		t.Fatal(err)
	}
	if s != ServiceNotFound {
		t.Errorf("unmarshal = %s, want not_found", s)
	}

	if err := s.UnmarshalJSON([]byte(`"bogus"`)); err != nil {
		t.Fatal(err)
	}
	if s != ServiceOther {
		t.Errorf("unknown name should map to other, got %s", s)
	}
}
