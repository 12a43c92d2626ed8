package session

import (
	"testing"

	"github.com/MarcoPoloResearchLab/guestwatch/internal/state"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		session  *state.Session
		expected GateState
	}{
		{name: "logged out", session: nil, expected: GateUnauthenticated},
		{name: "reception without profile", session: &state.Session{Username: "reception", Role: state.RoleReception}, expected: GateIncompleteProfile},
		{
			name: "reception with profile",
			session: &state.Session{
				Username:     "reception",
				Role:         state.RoleReception,
				HotelProfile: &state.HotelProfile{Name: "Node A", Address: "Region X", ReceptionistName: "Desk", Phone: "0911"},
			},
			expected: GateReady,
		},
		{name: "police never needs a profile", session: &state.Session{Username: "police", Role: state.RolePolice}, expected: GateReady},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Resolve(test.session); got != test.expected {
				t.Fatalf("expected %s, got %s", test.expected, got)
			}
			if Ready(test.session) != (test.expected == GateReady) {
				t.Fatalf("Ready disagrees with Resolve for %s", test.name)
			}
		})
	}
}
