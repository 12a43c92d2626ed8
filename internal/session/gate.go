// Package session resolves which top-level view a console session may reach.
package session

import "github.com/MarcoPoloResearchLab/guestwatch/internal/state"

// GateState is the position of a session in the login/setup flow.
type GateState string

const (
	// GateUnauthenticated means nobody is logged in.
	GateUnauthenticated GateState = "unauthenticated"
	// GateIncompleteProfile means a reception user still has to submit a hotel profile.
	GateIncompleteProfile GateState = "incomplete_profile"
	// GateReady means the main console views are available.
	GateReady GateState = "ready"
)

// Resolve computes the gate state for the provided session.
func Resolve(current *state.Session) GateState {
	if current == nil {
		return GateUnauthenticated
	}
	if current.Role == state.RoleReception && current.HotelProfile == nil {
		return GateIncompleteProfile
	}
	return GateReady
}

// Ready reports whether the session may reach the main views.
func Ready(current *state.Session) bool {
	return Resolve(current) == GateReady
}
