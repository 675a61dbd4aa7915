package registration

import (
	"context"

	"github.com/looplab/fsm"

	"ocpihub/internal/party"
	"ocpihub/pkg/ocpistatus"
)

// State is the registration state of one local access token, derived from
// the fields of its LocalAccessInfo rather than stored separately.
type State string

const (
	// StateUnregistered: token issued, partner has not called back yet.
	StateUnregistered State = "unregistered"
	// StateRegistered: the token's VersionsURL is set, handshake completed.
	StateRegistered State = "registered"
	// StateBlocked: the token is administratively blocked; no transitions
	// leave this state.
	StateBlocked State = "blocked"
)

const (
	eventRegister   = "register"
	eventRotate     = "rotate"
	eventUnregister = "unregister"
)

// StateOf derives the registration state of one local access entry.
func StateOf(li party.LocalAccessInfo) State {
	if li.Status == party.AccessBlocked {
		return StateBlocked
	}
	if li.VersionsURL != "" {
		return StateRegistered
	}
	return StateUnregistered
}

// newMachine builds the transition table anchored at the current state.
// Blocked has no outgoing transitions; every event from it fails.
func newMachine(current State) *fsm.FSM {
	return fsm.NewFSM(
		string(current),
		fsm.Events{
			{Name: eventRegister, Src: []string{string(StateUnregistered)}, Dst: string(StateRegistered)},
			{Name: eventRotate, Src: []string{string(StateRegistered)}, Dst: string(StateRegistered)},
			{Name: eventUnregister, Src: []string{string(StateRegistered)}, Dst: string(StateUnregistered)},
		},
		fsm.Callbacks{},
	)
}

// guard rejects the event when the current state does not permit it, with
// the protocol's prescribed status for each illegal combination.
func guard(ctx context.Context, current State, event string) error {
	if current == StateBlocked {
		return ocpistatus.Forbidden("access token is blocked")
	}
	if err := newMachine(current).Event(ctx, event); err != nil {
		switch {
		case event == eventRegister && current == StateRegistered:
			return ocpistatus.NotAllowed("already registered; use PUT to rotate credentials")
		case event == eventRotate && current == StateUnregistered:
			return ocpistatus.NotAllowed("not registered yet; use POST to register")
		case event == eventUnregister && current == StateUnregistered:
			return ocpistatus.NotAllowed("not registered")
		default:
			return ocpistatus.NotAllowed("%s not allowed in state %s", event, current)
		}
	}
	return nil
}

// AllowedMethods lists the credentials-resource verbs legal in a state, for
// the OPTIONS Allow header.
func AllowedMethods(current State) []string {
	switch current {
	case StateUnregistered:
		return []string{"OPTIONS", "GET", "POST"}
	case StateRegistered:
		return []string{"OPTIONS", "GET", "PUT", "DELETE"}
	default:
		return []string{"OPTIONS"}
	}
}

func (s State) String() string { return string(s) }
