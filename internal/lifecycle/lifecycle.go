// Package lifecycle is the authoritative set of legal lead status
// transitions. Every status-changing write consults it; only the explicit
// administrative force override bypasses the check, and callers of that
// override are responsible for auditing it.
package lifecycle

import (
	"gitlab.com/funnelworks/api/lead-intake-service/internal/apperrors"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/model"
)

// transitions holds the directed edges of the state machine. Won and dnc
// are terminal. A same-state transition is always a permitted no-op and
// is not listed here.
var transitions = map[model.LeadStatus][]model.LeadStatus{
	model.StatusNew:         {model.StatusAssigned, model.StatusQuarantined, model.StatusUnassigned},
	model.StatusUnassigned:  {model.StatusAssigned, model.StatusQuarantined},
	model.StatusAssigned:    {model.StatusContacted, model.StatusQualified, model.StatusConverted, model.StatusLost, model.StatusDNC, model.StatusQuarantined, model.StatusBooked},
	model.StatusContacted:   {model.StatusQualified, model.StatusConverted, model.StatusLost, model.StatusDNC, model.StatusBooked},
	model.StatusQualified:   {model.StatusConverted, model.StatusLost, model.StatusDNC, model.StatusBooked},
	model.StatusBooked:      {model.StatusConverted, model.StatusWon, model.StatusLost, model.StatusDNC},
	model.StatusConverted:   {model.StatusWon, model.StatusLost},
	model.StatusLost:        {model.StatusContacted, model.StatusQualified},
	model.StatusQuarantined: {model.StatusNew},
	model.StatusWon:         {},
	model.StatusDNC:         {},
}

// CanTransition reports whether moving a lead from one status to another
// is legal. A transition to the same status is always allowed.
func CanTransition(from, to model.LeadStatus) bool {
	if from == to {
		return true
	}
	for _, dest := range transitions[from] {
		if dest == to {
			return true
		}
	}
	return false
}

// LegalDestinations returns the statuses reachable from the given status,
// excluding the same-state no-op. The returned slice is a copy.
func LegalDestinations(from model.LeadStatus) []model.LeadStatus {
	dests := transitions[from]
	out := make([]model.LeadStatus, len(dests))
	copy(out, dests)
	return out
}

// IsTerminal reports whether the status has no outgoing transitions.
func IsTerminal(status model.LeadStatus) bool {
	dests, known := transitions[status]
	return known && len(dests) == 0
}

// Transition validates a status change and returns a descriptive error
// when it is illegal. It never coerces the status.
func Transition(from, to model.LeadStatus) error {
	if !from.Valid() {
		return &apperrors.TransitionError{From: from.String(), To: to.String()}
	}
	if !to.Valid() {
		return &apperrors.TransitionError{From: from.String(), To: to.String(), Allowed: destinationNames(from)}
	}
	if CanTransition(from, to) {
		return nil
	}
	return &apperrors.TransitionError{
		From:    from.String(),
		To:      to.String(),
		Allowed: destinationNames(from),
	}
}

// Apply performs a guarded status change on the lead, mutating it only
// when the transition is legal. Force bypasses the check for the
// administrative override path.
func Apply(lead *model.Lead, to model.LeadStatus, force bool) error {
	if !force {
		if err := Transition(lead.Status, to); err != nil {
			return err
		}
	}
	lead.Status = to
	return nil
}

func destinationNames(from model.LeadStatus) []string {
	dests := transitions[from]
	names := make([]string, len(dests))
	for i, d := range dests {
		names[i] = d.String()
	}
	return names
}
