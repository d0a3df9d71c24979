package intake

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/apperrors"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/lifecycle"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/model"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/storage"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/logger"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/utils"
)

// Auditor mirrors assignment.Auditor for status overrides.
type Auditor interface {
	Audit(ctx context.Context, event model.AuditEvent)
}

// LeadService exposes the read and lifecycle operations on stored leads.
type LeadService struct {
	leads      storage.LeadRepo
	unassigned storage.UnassignedRepo
	auditor    Auditor
}

// NewLeadService creates the lead operations service.
func NewLeadService(leads storage.LeadRepo, unassigned storage.UnassignedRepo, auditor Auditor) *LeadService {
	return &LeadService{leads: leads, unassigned: unassigned, auditor: auditor}
}

// GetLead returns a lead by ID.
func (s *LeadService) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	return s.leads.FindByID(ctx, id)
}

// UpdateStatus applies one lifecycle transition. The write is conditional
// on the status read here, so two racing updates from the same state
// resolve to one winner and one apperrors.ErrConflict.
func (s *LeadService) UpdateStatus(ctx context.Context, leadID string, to model.LeadStatus) (*model.Lead, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", apperrors.ErrBadRequest, to)
	}
	lead, err := s.leads.FindByID(ctx, leadID)
	if err != nil {
		return nil, err
	}

	if err := lifecycle.Transition(lead.Status, to); err != nil {
		return nil, err
	}
	if to == lead.Status {
		// Same-state transition is a no-op by contract.
		return lead, nil
	}

	if err := s.leads.UpdateStatus(ctx, leadID, lead.Status, to); err != nil {
		return nil, err
	}
	lead.Status = to
	return lead, nil
}

// ForceStatus is the administrative override: it bypasses the transition
// table, including terminal states, and records who did it.
func (s *LeadService) ForceStatus(ctx context.Context, leadID string, to model.LeadStatus, actor string) (*model.Lead, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", apperrors.ErrBadRequest, to)
	}
	lead, err := s.leads.FindByID(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if err := s.leads.ForceStatus(ctx, leadID, to); err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Warn("Lead status forced",
		zap.String("lead_id", leadID),
		zap.String("from", string(lead.Status)),
		zap.String("to", string(to)),
		zap.String("actor", actor),
	)
	s.auditor.Audit(ctx, model.AuditEvent{
		Action:   model.AuditActionStatusForced,
		LeadID:   leadID,
		FunnelID: lead.FunnelID,
		Status:   string(to),
		Actor:    actor,
		At:       utils.Now(),
	})

	lead.Status = to
	return lead, nil
}

// AddNote appends a note to the lead's ordered note list.
func (s *LeadService) AddNote(ctx context.Context, leadID, author, body string) (*model.LeadNote, error) {
	if body == "" {
		return nil, fmt.Errorf("%w: note body is required", apperrors.ErrBadRequest)
	}
	if _, err := s.leads.FindByID(ctx, leadID); err != nil {
		return nil, err
	}
	note := model.LeadNote{
		ID:     uuid.NewString(),
		LeadID: leadID,
		Author: author,
		Body:   body,
	}
	if err := s.leads.AddNote(ctx, note); err != nil {
		return nil, err
	}
	return &note, nil
}

// Notes returns the lead's notes in creation order.
func (s *LeadService) Notes(ctx context.Context, leadID string) ([]model.LeadNote, error) {
	return s.leads.NotesByLeadID(ctx, leadID)
}

// ListUnassigned pages through the manual-triage queue for a funnel.
func (s *LeadService) ListUnassigned(ctx context.Context, funnelID string, limit, offset int) ([]model.UnassignedLead, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.unassigned.List(ctx, funnelID, limit, offset)
}
