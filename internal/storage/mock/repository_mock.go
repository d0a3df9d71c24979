package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/model"
)

// --- LeadRepo Mock ---

// LeadRepoMock mocks the LeadRepo interface
type LeadRepoMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *LeadRepoMock) Save(ctx context.Context, lead model.Lead) error {
	args := m.Called(ctx, lead)
	return args.Error(0)
}

// FindByID mocks the FindByID method
func (m *LeadRepoMock) FindByID(ctx context.Context, id string) (*model.Lead, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

// CountByEmailSince mocks the CountByEmailSince method
func (m *LeadRepoMock) CountByEmailSince(ctx context.Context, email string, since time.Time) (int64, error) {
	args := m.Called(ctx, email, since)
	return args.Get(0).(int64), args.Error(1)
}

// FindRecentByEmail mocks the FindRecentByEmail method
func (m *LeadRepoMock) FindRecentByEmail(ctx context.Context, email string, since time.Time) ([]model.Lead, error) {
	args := m.Called(ctx, email, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Lead), args.Error(1)
}

// ClaimForAssignment mocks the ClaimForAssignment method
func (m *LeadRepoMock) ClaimForAssignment(ctx context.Context, leadID, ruleID, orgID string, userID *string, at time.Time) error {
	args := m.Called(ctx, leadID, ruleID, orgID, userID, at)
	return args.Error(0)
}

// MarkUnassigned mocks the MarkUnassigned method
func (m *LeadRepoMock) MarkUnassigned(ctx context.Context, leadID string) error {
	args := m.Called(ctx, leadID)
	return args.Error(0)
}

// UpdateStatus mocks the UpdateStatus method
func (m *LeadRepoMock) UpdateStatus(ctx context.Context, leadID string, from, to model.LeadStatus) error {
	args := m.Called(ctx, leadID, from, to)
	return args.Error(0)
}

// ForceStatus mocks the ForceStatus method
func (m *LeadRepoMock) ForceStatus(ctx context.Context, leadID string, to model.LeadStatus) error {
	args := m.Called(ctx, leadID, to)
	return args.Error(0)
}

// Reassign mocks the Reassign method
func (m *LeadRepoMock) Reassign(ctx context.Context, leadID, orgID string, ruleID, userID *string, at time.Time) error {
	args := m.Called(ctx, leadID, orgID, ruleID, userID, at)
	return args.Error(0)
}

// AddNote mocks the AddNote method
func (m *LeadRepoMock) AddNote(ctx context.Context, note model.LeadNote) error {
	args := m.Called(ctx, note)
	return args.Error(0)
}

// NotesByLeadID mocks the NotesByLeadID method
func (m *LeadRepoMock) NotesByLeadID(ctx context.Context, leadID string) ([]model.LeadNote, error) {
	args := m.Called(ctx, leadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.LeadNote), args.Error(1)
}

// Close mocks the Close method
func (m *LeadRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- RuleRepo Mock ---

// RuleRepoMock mocks the RuleRepo interface
type RuleRepoMock struct {
	mock.Mock
}

// ActiveRulesForFunnel mocks the ActiveRulesForFunnel method
func (m *RuleRepoMock) ActiveRulesForFunnel(ctx context.Context, funnelID string) ([]model.AssignmentRule, error) {
	args := m.Called(ctx, funnelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AssignmentRule), args.Error(1)
}

// FindRuleByID mocks the FindRuleByID method
func (m *RuleRepoMock) FindRuleByID(ctx context.Context, id string) (*model.AssignmentRule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AssignmentRule), args.Error(1)
}

// CountAssignments mocks the CountAssignments method
func (m *RuleRepoMock) CountAssignments(ctx context.Context, ruleID, dayKey, monthKey string) (int64, int64, error) {
	args := m.Called(ctx, ruleID, dayKey, monthKey)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

// RecordAssignment mocks the RecordAssignment method
func (m *RuleRepoMock) RecordAssignment(ctx context.Context, rec model.RuleAssignment) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

// --- UnassignedRepo Mock ---

// UnassignedRepoMock mocks the UnassignedRepo interface
type UnassignedRepoMock struct {
	mock.Mock
}

// Enqueue mocks the Enqueue method
func (m *UnassignedRepoMock) Enqueue(ctx context.Context, entry model.UnassignedLead) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// List mocks the List method
func (m *UnassignedRepoMock) List(ctx context.Context, funnelID string, limit, offset int) ([]model.UnassignedLead, error) {
	args := m.Called(ctx, funnelID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.UnassignedLead), args.Error(1)
}

// Remove mocks the Remove method
func (m *UnassignedRepoMock) Remove(ctx context.Context, leadID string) error {
	args := m.Called(ctx, leadID)
	return args.Error(0)
}

// --- IdempotencyRepo Mock ---

// IdempotencyRepoMock mocks the IdempotencyRepo interface
type IdempotencyRepoMock struct {
	mock.Mock
}

// PutIfAbsent mocks the PutIfAbsent method
func (m *IdempotencyRepoMock) PutIfAbsent(ctx context.Context, rec model.IdempotencyRecord) (*model.IdempotencyRecord, bool, error) {
	args := m.Called(ctx, rec)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.IdempotencyRecord), args.Bool(1), args.Error(2)
}

// Find mocks the Find method
func (m *IdempotencyRepoMock) Find(ctx context.Context, key string) (*model.IdempotencyRecord, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.IdempotencyRecord), args.Error(1)
}

// Delete mocks the Delete method
func (m *IdempotencyRepoMock) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// PurgeExpired mocks the PurgeExpired method
func (m *IdempotencyRepoMock) PurgeExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// --- Auditor Mock ---

// AuditorMock mocks the assignment.Auditor collaborator
type AuditorMock struct {
	mock.Mock
}

// Audit mocks the Audit method
func (m *AuditorMock) Audit(ctx context.Context, event model.AuditEvent) {
	m.Called(ctx, event)
}

// --- Publisher Mock ---

// PublisherMock mocks the publisher.Publisher interface
type PublisherMock struct {
	mock.Mock
}

// PublishLeadAccepted mocks the PublishLeadAccepted method
func (m *PublisherMock) PublishLeadAccepted(ctx context.Context, lead model.Lead) {
	m.Called(ctx, lead)
}

// Audit mocks the Audit method
func (m *PublisherMock) Audit(ctx context.Context, event model.AuditEvent) {
	m.Called(ctx, event)
}

// Close mocks the Close method
func (m *PublisherMock) Close() {
	m.Called()
}
