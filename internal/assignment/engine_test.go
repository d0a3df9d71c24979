package assignment

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/apperrors"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/model"
	storagemock "gitlab.com/funnelworks/api/lead-intake-service/internal/storage/mock"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/logger"
)

func init() {
	// Initialize logger for tests
	logger.Log = zap.NewNop()
}

func newTestEngine() (*Engine, *storagemock.LeadRepoMock, *storagemock.RuleRepoMock, *storagemock.UnassignedRepoMock, *storagemock.AuditorMock) {
	leads := new(storagemock.LeadRepoMock)
	rules := new(storagemock.RuleRepoMock)
	unassigned := new(storagemock.UnassignedRepoMock)
	auditor := new(storagemock.AuditorMock)
	auditor.On("Audit", mock.Anything, mock.Anything).Return()
	return NewEngine(leads, rules, unassigned, auditor), leads, rules, unassigned, auditor
}

func newLead(zip string) *model.Lead {
	return &model.Lead{
		ID:       "lead-1",
		FunnelID: "funnel-1",
		Email:    "jane@gmail.com",
		Zip:      zip,
		Status:   model.StatusNew,
	}
}

func rule(id string, priority int, patterns ...string) model.AssignmentRule {
	return model.AssignmentRule{
		ID:          id,
		FunnelID:    "funnel-1",
		OrgID:       "org-" + id,
		Priority:    priority,
		ZipPatterns: model.ZipPatterns(patterns),
		Active:      true,
	}
}

func TestAssign_PrefixRuleBeatsCatchAllByPriority(t *testing.T) {
	engine, leads, rules, _, auditor := newTestEngine()
	ctx := context.Background()

	// Priority ascending: the 900* rule is evaluated before the catch-all.
	rules.On("ActiveRulesForFunnel", mock.Anything, "funnel-1").
		Return([]model.AssignmentRule{rule("prefix", 1, "900*"), rule("all", 2, "*")}, nil)
	leads.On("ClaimForAssignment", mock.Anything, "lead-1", "prefix", "org-prefix", (*string)(nil), mock.Anything).
		Return(nil)
	rules.On("RecordAssignment", mock.Anything, mock.AnythingOfType("model.RuleAssignment")).Return(nil)

	lead := newLead("90012")
	outcome, err := engine.Assign(ctx, lead)

	require.NoError(t, err)
	assert.True(t, outcome.Assigned)
	require.NotNil(t, outcome.RuleID)
	assert.Equal(t, "prefix", *outcome.RuleID)
	assert.Equal(t, model.StatusAssigned, lead.Status)
	require.NotNil(t, lead.OrgID)
	assert.Equal(t, "org-prefix", *lead.OrgID)
	auditor.AssertCalled(t, "Audit", mock.Anything, mock.Anything)
}

func TestAssign_CatchAllMatchesWhenPrefixDoesNot(t *testing.T) {
	engine, leads, rules, _, _ := newTestEngine()
	ctx := context.Background()

	rules.On("ActiveRulesForFunnel", mock.Anything, "funnel-1").
		Return([]model.AssignmentRule{rule("prefix", 1, "900*"), rule("all", 2, "*")}, nil)
	leads.On("ClaimForAssignment", mock.Anything, "lead-1", "all", "org-all", (*string)(nil), mock.Anything).
		Return(nil)
	rules.On("RecordAssignment", mock.Anything, mock.Anything).Return(nil)

	outcome, err := engine.Assign(ctx, newLead("10001"))

	require.NoError(t, err)
	assert.True(t, outcome.Assigned)
	assert.Equal(t, "all", *outcome.RuleID)
}

func TestAssign_NoActiveRulesMarksUnassigned(t *testing.T) {
	engine, leads, rules, unassigned, _ := newTestEngine()
	ctx := context.Background()

	rules.On("ActiveRulesForFunnel", mock.Anything, "funnel-1").Return([]model.AssignmentRule{}, nil)
	leads.On("MarkUnassigned", mock.Anything, "lead-1").Return(nil)
	unassigned.On("Enqueue", mock.Anything, mock.AnythingOfType("model.UnassignedLead")).Return(nil)

	lead := newLead("90012")
	outcome, err := engine.Assign(ctx, lead)

	require.NoError(t, err)
	assert.False(t, outcome.Assigned)
	assert.Equal(t, "no_active_rules", outcome.Reason)
	assert.Equal(t, model.StatusUnassigned, lead.Status)
}

func TestAssign_NoMatchingRuleMarksUnassigned(t *testing.T) {
	engine, leads, rules, unassigned, _ := newTestEngine()
	ctx := context.Background()

	rules.On("ActiveRulesForFunnel", mock.Anything, "funnel-1").
		Return([]model.AssignmentRule{rule("prefix", 1, "900*")}, nil)
	leads.On("MarkUnassigned", mock.Anything, "lead-1").Return(nil)
	unassigned.On("Enqueue", mock.Anything, mock.Anything).Return(nil)

	outcome, err := engine.Assign(ctx, newLead("10001"))

	require.NoError(t, err)
	assert.False(t, outcome.Assigned)
	assert.Equal(t, "no_matching_rule", outcome.Reason)
}

func TestAssign_InactiveRulesAreSkipped(t *testing.T) {
	engine, leads, rules, unassigned, _ := newTestEngine()
	ctx := context.Background()

	inactive := rule("off", 1, "*")
	inactive.Active = false
	rules.On("ActiveRulesForFunnel", mock.Anything, "funnel-1").
		Return([]model.AssignmentRule{inactive}, nil)
	leads.On("MarkUnassigned", mock.Anything, "lead-1").Return(nil)
	unassigned.On("Enqueue", mock.Anything, mock.Anything).Return(nil)

	outcome, err := engine.Assign(ctx, newLead("90012"))

	require.NoError(t, err)
	assert.False(t, outcome.Assigned)
	leads.AssertNotCalled(t, "ClaimForAssignment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAssign_CapReachedFallsThroughToNextRule(t *testing.T) {
	engine, leads, rules, _, _ := newTestEngine()
	ctx := context.Background()

	capped := rule("capped", 1, "*")
	dailyCap := 5
	capped.DailyCap = &dailyCap

	rules.On("ActiveRulesForFunnel", mock.Anything, "funnel-1").
		Return([]model.AssignmentRule{capped, rule("fallback", 2, "*")}, nil)
	rules.On("CountAssignments", mock.Anything, "capped", mock.Anything, mock.Anything).
		Return(int64(5), int64(5), nil)
	leads.On("ClaimForAssignment", mock.Anything, "lead-1", "fallback", "org-fallback", (*string)(nil), mock.Anything).
		Return(nil)
	rules.On("RecordAssignment", mock.Anything, mock.Anything).Return(nil)

	outcome, err := engine.Assign(ctx, newLead("90012"))

	require.NoError(t, err)
	assert.True(t, outcome.Assigned)
	assert.Equal(t, "fallback", *outcome.RuleID)
}

func TestAssign_MonthlyCapBlocksEvenWithDailyHeadroom(t *testing.T) {
	engine, leads, rules, unassigned, _ := newTestEngine()
	ctx := context.Background()

	capped := rule("capped", 1, "*")
	monthlyCap := 100
	capped.MonthlyCap = &monthlyCap

	rules.On("ActiveRulesForFunnel", mock.Anything, "funnel-1").
		Return([]model.AssignmentRule{capped}, nil)
	rules.On("CountAssignments", mock.Anything, "capped", mock.Anything, mock.Anything).
		Return(int64(0), int64(100), nil)
	leads.On("MarkUnassigned", mock.Anything, "lead-1").Return(nil)
	unassigned.On("Enqueue", mock.Anything, mock.Anything).Return(nil)

	outcome, err := engine.Assign(ctx, newLead("90012"))

	require.NoError(t, err)
	assert.False(t, outcome.Assigned)
}

func TestAssign_ClaimConflictSurfacesWithoutRetry(t *testing.T) {
	engine, leads, rules, _, _ := newTestEngine()
	ctx := context.Background()

	rules.On("ActiveRulesForFunnel", mock.Anything, "funnel-1").
		Return([]model.AssignmentRule{rule("only", 1, "*")}, nil)
	leads.On("ClaimForAssignment", mock.Anything, "lead-1", "only", "org-only", (*string)(nil), mock.Anything).
		Return(fmt.Errorf("wrapped: %w", apperrors.ErrConflict))

	_, err := engine.Assign(ctx, newLead("90012"))

	require.Error(t, err)
	assert.True(t, apperrors.IsConflictError(err))
	leads.AssertNumberOfCalls(t, "ClaimForAssignment", 1)
}

func TestAssign_RacingClaimsYieldOneWinner(t *testing.T) {
	// Two assignment attempts race for the same lead. The repo's
	// conditional write grants the claim once; the loser sees a conflict.
	engine, leads, rules, _, _ := newTestEngine()
	ctx := context.Background()

	rules.On("ActiveRulesForFunnel", mock.Anything, "funnel-1").
		Return([]model.AssignmentRule{rule("only", 1, "*")}, nil)
	rules.On("RecordAssignment", mock.Anything, mock.Anything).Return(nil)
	leads.On("ClaimForAssignment", mock.Anything, "lead-1", "only", "org-only", (*string)(nil), mock.Anything).
		Return(nil).Once()
	leads.On("ClaimForAssignment", mock.Anything, "lead-1", "only", "org-only", (*string)(nil), mock.Anything).
		Return(apperrors.ErrConflict).Once()

	first := newLead("90012")
	outcome, err := engine.Assign(ctx, first)
	require.NoError(t, err)
	assert.True(t, outcome.Assigned)

	second := newLead("90012")
	_, err = engine.Assign(ctx, second)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflictError(err))
	assert.Equal(t, model.StatusNew, second.Status, "a lost claim must not mutate the local lead")
	leads.AssertNumberOfCalls(t, "ClaimForAssignment", 2)
}

func TestReassign_OverwritesAndRemovesFromQueue(t *testing.T) {
	engine, leads, _, unassigned, auditor := newTestEngine()
	ctx := context.Background()

	ruleID := "rule-9"
	leads.On("Reassign", mock.Anything, "lead-1", "org-2", &ruleID, (*string)(nil), mock.Anything).Return(nil)
	unassigned.On("Remove", mock.Anything, "lead-1").Return(nil)

	err := engine.Reassign(ctx, "lead-1", "org-2", &ruleID, nil, "admin@funnelworks.io")

	require.NoError(t, err)
	unassigned.AssertCalled(t, "Remove", mock.Anything, "lead-1")
	auditor.AssertCalled(t, "Audit", mock.Anything, mock.Anything)
}

func TestReassign_QueueCleanupFailureDoesNotUndo(t *testing.T) {
	engine, leads, _, unassigned, _ := newTestEngine()
	ctx := context.Background()

	leads.On("Reassign", mock.Anything, "lead-1", "org-2", (*string)(nil), (*string)(nil), mock.Anything).Return(nil)
	unassigned.On("Remove", mock.Anything, "lead-1").Return(fmt.Errorf("queue down"))

	err := engine.Reassign(ctx, "lead-1", "org-2", nil, nil, "admin@funnelworks.io")
	assert.NoError(t, err)
}
