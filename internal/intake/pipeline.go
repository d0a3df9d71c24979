// Package intake composes validation, rate limiting, classification,
// idempotency and persistence into the submission pipeline. It is the
// only component callable from the network boundary.
package intake

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/apperrors"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/assignment"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/classifier"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/idempotency"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/model"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/observer"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/publisher"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/quarantine"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/ratelimit"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/storage"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/tenant"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/validator"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/logger"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/utils"
)

// Outcome labels for pipeline metrics.
const (
	outcomeAccepted    = "accepted"
	outcomeQuarantined = "quarantined"
	outcomeBlocked     = "blocked"
	outcomeRateLimited = "rate_limited"
	outcomeValidation  = "validation_failed"
	outcomeDuplicate   = "duplicate"
	outcomeError       = "error"
)

// Pipeline wires the intake stages together. Every stage failure
// short-circuits with a specific outcome from the apperrors taxonomy.
type Pipeline struct {
	limiter    *ratelimit.Limiter
	classifier *classifier.Classifier
	checker    *quarantine.Checker
	guard      *idempotency.Guard
	leads      storage.LeadRepo
	engine     *assignment.Engine
	worker     assignment.IWorker // nil unless async assignment is enabled
	events     publisher.Publisher
}

// NewPipeline creates the intake pipeline. Pass a non-nil worker to run
// assignment asynchronously instead of inline.
func NewPipeline(
	limiter *ratelimit.Limiter,
	cls *classifier.Classifier,
	checker *quarantine.Checker,
	guard *idempotency.Guard,
	leads storage.LeadRepo,
	engine *assignment.Engine,
	worker assignment.IWorker,
	events publisher.Publisher,
) *Pipeline {
	return &Pipeline{
		limiter:    limiter,
		classifier: cls,
		checker:    checker,
		guard:      guard,
		leads:      leads,
		engine:     engine,
		worker:     worker,
		events:     events,
	}
}

// Submit runs one raw submission through the full pipeline and returns
// the outcome, or one of the taxonomy errors for the transport layer to
// map. A retried request carrying a seen idempotency key returns the
// original outcome without re-executing side effects.
func (p *Pipeline) Submit(ctx context.Context, sub model.LeadSubmission, reqCtx model.RequestContext) (*model.SubmissionResult, error) {
	log := logger.FromContext(ctx)
	observer.IncSubmissionReceived(sub.FunnelID)

	// Stage 1: normalize and validate. A filled honeypot is not a field
	// error; it flows on to classification as a bot signal.
	norm, fieldErrors := validator.NormalizeSubmission(sub)
	if len(fieldErrors) > 0 {
		observer.IncSubmissionOutcome(sub.FunnelID, outcomeValidation)
		return nil, apperrors.NewValidation(fieldErrors)
	}

	// Stage 2: rate limit by client identity. A limiter that cannot be
	// consulted fails closed.
	identity := reqCtx.ClientIP
	if norm.FunnelID != "" {
		identity = reqCtx.ClientIP + "|" + norm.FunnelID
	}
	limit, err := p.limiter.Allow(ctx, identity)
	if err != nil {
		observer.IncSubmissionOutcome(norm.FunnelID, outcomeError)
		return nil, err
	}
	if !limit.Allowed {
		observer.IncRateLimitDenied("submission")
		observer.IncSubmissionOutcome(norm.FunnelID, outcomeRateLimited)
		return nil, &apperrors.RateLimitError{
			Limit:      limit.Limit,
			Count:      limit.Count,
			RetryAfter: limit.RetryAfter,
		}
	}

	// Stage 3: pure classification.
	classification := p.classifier.Classify(norm, reqCtx)
	observer.ObserveClassificationConfidence(norm.FunnelID, classification.Confidence)

	// Stage 4: email velocity and near-duplicate checks. Any reason from
	// either source forces quarantine regardless of numeric confidence.
	check, err := p.checker.Check(ctx, norm)
	if err != nil {
		observer.IncSubmissionOutcome(norm.FunnelID, outcomeError)
		return nil, err
	}
	reasons := append([]string{}, classification.Reasons...)
	reasons = append(reasons, check.Reasons...)

	status := model.StatusNew
	if len(reasons) > 0 || classification.Recommendation != model.ActionAllow {
		status = model.StatusQuarantined
	}

	// Stage 5: idempotency guard. The lead ID is reserved before any side
	// effect so racing duplicates agree on the winner's outcome.
	leadID := uuid.NewString()
	key := p.guard.DeriveKey(norm, reqCtx, utils.Now())
	record, created, err := p.guard.Reserve(ctx, key, leadID, status)
	if err != nil {
		observer.IncSubmissionOutcome(norm.FunnelID, outcomeError)
		return nil, err
	}
	if !created {
		log.Info("Idempotent replay, returning recorded outcome",
			zap.String("lead_id", record.LeadID),
			zap.String("status", string(record.Status)),
		)
		observer.IncSubmissionOutcome(norm.FunnelID, outcomeDuplicate)
		return &model.SubmissionResult{
			LeadID:    record.LeadID,
			Status:    record.Status,
			Duplicate: true,
		}, nil
	}

	// Stage 6: persist exactly once. A failed save releases the
	// reservation so the client's retry re-executes instead of replaying
	// a lead that was never written.
	lead := p.buildLead(leadID, norm, reqCtx, classification, reasons, status)
	if err := p.leads.Save(ctx, lead); err != nil {
		if relErr := p.guard.Release(ctx, key); relErr != nil {
			log.Error("Failed to release idempotency reservation after save failure",
				zap.String("lead_id", leadID), zap.Error(relErr))
		}
		observer.IncSubmissionOutcome(norm.FunnelID, outcomeError)
		return nil, err
	}

	switch {
	case classification.Recommendation == model.ActionBlock:
		observer.IncSubmissionOutcome(norm.FunnelID, outcomeBlocked)
	case status == model.StatusQuarantined:
		observer.IncSubmissionOutcome(norm.FunnelID, outcomeQuarantined)
	default:
		observer.IncSubmissionOutcome(norm.FunnelID, outcomeAccepted)
	}

	// Stage 7: accepted leads are published and handed to assignment.
	if status == model.StatusNew {
		p.events.PublishLeadAccepted(ctx, lead)
		p.dispatchAssignment(ctx, &lead)
	}

	log.Info("Submission processed",
		zap.String("lead_id", lead.ID),
		zap.String("funnel_id", lead.FunnelID),
		zap.String("status", string(lead.Status)),
		zap.Float64("confidence", classification.Confidence),
		zap.Strings("reasons", reasons),
	)

	return &model.SubmissionResult{LeadID: lead.ID, Status: lead.Status}, nil
}

// dispatchAssignment routes the lead to the engine, inline or through the
// worker pool. Assignment failures never fail the submission: the lead is
// already persisted and can be re-run from the triage queue.
func (p *Pipeline) dispatchAssignment(ctx context.Context, lead *model.Lead) {
	log := logger.FromContext(ctx)

	if p.worker != nil {
		taskCtx := tenantTaskContext(ctx)
		if err := p.worker.SubmitTask(assignment.TaskData{Ctx: taskCtx, Lead: *lead}); err != nil {
			log.Error("Failed to queue assignment task", zap.String("lead_id", lead.ID), zap.Error(err))
		}
		return
	}

	if _, err := p.engine.Assign(ctx, lead); err != nil {
		if apperrors.IsConflictError(err) {
			log.Debug("Inline assignment lost claim race", zap.String("lead_id", lead.ID))
			return
		}
		log.Error("Inline assignment failed", zap.String("lead_id", lead.ID), zap.Error(err))
	}
}

// tenantTaskContext detaches a task context from the request so the pool
// can finish after the HTTP response, carrying over the request-scoped
// identifiers used for log correlation.
func tenantTaskContext(ctx context.Context) context.Context {
	taskCtx := context.Background()
	if funnelID, err := tenant.FromContext(ctx); err == nil {
		taskCtx = tenant.WithFunnelID(taskCtx, funnelID)
	}
	if requestID, err := tenant.FromRequestIDContext(ctx); err == nil {
		taskCtx = tenant.WithRequestID(taskCtx, requestID)
	}
	return logger.WithLogger(taskCtx, logger.FromContext(ctx))
}

func (p *Pipeline) buildLead(
	id string,
	norm *model.NormalizedSubmission,
	reqCtx model.RequestContext,
	classification model.ClassificationResult,
	reasons []string,
	status model.LeadStatus,
) model.Lead {
	lead := model.Lead{
		ID:        id,
		FunnelID:  norm.FunnelID,
		Name:      norm.Name,
		Email:     norm.Email,
		Phone:     norm.Phone,
		Message:   norm.Message,
		Zip:       norm.Zip,
		PageURL:   norm.PageURL,
		Referrer:  norm.Referrer,
		Status:    status,
		SpamScore: classification.Confidence,
		ClientIP:  reqCtx.ClientIP,
		UserAgent: reqCtx.UserAgent,
	}
	if len(norm.UTM) > 0 {
		lead.UTM = datatypes.JSON(utils.MustMarshalJSON(norm.UTM))
	}
	if len(reasons) > 0 {
		lead.SpamReasons = datatypes.JSON(utils.MustMarshalJSON(reasons))
	}
	return lead
}
