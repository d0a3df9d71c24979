// Package quarantine composes the classifier verdict with duplicate and
// velocity checks into the final accept/quarantine decision.
package quarantine

import (
	"context"
	"strings"
	"unicode"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/config"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/model"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/storage"
	"gitlab.com/funnelworks/api/lead-intake-service/pkg/utils"
)

// CheckResult carries the velocity/duplicate findings for one submission.
// Duplicates are flagged, never silently dropped; the caller decides
// whether to merge or reject.
type CheckResult struct {
	RateLimited bool     `json:"rate_limited"` // Email velocity exceeded
	DuplicateOf string   `json:"duplicate_of"` // Existing lead ID when near-duplicate
	Reasons     []string `json:"reasons"`      // Ordered reason codes to append
}

// Checker runs the email-velocity and near-duplicate checks against the
// lead store, with a bloom-filter fast path that skips the store for
// first-seen addresses.
type Checker struct {
	leads storage.LeadRepo
	seen  *seenEmailCache
	cfg   config.QuarantineConfig
}

// NewChecker creates a checker over the lead repository.
func NewChecker(leads storage.LeadRepo, cfg config.QuarantineConfig) *Checker {
	return &Checker{
		leads: leads,
		seen:  newSeenEmailCache(),
		cfg:   cfg,
	}
}

// Check runs both checks for a normalized submission. An address the
// bloom filter has definitely never seen cannot be a duplicate or exceed
// velocity, so the store is not consulted for it.
func (c *Checker) Check(ctx context.Context, sub *model.NormalizedSubmission) (CheckResult, error) {
	var result CheckResult

	maybeSeen := c.seen.MaybeSeen(sub.Email)
	c.seen.Mark(sub.Email)
	if !maybeSeen {
		return result, nil
	}

	now := utils.Now()

	count, err := c.leads.CountByEmailSince(ctx, sub.Email, now.Add(-c.cfg.EmailVelocityWindow))
	if err != nil {
		return result, err
	}
	if count >= int64(c.cfg.EmailVelocityLimit) {
		result.RateLimited = true
		result.Reasons = append(result.Reasons, model.ReasonRateLimited)
	}

	recent, err := c.leads.FindRecentByEmail(ctx, sub.Email, now.Add(-c.cfg.DuplicateWindow))
	if err != nil {
		return result, err
	}
	for i := range recent {
		if fuzzyNameEqual(sub.Name, recent[i].Name) {
			result.DuplicateOf = recent[i].ID
			result.Reasons = append(result.Reasons, model.ReasonDuplicate)
			break
		}
	}

	return result, nil
}

// fuzzyNameEqual compares names case-insensitively after collapsing
// whitespace and punctuation; equality or a prefix relation counts. Two
// empty names are fuzzy-equal: same email with no name within the window
// is still the same submitter.
func fuzzyNameEqual(a, b string) bool {
	na := normalizeName(a)
	nb := normalizeName(b)
	if na == nb {
		return true
	}
	if na == "" || nb == "" {
		return false
	}
	return strings.HasPrefix(na, nb) || strings.HasPrefix(nb, na)
}

func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
