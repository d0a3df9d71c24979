// Package classifier assigns a trust score to a validated submission.
// Classification is a pure function of its inputs: no I/O, no shared
// state, so scoring can be tested and fuzzed in isolation.
package classifier

import (
	"gitlab.com/funnelworks/api/lead-intake-service/internal/config"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/model"
)

const (
	defaultSpamThreshold  = 0.5
	defaultBlockThreshold = 0.8

	// More than this many hyperlinks in free text is a spam signal.
	maxLinks = 2

	// Uppercase shouting threshold, only applied to messages long enough
	// for the ratio to mean anything.
	capsRatioThreshold = 0.5
	capsMinLength      = 20
)

// Classifier scores submissions against its configured thresholds.
type Classifier struct {
	spamThreshold  float64
	blockThreshold float64
}

// New creates a classifier from config, falling back to defaults for
// unset thresholds.
func New(cfg config.ClassifierConfig) *Classifier {
	c := &Classifier{
		spamThreshold:  cfg.SpamThreshold,
		blockThreshold: cfg.BlockThreshold,
	}
	if c.spamThreshold <= 0 {
		c.spamThreshold = defaultSpamThreshold
	}
	if c.blockThreshold <= 0 {
		c.blockThreshold = defaultBlockThreshold
	}
	return c
}

// Classify scores a normalized submission plus its request context and
// returns the verdict. Reason codes are appended in signal order so the
// recorded list is deterministic for identical input.
func (c *Classifier) Classify(sub *model.NormalizedSubmission, reqCtx model.RequestContext) model.ClassificationResult {
	result := model.ClassificationResult{
		Scores: make(map[string]float64),
	}

	addSignal := func(reason string, scoreKey string, score float64) {
		result.Scores[scoreKey] = score
		if !result.HasReason(reason) {
			result.Reasons = append(result.Reasons, reason)
		}
	}

	if sub.HoneypotFilled {
		addSignal(model.ReasonHoneypot, "honeypot", scoreHoneypot)
	}

	if isDisposableDomain(sub.Email) {
		addSignal(model.ReasonDisposableEmail, "disposableEmail", scoreDisposableEmail)
	}
	if hasSuspiciousTLD(sub.Email) {
		addSignal(model.ReasonSuspiciousTLD, "suspiciousTld", scoreSuspiciousTLD)
	}
	if isTestEmail(sub.Email) {
		addSignal(model.ReasonTestEmail, "testEmail", scoreTestEmail)
	}

	if hits := matchSpamKeywords(sub.Name); len(hits) > 0 {
		addSignal(model.ReasonSpamPattern, "spamPatternName", scoreSpamName)
	}
	if hits := matchSpamKeywords(sub.Message); len(hits) > 0 {
		addSignal(model.ReasonSpamPattern, "spamPatternMessage", scoreSpamMessage)
	}

	if isBotUserAgent(reqCtx.UserAgent) {
		addSignal(model.ReasonBotUserAgent, "botUserAgent", scoreBotUserAgent)
	}

	if looksGibberish(sub.Message) {
		addSignal(model.ReasonGibberish, "gibberish", scoreGibberish)
	}
	if countLinks(sub.Message) > maxLinks {
		addSignal(model.ReasonExcessiveLinks, "excessiveLinks", scoreExcessiveLinks)
	}
	if len(sub.Message) >= capsMinLength && uppercaseRatio(sub.Message) > capsRatioThreshold {
		addSignal(model.ReasonExcessiveCaps, "excessiveCaps", scoreExcessiveCaps)
	}

	total := 0.0
	for _, score := range result.Scores {
		total += score
	}
	if total > 1 {
		total = 1
	}
	result.Confidence = total
	result.IsSpam = total >= c.spamThreshold
	result.Recommendation = c.recommend(result)

	return result
}

// recommend maps confidence to an action. A high-severity combination
// (disposable address plus spam vocabulary plus bot client) blocks
// outright regardless of the summed confidence.
func (c *Classifier) recommend(result model.ClassificationResult) model.RecommendedAction {
	if result.HasReason(model.ReasonHoneypot) {
		return model.ActionBlock
	}
	if result.HasReason(model.ReasonDisposableEmail) &&
		result.HasReason(model.ReasonSpamPattern) &&
		result.HasReason(model.ReasonBotUserAgent) {
		return model.ActionBlock
	}
	switch {
	case result.Confidence >= c.blockThreshold:
		return model.ActionBlock
	case result.Confidence >= c.spamThreshold:
		return model.ActionQuarantine
	default:
		return model.ActionAllow
	}
}
