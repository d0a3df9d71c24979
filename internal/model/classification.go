package model

// RecommendedAction is the classifier's verdict on how the pipeline
// should treat a submission.
type RecommendedAction string

const (
	ActionAllow      RecommendedAction = "allow"
	ActionQuarantine RecommendedAction = "quarantine"
	ActionBlock      RecommendedAction = "block"
)

// Reason codes collected during classification and quarantine checks.
// The order they are appended in is preserved on the lead record.
const (
	ReasonDisposableEmail = "disposableEmail"
	ReasonSuspiciousTLD   = "suspiciousTld"
	ReasonTestEmail       = "testEmail"
	ReasonSpamPattern     = "spamPattern"
	ReasonBotUserAgent    = "botUserAgent"
	ReasonGibberish       = "gibberishContent"
	ReasonExcessiveLinks  = "excessiveLinks"
	ReasonExcessiveCaps   = "excessiveCaps"
	ReasonHoneypot        = "honeypot"
	ReasonRateLimited     = "rateLimited"
	ReasonDuplicate       = "duplicate"
)

// ClassificationResult is the transient output of the trust classifier.
// It never touches storage; the pipeline copies what it needs onto the lead.
type ClassificationResult struct {
	IsSpam         bool               `json:"is_spam"`
	Confidence     float64            `json:"confidence"` // 0..1, clamped sum of signal scores
	Reasons        []string           `json:"reasons"`    // Ordered triggered reason codes
	Scores         map[string]float64 `json:"scores"`     // Per-signal score contributions
	Recommendation RecommendedAction  `json:"recommendation"`
}

// HasReason reports whether code was triggered.
func (r ClassificationResult) HasReason(code string) bool {
	for _, reason := range r.Reasons {
		if reason == code {
			return true
		}
	}
	return false
}
