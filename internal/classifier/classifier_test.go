package classifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/config"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/model"
)

func defaultConfig() config.ClassifierConfig {
	return config.ClassifierConfig{SpamThreshold: 0.5, BlockThreshold: 0.8}
}

func submission(email string) *model.NormalizedSubmission {
	return &model.NormalizedSubmission{
		Email: email,
		Name:  "Jane Doe",
	}
}

func humanContext() model.RequestContext {
	return model.RequestContext{
		ClientIP:  "203.0.113.10",
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)",
	}
}

func TestClassify_CleanSubmission(t *testing.T) {
	c := New(defaultConfig())

	result := c.Classify(&model.NormalizedSubmission{
		Email:   "jane.doe@gmail.com",
		Name:    "Jane Doe",
		Message: "Hi, I'd like a quote for my kitchen remodel.",
	}, humanContext())

	assert.False(t, result.IsSpam)
	assert.Empty(t, result.Reasons)
	assert.Equal(t, model.ActionAllow, result.Recommendation)
	assert.Less(t, result.Confidence, 0.5)
}

func TestClassify_DisposableEmailDomain(t *testing.T) {
	c := New(defaultConfig())

	result := c.Classify(submission("someone@mailinator.com"), humanContext())

	assert.True(t, result.HasReason(model.ReasonDisposableEmail))
	assert.GreaterOrEqual(t, result.Confidence, 0.40)
}

func TestClassify_TestEmailAddress(t *testing.T) {
	c := New(defaultConfig())

	result := c.Classify(submission("test@test.com"), humanContext())

	assert.True(t, result.HasReason(model.ReasonTestEmail))
}

func TestClassify_RepeatedCharacterLocalPart(t *testing.T) {
	c := New(defaultConfig())

	result := c.Classify(submission("aaaaaa@gmail.com"), humanContext())
	assert.True(t, result.HasReason(model.ReasonTestEmail))

	clean := c.Classify(submission("jane.doe@gmail.com"), humanContext())
	assert.False(t, clean.HasReason(model.ReasonTestEmail))
}

func TestClassify_SpamKeywords(t *testing.T) {
	c := New(defaultConfig())

	sub := submission("jane@gmail.com")
	sub.Message = "FREE MONEY! CLICK HERE!"
	result := c.Classify(sub, humanContext())

	assert.True(t, result.HasReason(model.ReasonSpamPattern))
}

func TestClassify_EmptyUserAgentIsBotSignal(t *testing.T) {
	c := New(defaultConfig())

	result := c.Classify(submission("jane@gmail.com"), model.RequestContext{ClientIP: "203.0.113.10"})

	assert.True(t, result.HasReason(model.ReasonBotUserAgent))
}

func TestClassify_CombinedSignalsExceedAnySingle(t *testing.T) {
	c := New(defaultConfig())

	single := c.Classify(submission("someone@mailinator.com"), humanContext())

	combined := c.Classify(&model.NormalizedSubmission{
		Email:   "someone@mailinator.com",
		Name:    "Jane Doe",
		Message: "FREE MONEY! CLICK HERE!",
	}, model.RequestContext{ClientIP: "203.0.113.10", UserAgent: "curl/8.4.0"})

	assert.Greater(t, combined.Confidence, single.Confidence)
	assert.True(t, combined.IsSpam)
}

func TestClassify_HighSeverityComboBlocks(t *testing.T) {
	c := New(defaultConfig())

	// Disposable domain + spam keywords + bot user agent must block even
	// if the clamped score sits below the block threshold.
	result := c.Classify(&model.NormalizedSubmission{
		Email:   "someone@mailinator.com",
		Name:    "Jane Doe",
		Message: "free money for you",
	}, model.RequestContext{ClientIP: "203.0.113.10", UserAgent: "python-requests/2.31"})

	require.True(t, result.HasReason(model.ReasonDisposableEmail))
	require.True(t, result.HasReason(model.ReasonSpamPattern))
	require.True(t, result.HasReason(model.ReasonBotUserAgent))
	assert.Equal(t, model.ActionBlock, result.Recommendation)
}

func TestClassify_HoneypotAlwaysBlocks(t *testing.T) {
	c := New(defaultConfig())

	sub := &model.NormalizedSubmission{
		Email:          "jane.doe@gmail.com",
		Name:           "Jane Doe",
		HoneypotFilled: true,
	}
	result := c.Classify(sub, humanContext())

	assert.True(t, result.HasReason(model.ReasonHoneypot))
	assert.Equal(t, model.ActionBlock, result.Recommendation)
	assert.Equal(t, 1.0, result.Confidence)
}

func TestClassify_ExcessiveLinks(t *testing.T) {
	c := New(defaultConfig())

	sub := submission("jane@gmail.com")
	sub.Message = strings.Repeat("see https://example.net/offer ", 4)
	result := c.Classify(sub, humanContext())

	assert.True(t, result.HasReason(model.ReasonExcessiveLinks))
}

func TestClassify_ConfidenceClamped(t *testing.T) {
	c := New(defaultConfig())

	// Every signal at once still yields a confidence within [0, 1].
	result := c.Classify(&model.NormalizedSubmission{
		Email:          "test@mailinator.com",
		Name:           "xzqwv bnmtk",
		Message:        "FREE MONEY CLICK HERE http://a.example http://b.example http://c.example http://d.example",
		HoneypotFilled: true,
	}, model.RequestContext{ClientIP: "203.0.113.10"})

	assert.LessOrEqual(t, result.Confidence, 1.0)
	assert.GreaterOrEqual(t, result.Confidence, 0.0)
	assert.Equal(t, model.ActionBlock, result.Recommendation)
}

func TestClassify_ReasonsAreUniqueAndOrdered(t *testing.T) {
	c := New(defaultConfig())

	result := c.Classify(&model.NormalizedSubmission{
		Email:   "someone@mailinator.com",
		Name:    "Jane Doe",
		Message: "free money, click here, free money",
	}, humanContext())

	seen := map[string]bool{}
	for _, reason := range result.Reasons {
		assert.False(t, seen[reason], "duplicate reason %s", reason)
		seen[reason] = true
	}
}
