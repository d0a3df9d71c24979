package classifier

import (
	"regexp"
	"strings"
	"unicode"
)

// Signal score contributions. Scores are additive; the summed confidence
// is clamped to [0,1] by the classifier.
const (
	scoreDisposableEmail = 0.40
	scoreSuspiciousTLD   = 0.25
	scoreTestEmail       = 0.30
	scoreSpamName        = 0.20
	scoreSpamMessage     = 0.30
	scoreBotUserAgent    = 0.30
	scoreGibberish       = 0.25
	scoreExcessiveLinks  = 0.20
	scoreExcessiveCaps   = 0.15
	scoreHoneypot        = 1.00
)

// disposableDomains are throwaway email providers. Submissions from these
// domains are almost never real buyers.
var disposableDomains = map[string]struct{}{
	"mailinator.com":    {},
	"guerrillamail.com": {},
	"10minutemail.com":  {},
	"tempmail.com":      {},
	"temp-mail.org":     {},
	"throwaway.email":   {},
	"yopmail.com":       {},
	"trashmail.com":     {},
	"sharklasers.com":   {},
	"getnada.com":       {},
	"maildrop.cc":       {},
	"dispostable.com":   {},
	"fakeinbox.com":     {},
	"mailnesia.com":     {},
	"mintemail.com":     {},
	"spamgourmet.com":   {},
	"mytrashmail.com":   {},
	"mailcatch.com":     {},
}

// suspiciousTLDs see a disproportionate share of automated abuse.
var suspiciousTLDs = map[string]struct{}{
	"xyz":   {},
	"top":   {},
	"click": {},
	"loan":  {},
	"work":  {},
	"buzz":  {},
	"icu":   {},
	"rest":  {},
	"gq":    {},
	"tk":    {},
	"ml":    {},
	"cf":    {},
	"ga":    {},
}

// testEmailDomains are placeholder domains used by testers and bots.
var testEmailDomains = map[string]struct{}{
	"test.com":    {},
	"example.com": {},
	"example.org": {},
	"example.net": {},
	"email.com":   {},
	"domain.com":  {},
}

var testLocalPattern = regexp.MustCompile(`^(test\d*|testing|demo|sample|example|asdf+|qwerty|foo|bar|baz)$`)

// spamKeywords are scanned case-insensitively in name and free-text fields.
var spamKeywords = []string{
	"free money",
	"click here",
	"make money fast",
	"work from home",
	"100% free",
	"earn extra cash",
	"guaranteed income",
	"be your own boss",
	"no obligation",
	"winner",
	"congratulations you",
	"viagra",
	"cialis",
	"casino",
	"lottery",
	"bitcoin investment",
	"crypto profit",
	"forex signals",
	"seo services",
	"buy backlinks",
	"increase your ranking",
	"weight loss",
	"miracle cure",
	"loan approval",
	"consolidate debt",
	"limited time offer",
	"act now",
	"risk free",
}

// botUserAgentMarkers are substrings of crawler/tooling user agents.
var botUserAgentMarkers = []string{
	"bot",
	"crawler",
	"spider",
	"scraper",
	"curl",
	"wget",
	"python-requests",
	"python/",
	"scrapy",
	"httpclient",
	"go-http-client",
	"java/",
	"libwww",
	"phantomjs",
	"headless",
	"selenium",
	"puppeteer",
	"playwright",
}

var linkPattern = regexp.MustCompile(`(?i)\bhttps?://|\bwww\.`)

// isDisposableDomain reports whether the email's domain is a known
// throwaway provider.
func isDisposableDomain(email string) bool {
	domain := emailDomain(email)
	_, ok := disposableDomains[domain]
	return ok
}

// hasSuspiciousTLD reports whether the email's top-level domain is on the
// abuse-heavy list.
func hasSuspiciousTLD(email string) bool {
	domain := emailDomain(email)
	idx := strings.LastIndex(domain, ".")
	if idx < 0 || idx == len(domain)-1 {
		return false
	}
	_, ok := suspiciousTLDs[domain[idx+1:]]
	return ok
}

// isTestEmail reports whether the email looks like a placeholder or
// tester address.
func isTestEmail(email string) bool {
	local, domain := splitEmail(email)
	if _, ok := testEmailDomains[domain]; ok {
		return true
	}
	if testLocalPattern.MatchString(local) {
		return true
	}
	if isRepeatedRune(local) {
		return true
	}
	return false
}

// isRepeatedRune reports whether s is a single rune repeated at least
// twice, e.g. the local part of aaa@gmail.com.
func isRepeatedRune(s string) bool {
	runes := []rune(s)
	if len(runes) < 2 {
		return false
	}
	for _, r := range runes[1:] {
		if r != runes[0] {
			return false
		}
	}
	return true
}

// matchSpamKeywords returns the keywords found in text, lower-cased scan.
func matchSpamKeywords(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	var hits []string
	for _, kw := range spamKeywords {
		if strings.Contains(lower, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}

// isBotUserAgent reports whether the user agent carries a known
// crawler/tooling marker. An empty user agent is also treated as bot-like.
func isBotUserAgent(userAgent string) bool {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	if ua == "" {
		return true
	}
	for _, marker := range botUserAgentMarkers {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}

// countLinks counts hyperlink starts in free text.
func countLinks(text string) int {
	return len(linkPattern.FindAllStringIndex(text, -1))
}

// uppercaseRatio returns the fraction of letters in s that are upper case.
func uppercaseRatio(s string) float64 {
	letters := 0
	upper := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

// looksGibberish applies cheap lexical heuristics: a token is
// dictionary-shaped when it contains a vowel, no run of four identical
// characters and no run of six consonants. Text is gibberish when fewer
// than half its tokens are dictionary-shaped.
func looksGibberish(text string) bool {
	tokens := tokenize(text)
	if len(tokens) < 2 {
		return false
	}
	shaped := 0
	for _, tok := range tokens {
		if dictionaryShaped(tok) {
			shaped++
		}
	}
	return float64(shaped)/float64(len(tokens)) < 0.5
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 3 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func dictionaryShaped(token string) bool {
	if len(token) > 24 {
		return false
	}
	hasVowel := false
	var prev rune
	runLen := 0
	consonantRun := 0
	for _, r := range token {
		if strings.ContainsRune("aeiouy", r) {
			hasVowel = true
			consonantRun = 0
		} else {
			consonantRun++
			if consonantRun >= 6 {
				return false
			}
		}
		if r == prev {
			runLen++
			if runLen >= 4 {
				return false
			}
		} else {
			prev = r
			runLen = 1
		}
	}
	return hasVowel
}

func emailDomain(email string) string {
	_, domain := splitEmail(email)
	return domain
}

func splitEmail(email string) (local, domain string) {
	idx := strings.LastIndex(email, "@")
	if idx < 0 {
		return email, ""
	}
	return email[:idx], email[idx+1:]
}
