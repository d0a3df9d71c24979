package validator

import (
	"strings"
	"unicode"

	"gitlab.com/funnelworks/api/lead-intake-service/internal/apperrors"
	"gitlab.com/funnelworks/api/lead-intake-service/internal/model"
)

const (
	maxEmailLength   = 254
	maxNameLength    = 100
	maxPhoneLength   = 30
	minPhoneDigits   = 7
	maxMessageLength = 5000
	maxURLLength     = 2048

	// A message is rejected when more than this fraction of its characters
	// are non-printable (tab and newline excluded from the count).
	maxControlCharRatio = 0.05
)

// NormalizeSubmission validates a raw submission and returns either a
// normalized form or the list of field-level errors. A filled honeypot is
// not a field error: it is surfaced on the normalized submission so the
// pipeline can route it to classification instead of a generic 400.
func NormalizeSubmission(sub model.LeadSubmission) (*model.NormalizedSubmission, []apperrors.FieldError) {
	var fieldErrors []apperrors.FieldError

	norm := &model.NormalizedSubmission{
		Name:           strings.TrimSpace(sub.Name),
		Email:          strings.ToLower(strings.TrimSpace(sub.Email)),
		Phone:          normalizePhone(sub.Phone),
		Message:        strings.TrimSpace(sub.Message),
		Zip:            strings.TrimSpace(sub.Zip),
		FunnelID:       strings.TrimSpace(sub.FunnelID),
		PageURL:        strings.TrimSpace(sub.PageURL),
		Referrer:       strings.TrimSpace(sub.Referrer),
		UTM:            sub.UTM,
		IdempotencyKey: strings.TrimSpace(sub.IdempotencyKey),
		HoneypotFilled: strings.TrimSpace(sub.Website) != "",
	}

	// Null bytes are rejected everywhere, before any other rule.
	for field, value := range map[string]string{
		"name": norm.Name, "email": norm.Email, "phone": norm.Phone,
		"message": norm.Message, "pageUrl": norm.PageURL, "referrer": norm.Referrer,
	} {
		if strings.ContainsRune(value, '\x00') {
			fieldErrors = append(fieldErrors, apperrors.FieldError{
				Field: field, Message: "contains null bytes",
			})
		}
	}
	if len(fieldErrors) > 0 {
		return nil, fieldErrors
	}

	if norm.Email == "" {
		fieldErrors = append(fieldErrors, apperrors.FieldError{Field: "email", Message: "is required"})
	} else if len(norm.Email) > maxEmailLength {
		fieldErrors = append(fieldErrors, apperrors.FieldError{Field: "email", Message: "exceeds maximum length"})
	} else if err := ValidateVar(norm.Email, "email"); err != nil {
		fieldErrors = append(fieldErrors, apperrors.FieldError{Field: "email", Message: "must be a valid email address"})
	}

	if norm.Name != "" {
		if len(norm.Name) > maxNameLength {
			fieldErrors = append(fieldErrors, apperrors.FieldError{Field: "name", Message: "exceeds maximum length"})
		} else if !validNameCharset(norm.Name) {
			fieldErrors = append(fieldErrors, apperrors.FieldError{Field: "name", Message: "contains invalid characters"})
		}
	}

	if norm.Phone != "" {
		if len(norm.Phone) > maxPhoneLength {
			fieldErrors = append(fieldErrors, apperrors.FieldError{Field: "phone", Message: "exceeds maximum length"})
		} else if digitCount(norm.Phone) < minPhoneDigits {
			fieldErrors = append(fieldErrors, apperrors.FieldError{Field: "phone", Message: "must contain at least 7 digits"})
		}
	}

	if len(norm.Message) > maxMessageLength {
		fieldErrors = append(fieldErrors, apperrors.FieldError{Field: "message", Message: "exceeds maximum length"})
	} else if controlCharRatio(norm.Message) > maxControlCharRatio {
		fieldErrors = append(fieldErrors, apperrors.FieldError{Field: "message", Message: "contains too many non-printable characters"})
	}

	if len(norm.PageURL) > maxURLLength {
		fieldErrors = append(fieldErrors, apperrors.FieldError{Field: "pageUrl", Message: "exceeds maximum length"})
	}
	if len(norm.Referrer) > maxURLLength {
		fieldErrors = append(fieldErrors, apperrors.FieldError{Field: "referrer", Message: "exceeds maximum length"})
	}

	if len(fieldErrors) > 0 {
		return nil, fieldErrors
	}
	return norm, nil
}

// normalizePhone strips a raw phone value down to digits, keeping a
// single leading + for international prefixes.
func normalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	var b strings.Builder
	for i, r := range raw {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// validNameCharset permits letters (any script), marks, spaces, hyphens,
// apostrophes and periods.
func validNameCharset(name string) bool {
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsSpace(r) {
			continue
		}
		switch r {
		case '-', '\'', '.', ',':
			continue
		}
		return false
	}
	return true
}

func digitCount(s string) int {
	count := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			count++
		}
	}
	return count
}

// controlCharRatio reports the fraction of non-printable characters in s,
// with tab and newline excluded from the count.
func controlCharRatio(s string) float64 {
	if s == "" {
		return 0
	}
	total := 0
	control := 0
	for _, r := range s {
		total++
		if r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		if unicode.IsControl(r) || !unicode.IsPrint(r) {
			control++
		}
	}
	return float64(control) / float64(total)
}
