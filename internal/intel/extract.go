package intel

import (
	"regexp"
	"strings"
)

// Extraction is deliberately permissive: a false positive is just an extra
// lead for an analyst, a false negative is evidence lost for good.
var (
	accountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{9,18}\b`),
		regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}(?:[-\s]?\d{4})?\b`),
	}
	handlePattern = regexp.MustCompile(`\b[\w.\-]+@\w+\b`)
	urlPattern    = regexp.MustCompile(`https?://[^\s<>"']+`)
	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\+91[\s-]?\d{10}`),
		regexp.MustCompile(`\b0?\d{10}\b`),
		regexp.MustCompile(`\+\d{1,3}[\s-]?\d{6,14}`),
	}
	separators = regexp.MustCompile(`[\s-]`)
)

// suspiciousTerms is the fixed vocabulary of urgency, credential-harvesting
// and account-threat phrases. Matching is a case-insensitive substring test;
// the canonical spelling below is what gets recorded.
var suspiciousTerms = []string{
	"urgent", "verify", "account blocked", "suspended", "immediate",
	"confirm", "OTP", "password", "PIN", "CVV", "card details",
	"bank details", "click here", "limited time", "act now",
	"verify account", "update KYC", "deactivated", "expire",
	"prize", "won", "claim", "refund", "tax", "lottery",
}

// Scan extracts intelligence from one message and folds it into the record.
// Existing values are never removed and re-observed values are not duplicated,
// so scanning the same text twice is a no-op the second time. Returns the
// number of newly recorded values across all categories.
func (r *Record) Scan(text string) int {
	added := 0

	for _, re := range accountPatterns {
		for _, m := range re.FindAllString(text, -1) {
			clean := separators.ReplaceAllString(m, "")
			if len(clean) >= 9 && !contains(r.BankAccounts, clean) {
				r.BankAccounts = append(r.BankAccounts, clean)
				added++
			}
		}
	}

	for _, m := range handlePattern.FindAllString(text, -1) {
		if strings.Contains(m, "@") && !contains(r.PaymentHandles, m) {
			r.PaymentHandles = append(r.PaymentHandles, m)
			added++
		}
	}

	for _, m := range urlPattern.FindAllString(text, -1) {
		if !contains(r.Links, m) {
			r.Links = append(r.Links, m)
			added++
		}
	}

	for _, re := range phonePatterns {
		for _, m := range re.FindAllString(text, -1) {
			clean := separators.ReplaceAllString(m, "")
			if len(clean) >= 10 && !contains(r.PhoneNumbers, clean) {
				r.PhoneNumbers = append(r.PhoneNumbers, clean)
				added++
			}
		}
	}

	lower := strings.ToLower(text)
	for _, term := range suspiciousTerms {
		if strings.Contains(lower, strings.ToLower(term)) && !contains(r.Keywords, term) {
			r.Keywords = append(r.Keywords, term)
			added++
		}
	}

	return added
}
