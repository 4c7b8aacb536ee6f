package classifier

import (
	"fmt"
	"math"
	"strings"
)

// fallbackBuckets are scanned in order; the last bucket that contributes a
// match names the scam type. Order matters and mirrors the indicator
// taxonomy the model prompt describes.
var fallbackBuckets = []struct {
	label string
	terms []string
}{
	{"bank_fraud", []string{"account blocked", "verify account", "suspended", "bank account"}},
	{"payment_fraud", []string{"upi", "payment", "transaction", "refund"}},
	{"phishing", []string{"click here", "verify now", "update kyc", "confirm"}},
	{"credential", []string{"otp", "pin", "cvv", "password", "card details"}},
	{"urgency", []string{"urgent", "immediate", "today", "now", "limited time"}},
}

// Fallback is the deterministic keyword scorer used whenever the model path
// is unavailable or unusable. Classification is positive only with at least
// two matches across buckets; confidence grows with the match count and is
// capped at 0.85 so a keyword hit never outranks a confident model answer.
func Fallback(message string) Verdict {
	lower := strings.ToLower(message)

	matches := 0
	scamType := "unknown"
	for _, bucket := range fallbackBuckets {
		n := 0
		for _, term := range bucket.terms {
			if strings.Contains(lower, term) {
				n++
			}
		}
		if n > 0 {
			matches += n
			scamType = bucket.label
		}
	}

	if matches >= 2 {
		confidence := math.Min(0.5+float64(matches)*0.1, 0.85)
		return Verdict{
			IsScam:     true,
			Confidence: confidence,
			ScamType:   scamType,
			Reasoning:  fmt.Sprintf("Detected %d scam indicators", matches),
			Source:     SourceFallback,
		}
	}

	return Verdict{
		IsScam:     false,
		Confidence: 0.0,
		ScamType:   "unknown",
		Reasoning:  "No clear scam indicators",
		Source:     SourceFallback,
	}
}
