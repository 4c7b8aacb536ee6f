package intel

// Record holds the deduplicated artifacts collected from suspect messages
// over the life of a session. Each slice holds a logical value at most once;
// normalized forms (separators stripped) are what gets stored and compared.
type Record struct {
	BankAccounts   []string `json:"bankAccounts"`
	PaymentHandles []string `json:"upiIds"`
	Links          []string `json:"phishingLinks"`
	PhoneNumbers   []string `json:"phoneNumbers"`
	Keywords       []string `json:"suspiciousKeywords"`
}

// ItemCount returns the number of distinct intelligence items. Keyword hits
// are context, not items, and are excluded from engagement decisions.
func (r *Record) ItemCount() int {
	return len(r.BankAccounts) + len(r.PaymentHandles) + len(r.Links) + len(r.PhoneNumbers)
}

// Canonical returns a copy with nil slices replaced by empty ones, so the
// record always serializes as JSON arrays rather than nulls.
func (r Record) Canonical() Record {
	return Record{
		BankAccounts:   nonNil(r.BankAccounts),
		PaymentHandles: nonNil(r.PaymentHandles),
		Links:          nonNil(r.Links),
		PhoneNumbers:   nonNil(r.PhoneNumbers),
		Keywords:       nonNil(r.Keywords),
	}
}

// Clone returns a deep copy sharing no backing arrays with the receiver.
func (r Record) Clone() Record {
	return Record{
		BankAccounts:   append([]string(nil), r.BankAccounts...),
		PaymentHandles: append([]string(nil), r.PaymentHandles...),
		Links:          append([]string(nil), r.Links...),
		PhoneNumbers:   append([]string(nil), r.PhoneNumbers...),
		Keywords:       append([]string(nil), r.Keywords...),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
