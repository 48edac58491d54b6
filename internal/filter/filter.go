// Package filter holds the stateless content admission predicate. It runs
// after ranking and dedup: everything here is about whether the post itself
// is safe and worth greeting back.
package filter

import "strings"

// Skip reasons, stable strings used in logs and tests.
const (
	ReasonLink      = "contains link"
	ReasonReply     = "is a direct reply"
	ReasonSensitive = "sensitive content"
)

// DefaultSensitiveKeywords covers bereavement, disaster, and politically
// charged terms. Matching is case-insensitive substring.
var DefaultSensitiveKeywords = []string{
	"rip", "passed away", "funeral", "hospital", "surgery", "diagnosed",
	"cancer", "covid", "tragedy", "disaster", "earthquake", "flood",
	"war", "shooting", "layoffs", "politics", "election",
}

// Decision is the result of evaluating one candidate's text.
type Decision struct {
	Skip   bool
	Reason string
}

// Filter is a pure predicate over candidate text.
type Filter struct {
	keywords []string
}

// New creates a filter with the given sensitive-keyword list. A nil list
// uses DefaultSensitiveKeywords.
func New(keywords []string) *Filter {
	if keywords == nil {
		keywords = DefaultSensitiveKeywords
	}
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	return &Filter{keywords: lowered}
}

// ShouldSkip evaluates the rules in order; the first match wins.
//
// A post that merely mentions someone mid-text ("gm @everyone!") is a
// broadcast and is not skipped; only a leading @-mention marks a direct
// reply to a specific account.
func (f *Filter) ShouldSkip(text string) Decision {
	if strings.Contains(text, "http") {
		return Decision{Skip: true, Reason: ReasonLink}
	}

	if strings.HasPrefix(strings.TrimSpace(text), "@") {
		return Decision{Skip: true, Reason: ReasonReply}
	}

	lower := strings.ToLower(text)
	for _, kw := range f.keywords {
		if strings.Contains(lower, kw) {
			return Decision{Skip: true, Reason: ReasonSensitive}
		}
	}

	return Decision{}
}
