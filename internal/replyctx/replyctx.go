// Package replyctx derives the locale/time/emoji context a reply is
// generated under. Everything here is pure: one candidate in, one context
// out, computed once before generation.
package replyctx

import (
	"regexp"
	"time"

	"golang.org/x/text/language"

	"github.com/dawnloop/gmbot/internal/platform"
)

// PartOfDay classifies the greeting in the source text.
type PartOfDay string

const (
	Morning PartOfDay = "morning"
	Night   PartOfDay = "night"
	Unknown PartOfDay = "unknown"
)

// DefaultLanguage is the fallback when the candidate's declared locale is
// absent or unsupported.
const DefaultLanguage = "en"

// SupportedLanguages is the fixed set the generator has tone guidance and
// fallback pools for.
var SupportedLanguages = []string{"en", "es", "pt", "fr", "de", "it"}

var supportedTags = []language.Tag{
	language.English,
	language.Spanish,
	language.Portuguese,
	language.French,
	language.German,
	language.Italian,
}

var matcher = language.NewMatcher(supportedTags)

// Greeting phrase detection. Multi-language on purpose: the search query
// is language-filtered but quoted posts and mixed-language greetings slip
// through. Morning wins when a text matches both.
var (
	morningRe = regexp.MustCompile(`(?i)\b(gm|good morning|buenos d[ií]as?|bom dia|guten morgen|bonjour)\b`)
	nightRe   = regexp.MustCompile(`(?i)\b(gn|good night|buenas noches?|boa noite|gute nacht|bonne nuit)\b`)

	// Common emoji blocks: emoticons, misc symbols and pictographs,
	// transport, regional indicators, misc symbols, dingbats.
	emojiRe = regexp.MustCompile(`[\x{1F600}-\x{1F64F}]|[\x{1F300}-\x{1F5FF}]|[\x{1F680}-\x{1F6FF}]|[\x{1F1E0}-\x{1F1FF}]|[\x{2600}-\x{26FF}]|[\x{2700}-\x{27BF}]`)
)

// Context is the derived reply-decision context for one candidate.
type Context struct {
	Language    string
	PartOfDay   PartOfDay
	IsWeekend   bool
	MirrorEmoji bool
}

// Overrides force parts of the derivation, from CLI flags.
type Overrides struct {
	// Language forces the resolved locale when non-empty.
	Language string

	// Weekend forces weekend/weekday when non-nil.
	Weekend *bool
}

// Build derives the full context for a candidate.
func Build(c platform.Candidate, ov Overrides) Context {
	return Context{
		Language:    resolveLanguage(c.Language, ov.Language),
		PartOfDay:   DetectPartOfDay(c.Text),
		IsWeekend:   resolveWeekend(c.CreatedAt, ov.Weekend),
		MirrorEmoji: HasEmoji(c.Text),
	}
}

// resolveLanguage picks the override, else the declared locale if it maps
// confidently onto the supported set, else the default.
func resolveLanguage(declared, override string) string {
	if override != "" {
		return normalizeSupported(override)
	}
	return normalizeSupported(declared)
}

func normalizeSupported(tag string) string {
	if tag == "" {
		return DefaultLanguage
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return DefaultLanguage
	}
	_, idx, conf := matcher.Match(parsed)
	if conf < language.High {
		return DefaultLanguage
	}
	return SupportedLanguages[idx]
}

// DetectPartOfDay classifies the greeting; morning wins ambiguous text.
func DetectPartOfDay(text string) PartOfDay {
	if morningRe.MatchString(text) {
		return Morning
	}
	if nightRe.MatchString(text) {
		return Night
	}
	return Unknown
}

// resolveWeekend uses the override when present, else the candidate's
// creation day-of-week in UTC.
func resolveWeekend(createdAt time.Time, override *bool) bool {
	if override != nil {
		return *override
	}
	switch createdAt.UTC().Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return false
}

// HasEmoji reports whether the text contains a character in the common
// emoji blocks.
func HasEmoji(text string) bool {
	return emojiRe.MatchString(text)
}
