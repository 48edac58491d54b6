// Package generate produces reply text for admitted candidates. Two
// implementations exist: the OpenAI-backed generator used in live runs and
// a deterministic template generator for offline/test runs. Both honor the
// same contract: a candidate either yields a valid short reply or a skip —
// generation never fails a run.
package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/dawnloop/gmbot/internal/persona"
	"github.com/dawnloop/gmbot/internal/platform"
	"github.com/dawnloop/gmbot/internal/replyctx"
)

// SkipSentinel is the exact model output that declines a candidate.
const SkipSentinel = "SKIP"

// DefaultMaxReplyLen is the validation cap on generated text.
const DefaultMaxReplyLen = 140

// Result is the outcome of one generation attempt.
type Result struct {
	// Text is the reply body; empty when Skip is set.
	Text string

	// TemplateID identifies the strategy that produced the text, recorded
	// in the outcome ledger for offline A/B evaluation.
	TemplateID string

	// Skip means no reply should be posted for this candidate. Never
	// fatal; the orchestrator moves to the next candidate.
	Skip bool

	// SkipReason explains a skip for logging.
	SkipReason string
}

// Generator produces a reply for one candidate in one derived context.
type Generator interface {
	Generate(ctx context.Context, c platform.Candidate, rc replyctx.Context, p persona.Persona) Result
}

// BuildSystemPrompt composes the model instruction from the persona voice
// and the derived context: resolved language, part-of-day/weekend tone,
// and emoji mirroring.
func BuildSystemPrompt(p persona.Persona, rc replyctx.Context, maxLen int) string {
	emojiStyle := "no emoji"
	if rc.MirrorEmoji {
		emojiStyle = "allow 0-1 emoji"
	}

	var tone string
	switch rc.PartOfDay {
	case replyctx.Morning:
		if rc.IsWeekend {
			tone = "light, reset, enjoy the day"
		} else {
			tone = "energetic, momentum, focus"
		}
	case replyctx.Night:
		if rc.IsWeekend {
			tone = "relax, recharge, gratitude"
		} else {
			tone = "wind-down, prep for tomorrow"
		}
	default:
		tone = "friendly, supportive"
	}

	var b strings.Builder
	b.WriteString(p.Prompt)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Write the reply in %s.\n", rc.Language)
	fmt.Fprintf(&b, "Tone: %s.\n", tone)
	fmt.Fprintf(&b, "Mirror emoji style: %s.\n", emojiStyle)
	fmt.Fprintf(&b, "Keep the reply under %d characters.\n", maxLen)
	b.WriteString("No hashtags unless the original uses them.")
	return b.String()
}

// Validate checks generated text against the reply contract. It returns a
// non-empty skip reason when the text is unusable: empty output, the SKIP
// sentinel, or an oversized reply.
func Validate(text string, maxLen int) string {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return "empty generation"
	case text == SkipSentinel:
		return "model declined"
	case len([]rune(text)) > maxLen:
		return fmt.Sprintf("reply too long (%d > %d chars)", len([]rune(text)), maxLen)
	}
	return ""
}
