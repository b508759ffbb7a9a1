// Package prompt composes the final instruction text for a chat turn.
// Composition is deterministic and performs no I/O.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/analysis/cbt"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/analysis/intent"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/analysis/tone"
	"github.com/Kelvinsaleh/Hope-backend-sub000/pkg/tokens"
)

const personaInstructions = `You are Hope, a warm, emotionally attuned mental-wellness companion. You listen closely, reflect feelings back accurately, and speak like a caring friend who happens to know evidence-based wellbeing practices. You are not a therapist and never claim to be one; for anything that sounds like crisis or self-harm, gently encourage reaching out to a professional or local crisis line while staying present and kind.`

const personalizationRules = `Personalization rules:
- Use what you know about the user naturally; never recite their data back like a dossier.
- Reference at most one or two remembered details per reply.
- Never mention journals, mood scores, or stored memories as systems; speak about the person, not the record.
- Match the user's message length; short messages get short replies.`

const cbtBlock = `The user's message shows signs of unhelpful thinking patterns (%s). Without naming any clinical terms, gently help them notice the thought, question the evidence for it, and find one kinder, more balanced way to see the situation. Keep it conversational, never lecture.`

const interventionBlock = `The user appears to be in sustained distress. Offer one small, concrete, optional practice (a breathing exercise, a grounding technique, or a brief walk) phrased as an invitation, not an instruction. If they decline, simply stay with them.`

// Input carries everything the builder needs for one turn.
type Input struct {
	Tone         tone.Analysis
	Intent       intent.Intent
	CBT          cbt.Result
	Intervention bool
	UserContext  string // selective memory snippet, may be empty
	Conversation string // assembled conversation view
	Message      string // the new user message
	Now          time.Time
}

// Output is the composed prompt plus an estimate for observability.
type Output struct {
	System          string
	EstimatedTokens int
}

// Build concatenates the prompt sections in fixed order.
func Build(in Input) Output {
	var b strings.Builder

	b.WriteString(personaInstructions)

	b.WriteString("\n\nTone guidance: ")
	b.WriteString(string(in.Tone.Mode))
	b.WriteString(". ")
	b.WriteString(in.Tone.Guidance)
	if in.Tone.Emotion != tone.Neutral {
		fmt.Fprintf(&b, " The user currently reads as %s (intensity %.1f of 5).", in.Tone.Emotion, in.Tone.Intensity)
	}

	b.WriteString("\n\n")
	b.WriteString(personalizationRules)

	if in.CBT.Indicated {
		b.WriteString("\n\n")
		fmt.Fprintf(&b, cbtBlock, indicatorList(in.CBT.Indicators))
	}

	if in.Intervention {
		b.WriteString("\n\n")
		b.WriteString(interventionBlock)
	}

	b.WriteString("\n\n")
	b.WriteString(timeAwareness(in.Now))

	if in.UserContext != "" {
		b.WriteString("\n\nWhat you know about the user:\n")
		b.WriteString(in.UserContext)
	}

	if in.Conversation != "" {
		b.WriteString("\n\nConversation so far:\n")
		b.WriteString(in.Conversation)
	}

	b.WriteString("\n\nThe user's new message:\n")
	b.WriteString(in.Message)

	system := b.String()
	return Output{
		System:          system,
		EstimatedTokens: tokens.Estimate(system),
	}
}

func indicatorList(indicators []cbt.Indicator) string {
	names := make([]string, 0, len(indicators))
	for _, ind := range indicators {
		names = append(names, strings.ReplaceAll(string(ind), "_", " "))
	}
	return strings.Join(names, ", ")
}

func timeAwareness(now time.Time) string {
	if now.IsZero() {
		now = time.Now()
	}
	var daypart string
	switch hour := now.Hour(); {
	case hour < 5:
		daypart = "late at night"
	case hour < 12:
		daypart = "morning"
	case hour < 17:
		daypart = "afternoon"
	case hour < 22:
		daypart = "evening"
	default:
		daypart = "late evening"
	}
	return fmt.Sprintf("It is currently %s (%s) for the user; let that quietly inform your suggestions.", daypart, now.Format("Monday 15:04"))
}
