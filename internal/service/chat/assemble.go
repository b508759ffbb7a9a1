package chatsvc

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/analysis/intent"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/config"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/model/chat"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/model/memory"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/service/queue"
	"github.com/Kelvinsaleh/Hope-backend-sub000/pkg/tokens"
)

const condensePrompt = `Condense the following early portion of a wellness conversation into at most four sentences. Keep emotional themes, decisions, and anything the user asked to be remembered. Return only the condensation.`

// perMessageOverhead approximates what the "role: " prefix and newline add to
// each rendered turn beyond its content tokens.
const perMessageOverhead = 4

// Assembled is the bounded conversation view plus the personalization snippet
// handed to the prompt builder. Building it never mutates the session.
type Assembled struct {
	Conversation string
	Snippet      string
	Condensed    bool
	Tokens       int
}

type assembler struct {
	cfg config.ContextConfig
	ai  AIClient // nil disables model-backed condensation
}

// assemble fits the session history into the token budget. Short histories
// pass through verbatim; long ones keep a recent window and fold everything
// older into a single synthetic context turn.
func (a *assembler) assemble(ctx context.Context, messages []chat.Message, snapshot memory.Snapshot, in intent.Intent) Assembled {
	out := Assembled{Snippet: a.buildSnippet(snapshot, in)}

	if len(messages) <= a.cfg.MessageWindow &&
		chat.TotalTokens(messages)+len(messages)*perMessageOverhead <= a.cfg.TokenBudget {
		out.Conversation = renderMessages(messages)
		out.Tokens = tokens.Estimate(out.Conversation)
		return out
	}

	recent := messages
	if len(recent) > a.cfg.MessageWindow {
		recent = recent[len(recent)-a.cfg.MessageWindow:]
	}
	// Keep at least the final exchange even when single messages are huge.
	for len(recent) > 2 && chat.TotalTokens(recent) > a.cfg.TokenBudget {
		recent = recent[1:]
	}

	older := messages[:len(messages)-len(recent)]
	recent = capMessages(recent, a.cfg.TokenBudget)

	var b strings.Builder
	if len(older) > 0 {
		// The synthetic context turn only gets whatever budget the kept
		// window leaves over; a window of huge turns crowds it out entirely.
		room := a.cfg.TokenBudget - chat.TotalTokens(recent) - len(recent)*perMessageOverhead
		if room > perMessageOverhead {
			b.WriteString("context: ")
			b.WriteString(tokens.Truncate(a.condense(ctx, older), room-perMessageOverhead))
			b.WriteByte('\n')
			out.Condensed = true
		}
	}
	b.WriteString(renderMessages(recent))

	out.Conversation = b.String()
	if tokens.Estimate(out.Conversation) > a.cfg.TokenBudget {
		out.Conversation = tokens.Truncate(out.Conversation, a.cfg.TokenBudget)
	}
	out.Tokens = tokens.Estimate(out.Conversation)
	return out
}

// capMessages bounds each kept message so the window as a whole fits the
// budget. The slice is copied before anything is cut; the caller's history is
// never touched.
func capMessages(messages []chat.Message, budget int) []chat.Message {
	if len(messages) == 0 || chat.TotalTokens(messages) <= budget {
		return messages
	}

	share := budget/len(messages) - perMessageOverhead
	if share < 1 {
		share = 1
	}
	capped := make([]chat.Message, len(messages))
	copy(capped, messages)
	for i := range capped {
		if tokens.Estimate(capped[i].Content) > share {
			capped[i].Content = tokens.Truncate(capped[i].Content, share)
			capped[i].TokenCount = tokens.Estimate(capped[i].Content)
		}
	}
	return capped
}

// condense asks the model to fold older turns down; when the model is
// unavailable or answers with canned text, a counting sentence stands in so
// the view still acknowledges that earlier conversation exists.
func (a *assembler) condense(ctx context.Context, older []chat.Message) string {
	fallback := fmt.Sprintf("Earlier in this conversation the user and assistant exchanged %d messages before the turns shown below.", len(older))
	if a.ai == nil {
		return fallback
	}

	res, err := a.ai.Enqueue(ctx, queue.Request{
		System: condensePrompt,
		User:   renderMessages(older),
	})
	if err != nil {
		log.Printf("[chat] history condensation failed: %v", err)
		return fallback
	}
	if res.Failover || strings.TrimSpace(res.Text) == "" {
		return fallback
	}
	return strings.TrimSpace(res.Text)
}

// buildSnippet selects the personalization lines most relevant to the turn,
// highest value first, stopping at the snippet token ceiling.
func (a *assembler) buildSnippet(snapshot memory.Snapshot, in intent.Intent) string {
	if snapshot.Empty() {
		return ""
	}

	var lines []string
	if summary, ok := snapshot.Summary(); ok {
		lines = append(lines, summary.Content)
	}
	if snapshot.Profile.Bio != "" {
		lines = append(lines, "- "+snapshot.Profile.Bio)
	}
	if len(snapshot.Profile.Goals) > 0 {
		lines = append(lines, "- Goals: "+strings.Join(snapshot.Profile.Goals, "; "))
	}
	if mood, ok := snapshot.LatestMood(); ok {
		line := fmt.Sprintf("- Recent mood check-in: %d/10", mood.Score)
		if mood.Note != "" {
			line += " (" + mood.Note + ")"
		}
		lines = append(lines, line)
	}
	for _, f := range rankFacts(snapshot.Facts, in) {
		lines = append(lines, "- "+f.Content)
	}
	if len(snapshot.Journal.KeyThemes) > 0 {
		lines = append(lines, "- Recent journal themes: "+strings.Join(snapshot.Journal.KeyThemes, ", "))
	}
	lines = append(lines, a.excerptLines(snapshot.Sessions)...)

	var b strings.Builder
	used := 0
	for _, line := range lines {
		cost := tokens.Estimate(line) + 1
		if used+cost > a.cfg.SnippetTokens {
			break
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		used += cost
	}

	snippet := b.String()
	if snippet == "" && len(lines) > 0 {
		// Even one oversized line is better than nothing; cut it to fit.
		snippet = tokens.Truncate(lines[0], a.cfg.SnippetTokens)
	}
	return snippet
}

// excerptLines surfaces short tails of prior sessions for continuity.
func (a *assembler) excerptLines(sessions []memory.SessionSummary) []string {
	var lines []string
	for i, s := range sessions {
		if i >= a.cfg.ExcerptCount || len(s.Excerpt) == 0 {
			break
		}
		excerpt := tokens.Truncate(strings.Join(s.Excerpt, " / "), a.cfg.ExcerptTokens)
		lines = append(lines, "- From an earlier conversation: "+excerpt)
	}
	return lines
}

// rankFacts orders facts by how useful they are for the detected intent,
// then by importance, and keeps a handful.
func rankFacts(all []memory.Fact, in intent.Intent) []memory.Fact {
	var preferred map[memory.FactType]bool
	switch in {
	case intent.Distress:
		preferred = map[memory.FactType]bool{
			memory.FactCopingPattern:  true,
			memory.FactTrigger:        true,
			memory.FactEmotionalTheme: true,
		}
	case intent.Celebration:
		preferred = map[memory.FactType]bool{
			memory.FactGoal:    true,
			memory.FactInsight: true,
		}
	case intent.Reflection:
		preferred = map[memory.FactType]bool{
			memory.FactInsight:        true,
			memory.FactEmotionalTheme: true,
		}
	}

	scored := make([]memory.Fact, 0, len(all))
	for _, f := range all {
		if f.Type == memory.FactUserSummary {
			continue
		}
		scored = append(scored, f)
	}
	// Insertion sort keeps this simple; fact lists are small.
	for i := 1; i < len(scored); i++ {
		for j := i; j > 0 && factRank(scored[j], preferred) > factRank(scored[j-1], preferred); j-- {
			scored[j], scored[j-1] = scored[j-1], scored[j]
		}
	}

	const keep = 6
	if len(scored) > keep {
		scored = scored[:keep]
	}
	return scored
}

func factRank(f memory.Fact, preferred map[memory.FactType]bool) int {
	rank := f.Importance
	if preferred[f.Type] {
		rank += 10
	}
	return rank
}

func renderMessages(messages []chat.Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}
