package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/analysis/cbt"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/analysis/intent"
	"github.com/Kelvinsaleh/Hope-backend-sub000/internal/analysis/tone"
)

func baseInput() Input {
	return Input{
		Tone: tone.Analysis{
			Emotion:   tone.Anxious,
			Intensity: 3.5,
			Intent:    string(intent.Distress),
			Clarity:   0.8,
			Mode:      tone.ModeGrounding,
			Guidance:  "Slow down, validate the feeling first.",
		},
		Intent:       intent.Distress,
		UserContext:  "- Works night shifts and struggles to sleep",
		Conversation: "user: I can't sleep again\nassistant: That sounds exhausting.",
		Message:      "It keeps happening every night",
		Now:          time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestBuildSectionOrder(t *testing.T) {
	in := baseInput()
	in.CBT = cbt.Result{Indicated: true, Indicators: []cbt.Indicator{cbt.Catastrophizing}}
	in.Intervention = true

	out := Build(in)

	markers := []string{
		"You are Hope",
		"Tone guidance:",
		"Personalization rules:",
		"unhelpful thinking patterns",
		"sustained distress",
		"It is currently",
		"What you know about the user:",
		"Conversation so far:",
		"The user's new message:",
	}
	pos := -1
	for _, m := range markers {
		idx := strings.Index(out.System, m)
		if idx < 0 {
			t.Fatalf("prompt missing section %q", m)
		}
		if idx <= pos {
			t.Fatalf("section %q out of order", m)
		}
		pos = idx
	}
	if out.EstimatedTokens <= 0 {
		t.Fatalf("expected positive token estimate, got %d", out.EstimatedTokens)
	}
}

func TestBuildOmitsConditionalBlocks(t *testing.T) {
	out := Build(baseInput())
	if strings.Contains(out.System, "unhelpful thinking patterns") {
		t.Fatal("cbt block present without indication")
	}
	if strings.Contains(out.System, "sustained distress") {
		t.Fatal("intervention block present without flag")
	}
}

func TestBuildOmitsEmptyContext(t *testing.T) {
	in := baseInput()
	in.UserContext = ""
	in.Conversation = ""
	out := Build(in)
	if strings.Contains(out.System, "What you know about the user:") {
		t.Fatal("user context header present for empty snippet")
	}
	if strings.Contains(out.System, "Conversation so far:") {
		t.Fatal("conversation header present for empty view")
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	in := baseInput()
	a := Build(in)
	b := Build(in)
	if a.System != b.System || a.EstimatedTokens != b.EstimatedTokens {
		t.Fatal("identical input produced different prompts")
	}
}

func TestIndicatorListReadable(t *testing.T) {
	got := indicatorList([]cbt.Indicator{cbt.AllOrNothing, cbt.MindReading})
	if strings.Contains(got, "_") {
		t.Fatalf("indicator list not humanized: %q", got)
	}
}

func TestTimeAwarenessDayparts(t *testing.T) {
	cases := []struct {
		hour int
		want string
	}{
		{3, "late at night"},
		{9, "morning"},
		{14, "afternoon"},
		{20, "evening"},
		{23, "late evening"},
	}
	for _, tc := range cases {
		now := time.Date(2025, 3, 10, tc.hour, 0, 0, 0, time.UTC)
		got := timeAwareness(now)
		if !strings.Contains(got, tc.want) {
			t.Fatalf("hour %d: expected %q in %q", tc.hour, tc.want, got)
		}
	}
}
