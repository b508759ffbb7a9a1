// Package memcmd recognizes explicit memory commands in user messages.
// A matched command bypasses the model entirely: the turn mutates fact
// storage directly and receives a canned acknowledgement.
package memcmd

import (
	"regexp"
	"strings"
)

// Kind is the recognized command type.
type Kind string

const (
	None      Kind = ""
	Remember  Kind = "remember"
	Forget    Kind = "forget"
	ForgetAll Kind = "forget_all"
)

// Command is a parsed memory command. Argument holds the remembered or
// forgotten content for Remember/Forget.
type Command struct {
	Kind     Kind
	Argument string
}

// Declarative rule table: first match wins, ordered most-specific first.
var rules = []struct {
	kind    Kind
	pattern *regexp.Regexp
}{
	{ForgetAll, regexp.MustCompile(`(?i)^(?:please\s+)?(?:can\s+you\s+)?forget\s+(?:everything|all\s+(?:of\s+it|my\s+memories|you\s+know(?:\s+about\s+me)?))\s*[.!?]*$`)},
	{Remember, regexp.MustCompile(`(?i)^(?:please\s+)?(?:can\s+you\s+)?remember\s+(?:that\s+)?(.+?)\s*$`)},
	{Forget, regexp.MustCompile(`(?i)^(?:please\s+)?(?:can\s+you\s+)?forget\s+(?:about\s+|that\s+)?(.+?)\s*$`)},
}

// Parse checks whether message is an explicit memory command.
func Parse(message string) (Command, bool) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return Command{}, false
	}

	for _, rule := range rules {
		m := rule.pattern.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		cmd := Command{Kind: rule.kind}
		if len(m) > 1 {
			cmd.Argument = strings.TrimRight(strings.TrimSpace(m[1]), ".!?")
		}
		if cmd.Kind != ForgetAll && cmd.Argument == "" {
			continue
		}
		return cmd, true
	}
	return Command{}, false
}

// Acknowledgement returns the canned reply appended to the session in place
// of a model response.
func Acknowledgement(cmd Command) string {
	switch cmd.Kind {
	case Remember:
		return "Got it, I'll remember that: " + cmd.Argument
	case Forget:
		return "Okay, I've forgotten that."
	case ForgetAll:
		return "Okay, I've cleared everything I had remembered about you."
	default:
		return ""
	}
}
