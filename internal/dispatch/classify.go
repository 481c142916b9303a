package dispatch

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	EventMessage    = "message"
	EventAppMention = "app_mention"

	// DefaultMinSummaryLength is the fewest characters worth summarizing.
	DefaultMinSummaryLength = 50

	greeting = "Hello! How can I help you?"
)

// summaryKeywords are matched case-insensitively in this order.
var summaryKeywords = []string{"summarize", "summary", "summarise", "tldr", "tl;dr"}

// userSubtypes are the message subtypes that still carry text a person wrote.
// Joins, edits, deletions and other system notices are not answered.
var userSubtypes = map[string]bool{"thread_broadcast": true, "file_share": true}

var leadingMentions = regexp.MustCompile(`^(?:\s*<@[A-Za-z0-9]+(?:\|[^>]*)?>)+`)

// Event is the part of an inbound chat event classification looks at.
type Event struct {
	Type     string
	Subtype  string
	BotID    string
	User     string
	Channel  string
	Text     string
	TS       string
	ThreadTS string
}

type Kind int

const (
	Ignore Kind = iota
	Reply
	Summarize
	NeedMoreContent
)

func (k Kind) String() string {
	switch k {
	case Reply:
		return "reply"
	case Summarize:
		return "summarize"
	case NeedMoreContent:
		return "need_more_content"
	default:
		return "ignore"
	}
}

// Intent is what to do with an event. Text is the message to answer for
// Reply and the content to condense for Summarize.
type Intent struct {
	Kind Kind
	Text string
}

// Classify decides what an event asks for. It has no side effects.
func Classify(ev Event, minLength int) Intent {
	if minLength <= 0 {
		minLength = DefaultMinSummaryLength
	}
	if ev.BotID != "" || ev.Subtype == "bot_message" {
		return Intent{Kind: Ignore}
	}
	if ev.Subtype != "" && !userSubtypes[ev.Subtype] {
		return Intent{Kind: Ignore}
	}
	if ev.ThreadTS != "" && ev.ThreadTS != ev.TS {
		return Intent{Kind: Ignore}
	}

	text := strings.TrimSpace(leadingMentions.ReplaceAllString(ev.Text, ""))
	if text == "" {
		if ev.Type == EventAppMention {
			return Intent{Kind: Reply, Text: greeting}
		}
		return Intent{Kind: Ignore}
	}

	for _, kw := range summaryKeywords {
		i := indexFold(text, kw)
		if i < 0 {
			continue
		}
		content := strings.TrimSpace(text[i+len(kw):])
		if strings.HasPrefix(content, ":") {
			content = strings.TrimSpace(content[1:])
		}
		if utf8.RuneCountInString(content) < minLength {
			return Intent{Kind: NeedMoreContent, Text: content}
		}
		return Intent{Kind: Summarize, Text: content}
	}
	return Intent{Kind: Reply, Text: text}
}

// indexFold is strings.Index ignoring ASCII case. kw must be ASCII.
func indexFold(s, kw string) int {
	for i := 0; i+len(kw) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(kw)], kw) {
			return i
		}
	}
	return -1
}
