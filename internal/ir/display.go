package ir

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DisplayNotSupported is returned by Display for a (variant, mode) pair
// that has no rendering.
const DisplayNotSupported = "Display not supported for this data."

// DisplayKind names a rendering of a payload.
type DisplayKind string

// Display kinds.
const (
	DisplayDefault  DisplayKind = "default"
	DisplayStatus   DisplayKind = "status"
	DisplayContent  DisplayKind = "content"
	DisplayBriefing DisplayKind = "briefing"
)

// DefaultBriefingLimit is the briefing length when the mode names none.
const DefaultBriefingLimit = 280

// DisplayMode is a parsed display mode string.
type DisplayMode struct {
	Kind  DisplayKind
	Limit int // briefing only
}

// ParseDisplayMode parses "default", "status", "content" and
// "briefing<N>". Anything else, including a briefing with a malformed or
// non-positive length, parses as the default mode.
func ParseDisplayMode(mode string) DisplayMode {
	switch DisplayKind(mode) {
	case DisplayDefault, DisplayStatus, DisplayContent:
		return DisplayMode{Kind: DisplayKind(mode)}
	case DisplayBriefing:
		return DisplayMode{Kind: DisplayBriefing, Limit: DefaultBriefingLimit}
	}
	if n, ok := strings.CutPrefix(mode, string(DisplayBriefing)); ok {
		if limit, err := strconv.Atoi(n); err == nil && limit > 0 {
			return DisplayMode{Kind: DisplayBriefing, Limit: limit}
		}
	}
	return DisplayMode{Kind: DisplayDefault}
}

// Truncate shortens s to at most limit runes, marking the cut with "...".
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

// Display implements CustomData.
func (m *MetaData) Display(mode string) string {
	if m == nil {
		return DisplayNotSupported
	}
	dm := ParseDisplayMode(mode)
	switch dm.Kind {
	case DisplayStatus:
		if m.State == "" {
			return DisplayNotSupported
		}
		return fmt.Sprintf("%s: %s", m.Category, m.State)
	case DisplayContent:
		if m.Value == "" {
			return DisplayNotSupported
		}
		return m.Value
	case DisplayBriefing:
		if m.Summary == "" {
			return DisplayNotSupported
		}
		return Truncate(m.Summary, dm.Limit)
	default:
		if m.Summary == "" {
			return m.Category
		}
		return fmt.Sprintf("%s\n%s", m.Category, m.Summary)
	}
}

// Display implements CustomData.
func (p *ProposalData) Display(mode string) string {
	if p == nil {
		return DisplayNotSupported
	}
	dm := ParseDisplayMode(mode)
	switch dm.Kind {
	case DisplayStatus:
		return fmt.Sprintf("%s #%d: %s", p.Blockchain, p.ProposalID, p.Status)
	case DisplayContent:
		if p.Description == "" {
			return p.Title
		}
		return fmt.Sprintf("%s\n\n%s", p.Title, p.Description)
	case DisplayBriefing:
		if p.Description == "" {
			return DisplayNotSupported
		}
		return Truncate(p.Description, dm.Limit)
	default:
		return fmt.Sprintf("%s #%d\n%s\n%s", p.Blockchain, p.ProposalID, p.Title, p.Status)
	}
}

// Display implements CustomData. Debug records render only in the default
// mode.
func (d *Debug) Display(mode string) string {
	if d == nil || ParseDisplayMode(mode).Kind != DisplayDefault {
		return DisplayNotSupported
	}
	return "[debug] " + d.Message
}

// Display implements CustomData.
func (e *ErrorData) Display(mode string) string {
	if e == nil || ParseDisplayMode(mode).Kind != DisplayDefault {
		return DisplayNotSupported
	}
	return "[error] " + e.Message
}

// Display implements CustomData.
func (l *Log) Display(mode string) string {
	if l == nil || ParseDisplayMode(mode).Kind != DisplayDefault {
		return DisplayNotSupported
	}
	return "[log] " + l.Message
}
