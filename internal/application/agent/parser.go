package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/alejandrodnm/gauntlet/internal/domain"
)

// Agents wrap their JSON in all sorts of framing: [Reasoning]/[Response]
// sections, markdown fences, prose around the object. The parser tries
// progressively looser extractions and keeps the first candidate that both
// unmarshals and validates.

var (
	fencedBlockRe    = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")
	responseMarkerRe = regexp.MustCompile(`(?i)\[response\]`)
)

// ErrUnparseable means no candidate in the reply produced a valid decision.
var ErrUnparseable = fmt.Errorf("agent: no valid decision found in reply")

// ParseDecision extracts a validated trading decision from a raw agent reply.
func ParseDecision(reply string) (domain.Decision, error) {
	for _, candidate := range candidates(reply) {
		var d domain.Decision
		if err := json.Unmarshal([]byte(candidate), &d); err != nil {
			continue
		}
		if err := d.Validate(); err != nil {
			continue
		}
		return d, nil
	}
	return domain.Decision{}, ErrUnparseable
}

// candidates yields JSON candidates in decreasing order of specificity.
func candidates(reply string) []string {
	var out []string

	// A [Response] section narrows the search before the generic passes.
	if loc := responseMarkerRe.FindStringIndex(reply); loc != nil {
		section := reply[loc[1]:]
		out = append(out, extract(section)...)
	}
	out = append(out, extract(reply)...)
	return out
}

func extract(text string) []string {
	var out []string
	for _, m := range fencedBlockRe.FindAllStringSubmatch(text, -1) {
		if block := strings.TrimSpace(m[1]); block != "" {
			out = append(out, block)
		}
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		out = append(out, text[start:end+1])
	}
	out = append(out, strings.TrimSpace(text))
	return out
}
