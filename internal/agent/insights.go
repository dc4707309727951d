package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/flynn-ai/agentcore/pkg/protocol"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?[ \t]*\n?(.*?)```")

// ExtractInsights pulls structured insights out of a final answer.
//
// The payload is either a fenced block or the first balanced JSON region of
// the text, holding a list of insights or an object {"insights": [...]}. It
// is decoded strictly: unknown fields, unknown priorities or empty findings
// reject the whole payload. On any failure the answer is returned unchanged
// with no insights. When the payload was the whole answer, the answer lists
// the findings instead.
func ExtractInsights(text string) (insights []protocol.Insight, answer string) {
	region, start, end := locatePayload(text)
	if region == "" {
		return nil, text
	}
	parsed, err := decodeInsights(region)
	if err != nil || len(parsed) == 0 {
		return nil, text
	}
	answer = strings.TrimSpace(text[:start] + text[end:])
	if answer == "" {
		answer = summarizeInsights(parsed)
	}
	return parsed, answer
}

func summarizeInsights(list []protocol.Insight) string {
	var b strings.Builder
	b.WriteString("Insights:")
	for _, in := range list {
		fmt.Fprintf(&b, "\n- [%s] %s", in.Priority, strings.TrimSpace(in.Finding))
	}
	return b.String()
}

// locatePayload returns the candidate JSON and the span it should be cut from.
func locatePayload(text string) (string, int, int) {
	if loc := fencePattern.FindStringSubmatchIndex(text); loc != nil {
		inner := text[loc[2]:loc[3]]
		if s, e, ok := balancedRegion(inner); ok {
			return inner[s:e], loc[0], loc[1]
		}
		return "", 0, 0
	}
	if s, e, ok := balancedRegion(text); ok {
		return text[s:e], s, e
	}
	return "", 0, 0
}

// balancedRegion finds the first {...} or [...] whose brackets balance,
// ignoring brackets inside JSON strings.
func balancedRegion(s string) (int, int, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return 0, 0, false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return start, i + 1, true
			}
		}
	}
	return 0, 0, false
}

var errInvalidInsight = errors.New("invalid insight")

func decodeInsights(payload string) ([]protocol.Insight, error) {
	var list []protocol.Insight
	if strings.HasPrefix(payload, "[") {
		if err := strictDecode(payload, &list); err != nil {
			return nil, err
		}
	} else {
		var wrapper struct {
			Insights []protocol.Insight `json:"insights"`
		}
		if err := strictDecode(payload, &wrapper); err != nil {
			return nil, err
		}
		list = wrapper.Insights
	}

	for i := range list {
		list[i].Priority = strings.ToLower(strings.TrimSpace(list[i].Priority))
		if strings.TrimSpace(list[i].Finding) == "" || !protocol.ValidPriority(list[i].Priority) {
			return nil, errInvalidInsight
		}
	}
	return list, nil
}

func strictDecode(payload string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errInvalidInsight
	}
	return nil
}
