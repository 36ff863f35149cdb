// Package llmresponse turns raw generative backend output into a structured
// reply, repairing the usual formatting damage on the way.
package llmresponse

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	ErrNoJSONFound        = errors.New("llmresponse: no JSON object found")
	ErrUnrecoverableParse = errors.New("llmresponse: unrecoverable response")
)

// DefaultMessage is used when a partially recovered response carries no message.
const DefaultMessage = "Could you please clarify what you would like to do with your order?"

// Response is the structured content of one backend reply.
type Response struct {
	Message      string
	Action       string
	Modification map[string]any
	// Partial is set when the object could not be parsed whole and fields were
	// recovered one by one.
	Partial bool
}

var (
	actionPattern  = regexp.MustCompile(`["']?action["']?\s*:\s*["']?([A-Za-z_]+)`)
	messagePattern = regexp.MustCompile(`"message"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	modKeyPattern  = regexp.MustCompile(`["']?modification["']?\s*:\s*\{`)
)

// Parse extracts a Response from raw backend text.
func Parse(raw string) (Response, error) {
	span, ok := ExtractObject(raw)
	if !ok {
		return Response{}, ErrNoJSONFound
	}
	repaired := Repair(span)

	var obj map[string]any
	if err := json.Unmarshal([]byte(repaired), &obj); err == nil {
		return fromObject(obj), nil
	}
	return recoverFields(repaired)
}

// ExtractObject returns the text between the first '{' and the last '}'.
func ExtractObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

func fromObject(obj map[string]any) Response {
	var out Response
	if msg, ok := obj["message"].(string); ok {
		out.Message = strings.TrimSpace(msg)
	}
	if action, ok := obj["action"].(string); ok {
		out.Action = normalizeAction(action)
	}
	if mod, ok := obj["modification"].(map[string]any); ok {
		out.Modification = mod
	}
	return out
}

func recoverFields(text string) (Response, error) {
	m := actionPattern.FindStringSubmatch(text)
	if m == nil {
		return Response{}, ErrUnrecoverableParse
	}
	out := Response{Action: normalizeAction(m[1]), Partial: true}

	if mm := messagePattern.FindStringSubmatch(text); mm != nil {
		var msg string
		if err := json.Unmarshal([]byte(`"`+mm[1]+`"`), &msg); err == nil {
			out.Message = strings.TrimSpace(msg)
		} else {
			out.Message = strings.TrimSpace(mm[1])
		}
	}
	if out.Message == "" {
		out.Message = DefaultMessage
	}

	if loc := modKeyPattern.FindStringIndex(text); loc != nil {
		if obj, ok := balancedObject(text, loc[1]-1); ok {
			var mod map[string]any
			if err := json.Unmarshal([]byte(Repair(obj)), &mod); err == nil {
				out.Modification = mod
			}
		}
	}
	return out, nil
}

// balancedObject returns the object starting at the '{' at index start.
func balancedObject(s string, start int) (string, bool) {
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func normalizeAction(a string) string {
	return strings.ToLower(strings.TrimSpace(a))
}
