package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Strategy selects how the JSON payload is located in captured output.
// Each engine mode uses exactly one strategy.
type Strategy int

const (
	// LastLine parses the last non-blank line of output.
	LastLine Strategy = iota
	// FirstObject parses the first balanced {...} span that is valid JSON.
	FirstObject
)

func (s Strategy) String() string {
	switch s {
	case LastLine:
		return "last-line"
	case FirstObject:
		return "first-object"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// MalformedOutputError means no usable JSON object was found in engine
// output, or the object did not match the expected shape.
type MalformedOutputError struct {
	Strategy Strategy
	Reason   string
	Raw      string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed engine output (%s): %s; output: %q", e.Strategy, e.Reason, excerpt(e.Raw, 300))
}

// StripNoise removes control and format characters that consoles and
// encoders inject into piped output. Newlines and tabs are kept.
func StripNoise(s string) string {
	s = strings.ToValidUTF8(s, "")
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)
}

// ExtractJSON locates the single JSON object the engine printed.
func ExtractJSON(raw string, s Strategy) (json.RawMessage, error) {
	clean := StripNoise(raw)
	switch s {
	case LastLine:
		return lastLine(clean, raw)
	case FirstObject:
		return firstObject(clean, raw)
	default:
		return nil, &MalformedOutputError{Strategy: s, Reason: "unknown extraction strategy", Raw: raw}
	}
}

func lastLine(clean, raw string) (json.RawMessage, error) {
	lines := strings.Split(clean, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "{") || !json.Valid([]byte(line)) {
			return nil, &MalformedOutputError{Strategy: LastLine, Reason: "last line is not a JSON object", Raw: raw}
		}
		return json.RawMessage(line), nil
	}
	return nil, &MalformedOutputError{Strategy: LastLine, Reason: "no output", Raw: raw}
}

func firstObject(clean, raw string) (json.RawMessage, error) {
	for start := strings.IndexByte(clean, '{'); start >= 0; {
		end := matchBrace(clean, start)
		if end < 0 {
			break
		}
		candidate := clean[start : end+1]
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
		next := strings.IndexByte(clean[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, &MalformedOutputError{Strategy: FirstObject, Reason: "no JSON object found", Raw: raw}
}

// matchBrace returns the index of the brace closing the one at start, or -1.
// Braces inside JSON strings are ignored.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// envelope is implemented by every typed engine result.
type envelope interface {
	required() []string
	check() error
}

func decode(raw string, s Strategy, v envelope) error {
	payload, err := ExtractJSON(raw, s)
	if err != nil {
		return err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return &MalformedOutputError{Strategy: s, Reason: err.Error(), Raw: raw}
	}
	for _, key := range v.required() {
		if _, ok := fields[key]; !ok {
			return &MalformedOutputError{Strategy: s, Reason: fmt.Sprintf("missing required field %q", key), Raw: raw}
		}
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return &MalformedOutputError{Strategy: s, Reason: err.Error(), Raw: raw}
	}
	if err := v.check(); err != nil {
		return &MalformedOutputError{Strategy: s, Reason: err.Error(), Raw: raw}
	}
	return nil
}
