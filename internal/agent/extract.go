package agent

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Kind discriminates the variants of a Response.
type Kind int

const (
	// KindJSON means the reply contained a JSON object.
	KindJSON Kind = iota
	// KindText means the reply was prose with no JSON object.
	KindText
	// KindError means the reply had an unrecognized shape.
	KindError
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindText:
		return "text"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Response is the result of one agent call. It is produced once and never
// mutated.
type Response struct {
	Kind Kind
	// Object is the extracted payload for KindJSON.
	Object map[string]any
	// Message is the reply text for KindText.
	Message string
	// Error describes the problem for KindError.
	Error string
	// Raw is the undecoded reply body.
	Raw []byte
}

// MarshalJSON renders the variant the way the API reports it: the object
// itself, {message, rawResponse}, or {error, rawResponse}.
func (r Response) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case KindJSON:
		return json.Marshal(r.Object)
	case KindText:
		return json.Marshal(struct {
			Message     string `json:"message"`
			RawResponse any    `json:"rawResponse"`
		}{r.Message, r.rawValue()})
	default:
		return json.Marshal(struct {
			Error       string `json:"error"`
			RawResponse any    `json:"rawResponse"`
		}{r.Error, r.rawValue()})
	}
}

func (r Response) rawValue() any {
	if len(r.Raw) > 0 && json.Valid(r.Raw) {
		return json.RawMessage(r.Raw)
	}
	return string(r.Raw)
}

// Extract interprets a run reply. The body is a single turn or an array of
// turns; the last turn's content.parts[0] holds either a string or an
// object with a text field. The first JSON object embedded in that text is
// returned as KindJSON, prose without one as KindText, and anything else as
// KindError. Extract never fails.
func Extract(raw []byte) Response {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Response{Kind: KindError, Error: "response is not valid JSON", Raw: raw}
	}

	turn := decoded
	if turns, ok := decoded.([]any); ok {
		if len(turns) == 0 {
			return Response{Kind: KindError, Error: "response contains no turns", Raw: raw}
		}
		turn = turns[len(turns)-1]
	}

	text, ok := turnText(turn)
	if !ok {
		return Response{Kind: KindError, Error: "unrecognized response shape", Raw: raw}
	}

	if obj, ok := FindJSONObject(text); ok {
		return Response{Kind: KindJSON, Object: obj, Raw: raw}
	}
	return Response{Kind: KindText, Message: text, Raw: raw}
}

// turnText pulls content.parts[0] out of a turn.
func turnText(turn any) (string, bool) {
	m, ok := turn.(map[string]any)
	if !ok {
		return "", false
	}
	content, ok := m["content"].(map[string]any)
	if !ok {
		return "", false
	}
	parts, ok := content["parts"].([]any)
	if !ok || len(parts) == 0 {
		return "", false
	}

	switch p := parts[0].(type) {
	case string:
		return p, true
	case map[string]any:
		text, ok := p["text"].(string)
		return text, ok
	default:
		return "", false
	}
}

// FindJSONObject returns the first brace-delimited JSON object in text.
// Candidates are found with a balanced-brace scan that skips braces inside
// string literals; if none decodes, the span from the first '{' to the last
// '}' is tried.
func FindJSONObject(text string) (map[string]any, bool) {
	first := strings.IndexByte(text, '{')
	if first < 0 {
		return nil, false
	}

	for start := first; start >= 0; {
		if end, ok := balancedEnd(text, start); ok {
			if obj, ok := decodeObject(text[start : end+1]); ok {
				return obj, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	last := strings.LastIndexByte(text, '}')
	if last > first {
		return decodeObject(text[first : last+1])
	}
	return nil, false
}

// balancedEnd returns the index of the brace closing the one at start.
func balancedEnd(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func decodeObject(s string) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	return obj, true
}
