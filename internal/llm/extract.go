package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON recovers a JSON document from a chat reply. Real models
// interleave prose with the JSON block and occasionally elide the fence, so
// three stages are tried in order and the first that parses wins:
//
//  1. the contents of a fenced ```json ... ``` block
//  2. the widest bracketed substring — first "{" to last "}" when the first
//     "{" precedes the first "[", otherwise first "[" to last "]"
//  3. the whole body
func ExtractJSON(body string) (json.RawMessage, error) {
	for _, candidate := range []string{
		fencedBlock(body),
		bracketedBlock(body),
		strings.TrimSpace(body),
	} {
		if candidate == "" {
			continue
		}
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
	}
	return nil, fmt.Errorf("no parseable JSON in reply")
}

func fencedBlock(body string) string {
	start := strings.Index(body, "```json")
	if start < 0 {
		start = strings.Index(body, "```JSON")
	}
	if start < 0 {
		return ""
	}
	rest := body[start+len("```json"):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

func bracketedBlock(body string) string {
	firstBrace := strings.IndexByte(body, '{')
	firstBracket := strings.IndexByte(body, '[')

	if firstBrace >= 0 && (firstBracket < 0 || firstBrace < firstBracket) {
		if last := strings.LastIndexByte(body, '}'); last > firstBrace {
			return body[firstBrace : last+1]
		}
		return ""
	}
	if firstBracket >= 0 {
		if last := strings.LastIndexByte(body, ']'); last > firstBracket {
			return body[firstBracket : last+1]
		}
	}
	return ""
}
