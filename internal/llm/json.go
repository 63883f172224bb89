package llm

import (
	"encoding/json"
	"fmt"
)

// ExtractJSON decodes the first top-level JSON object embedded in text into
// v. Objects are located with a brace scan that ignores braces inside string
// literals. Returns an error wrapping ErrNoJSON when no object decodes.
func ExtractJSON(text string, v any) error {
	var lastErr error
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		end := matchBrace(text, start)
		if end < 0 {
			break
		}
		if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
			lastErr = err
			start = end
			continue
		}
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %v", ErrNoJSON, lastErr)
	}
	return ErrNoJSON
}

// matchBrace returns the index of the brace closing the one at start, or -1
func matchBrace(text string, start int) int {
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
				return i
			}
		}
	}
	return -1
}
