package reports

import "encoding/json"

// recoverJSON returns the largest balanced {...} object found in data that
// also parses as JSON. Scanners sometimes print status text before (or after)
// the payload on the same stream; this strips it. Braces inside string
// literals are ignored.
func recoverJSON(data []byte) ([]byte, bool) {
	var best []byte
	for start := 0; start < len(data); start++ {
		if data[start] != '{' {
			continue
		}
		end := matchBrace(data, start)
		if end < 0 {
			continue
		}
		candidate := data[start : end+1]
		if len(candidate) <= len(best) {
			continue
		}
		if json.Valid(candidate) {
			best = candidate
			// Anything starting inside this object is smaller than it.
			start = end
		}
	}
	return best, best != nil
}

// matchBrace returns the index of the brace closing the object opened at
// data[start], or -1 if the object never closes.
func matchBrace(data []byte, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(data); i++ {
		c := data[i]
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
