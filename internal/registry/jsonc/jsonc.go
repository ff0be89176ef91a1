// Package jsonc converts JSONC into strict JSON. Editor task and
// launch files are JSONC in practice: comments and trailing commas
// are routine.
package jsonc

// Strip rewrites JSONC into strict JSON. Line and block comments are
// replaced with spaces so byte offsets survive for error messages,
// and trailing commas before a closing bracket are removed.
func Strip(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)

	const (
		stateNormal = iota
		stateString
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	escaped := false

	for i := 0; i < len(out); i++ {
		c := out[i]
		switch state {
		case stateNormal:
			switch {
			case c == '"':
				state = stateString
			case c == '/' && i+1 < len(out) && out[i+1] == '/':
				state = stateLineComment
				out[i] = ' '
			case c == '/' && i+1 < len(out) && out[i+1] == '*':
				state = stateBlockComment
				out[i] = ' '
			}
		case stateString:
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
			} else {
				out[i] = ' '
			}
		case stateBlockComment:
			if c == '*' && i+1 < len(out) && out[i+1] == '/' {
				out[i] = ' '
				out[i+1] = ' '
				i++
				state = stateNormal
			} else if c != '\n' {
				out[i] = ' '
			}
		}
	}

	stripTrailingCommas(out)
	return out
}

// stripTrailingCommas blanks commas whose next non-whitespace byte
// closes an object or array. Operates in place; strings are skipped.
func stripTrailingCommas(data []byte) {
	inString := false
	escaped := false

	for i := 0; i < len(data); i++ {
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
		case ',':
			j := i + 1
			for j < len(data) && isJSONSpace(data[j]) {
				j++
			}
			if j < len(data) && (data[j] == '}' || data[j] == ']') {
				data[i] = ' '
			}
		}
	}
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
