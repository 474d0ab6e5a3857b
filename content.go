// Content extractor: pulls JSON string *values* (never keys) out of a
// record and joins them with single-space separators, so that dedup
// fingerprints and lint checks operate on the record's textual content
// regardless of its key structure.
//
// Grounded on original_source/src/engine.rs's extract_content_bytes:
// escaped characters are copied verbatim (the byte following a
// backslash, not a decoded escape sequence) rather than fully
// JSON-unescaped, since that is what the original scanner does. A small
// nesting stack tracks objects and arrays, so every string element of an
// array that is a key's value is collected, and keys of nested objects
// never are.
package caret

// ExtractContent walks a JSON document's raw bytes and returns every
// string value (not key) concatenated with single-space separators.
// Operating on raw bytes rather than a parsed tree keeps this cheap
// enough to run on every line during a dedup scan.
func ExtractContent(data []byte) []byte {
	out := make([]byte, 0, len(data)/2)

	inString := false
	escaped := false
	isValue := false
	afterColon := false
	// stack holds one entry per open container: '{' for an object, 'v'
	// for an array that is a key's value, '[' for any other array.
	var stack []byte

	for _, b := range data {
		if escaped {
			if inString && isValue {
				out = append(out, b)
			}
			escaped = false
			continue
		}

		switch {
		case b == '\\' && inString:
			escaped = true
		case b == '"':
			if inString {
				if isValue {
					out = append(out, ' ')
				}
				inString = false
				isValue = false
			} else {
				inString = true
				isValue = afterColon
			}
		case b == ':' && !inString:
			afterColon = true
		case b == '{' && !inString:
			stack = append(stack, '{')
			afterColon = false
		case b == '[' && !inString:
			if afterColon {
				stack = append(stack, 'v')
			} else {
				stack = append(stack, '[')
			}
		case (b == ',' || b == '}' || b == ']') && !inString:
			if b != ',' && len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			afterColon = len(stack) > 0 && stack[len(stack)-1] == 'v'
		case inString && isValue:
			out = append(out, b)
		}
	}

	return out
}

// unescape resolves JSON string escapes into the actual text content
// rather than its escaped representation. Returns the input unchanged if no
// backslash is present (common case, zero allocation). Adapted from the
// teacher's record.go unescape helper.
func unescape(b []byte) []byte {
	hasEscape := false
	for _, c := range b {
		if c == '\\' {
			hasEscape = true
			break
		}
	}
	if !hasEscape {
		return b
	}

	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != '\\' || i+1 >= len(b) {
			out = append(out, b[i])
			continue
		}
		i++
		switch b[i] {
		case '"':
			out = append(out, '"')
		case '\\':
			out = append(out, '\\')
		case '/':
			out = append(out, '/')
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		default:
			out = append(out, '\\', b[i])
		}
	}
	return out
}
