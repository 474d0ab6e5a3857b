package caret

import "testing"

func TestExtractContentJoinsValuesNotKeys(t *testing.T) {
	data := []byte(`{"role":"assistant","content":"hi"}`)
	got := string(ExtractContent(data))
	want := "assistant hi "
	if got != want {
		t.Errorf("ExtractContent(%s) = %q, want %q", data, got, want)
	}
}

// TestExtractContentEscapesPushedVerbatim documents the original
// scanner's non-standard escape handling: the byte following a
// backslash is copied as-is, and the backslash itself is dropped,
// rather than resolving the escape sequence.
func TestExtractContentEscapesPushedVerbatim(t *testing.T) {
	data := []byte(`{"content":"a\nb"}`)
	got := string(ExtractContent(data))
	want := "anb "
	if got != want {
		t.Errorf("ExtractContent(%s) = %q, want %q", data, got, want)
	}
}

// TestExtractContentArrayWithoutColonIsIgnored documents that string
// elements inside an array are only captured when the array itself is
// a key's value — a bare top-level array contributes nothing.
func TestExtractContentArrayWithoutColonIsIgnored(t *testing.T) {
	data := []byte(`["a","b"]`)
	got := string(ExtractContent(data))
	if got != "" {
		t.Errorf("ExtractContent(%s) = %q, want empty", data, got)
	}
}

func TestExtractContentArrayOfValuesAfterColon(t *testing.T) {
	data := []byte(`{"tags":["a","b"]}`)
	got := string(ExtractContent(data))
	want := "a b "
	if got != want {
		t.Errorf("ExtractContent(%s) = %q, want %q", data, got, want)
	}
}

func TestExtractContentResetsAfterClosingBraceAndBracket(t *testing.T) {
	data := []byte(`{"a":{"b":"x"},"c":"y"}`)
	got := string(ExtractContent(data))
	want := "x y "
	if got != want {
		t.Errorf("ExtractContent(%s) = %q, want %q", data, got, want)
	}
}

func TestExtractContentEmptyInput(t *testing.T) {
	if got := ExtractContent(nil); len(got) != 0 {
		t.Errorf("ExtractContent(nil) = %q, want empty", got)
	}
}

func TestUnescapeNoEscapeIsZeroCopy(t *testing.T) {
	in := []byte("plain text")
	out := unescape(in)
	if string(out) != string(in) {
		t.Errorf("unescape(%q) = %q, want unchanged", in, out)
	}
	if &out[0] != &in[0] {
		t.Errorf("unescape(%q) returned a copy, want the input slice itself", in)
	}
}

func TestUnescapeResolvesStandardSequences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"newline", `a\nb`, "a\nb"},
		{"tab", `a\tb`, "a\tb"},
		{"quote", `a\"b`, `a"b`},
		{"backslash", `a\\b`, `a\b`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(unescape([]byte(tt.in)))
			if got != tt.want {
				t.Errorf("unescape(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestUnescapeTrailingBackslashIsKeptLiteral(t *testing.T) {
	in := []byte(`abc\`)
	got := string(unescape(in))
	if got != `abc\` {
		t.Errorf("unescape(%q) = %q, want unchanged trailing backslash", in, got)
	}
}
