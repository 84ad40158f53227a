package evidence

import "testing"

func TestDecodeToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"leading space marker", "Ġfever", " fever"},
		{"newline marker", "Ċ", "\n"},
		{"crlf markers collapse", "čĊ", "\n"},
		{"double newline", "ĊĊ", "\n\n"},
		{"byte-level accented", "Ã©", "é"},
		{"sentencepiece marker", "▁appendicitis", " appendicitis"},
		{"escaped display newline", `\nAssessment`, "\nAssessment"},
		{"plain text unchanged", "appendicitis", "appendicitis"},
		{"unicode passthrough", "β-blocker", "β-blocker"},
		{"carriage return normalized", "a\r\nb\rc", "a\nb\nc"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeToken(tt.token); got != tt.want {
				t.Errorf("DecodeToken(%q) = %q, want %q", tt.token, got, tt.want)
			}
		})
	}
}

func TestNormalizeNewlines(t *testing.T) {
	if got := NormalizeNewlines("line1\r\nline2\rline3\n"); got != "line1\nline2\nline3\n" {
		t.Errorf("unexpected normalization: %q", got)
	}
}
