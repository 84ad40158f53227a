package evidence

import (
	"strings"
	"unicode/utf8"
)

// byteLevelDecoder maps the printable runes used by byte-level BPE
// vocabularies (GPT-2, RoBERTa) back to the raw bytes they stand for.
var byteLevelDecoder = buildByteLevelDecoder()

func buildByteLevelDecoder() map[rune]byte {
	dec := make(map[rune]byte, 256)
	printable := func(b int) bool {
		return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
	}
	n := 0
	for b := 0; b < 256; b++ {
		if printable(b) {
			dec[rune(b)] = byte(b)
			continue
		}
		dec[rune(256+n)] = byte(b)
		n++
	}
	return dec
}

// markerReplacer handles tokens that are not pure byte-level text, e.g.
// sentencepiece pieces or the escaped display form produced upstream.
var markerReplacer = strings.NewReplacer(
	"Ġ", " ",
	"▁", " ",
	"Ċ", "\n",
	"č", "\r",
	"ĉ", "\t",
	`\n`, "\n",
)

// DecodeToken turns a raw tokenizer fragment into the text it stands for.
// It never fails: input it does not recognise comes back unchanged apart
// from line-ending normalization.
func DecodeToken(token string) string {
	if token == "" {
		return ""
	}
	if decoded, ok := decodeByteLevel(token); ok {
		return NormalizeNewlines(decoded)
	}
	return NormalizeNewlines(markerReplacer.Replace(token))
}

func decodeByteLevel(token string) (string, bool) {
	if isASCII(token) {
		return "", false
	}
	buf := make([]byte, 0, len(token))
	for _, r := range token {
		b, ok := byteLevelDecoder[r]
		if !ok {
			return "", false
		}
		buf = append(buf, b)
	}
	if !utf8.Valid(buf) {
		return "", false
	}
	return string(buf), true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// NormalizeNewlines rewrites CRLF and lone CR line endings to LF.
func NormalizeNewlines(s string) string {
	if !strings.ContainsRune(s, '\r') {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
