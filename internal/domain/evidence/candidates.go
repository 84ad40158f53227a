package evidence

import "strings"

const (
	quoteChars          = "\"'“”‘’«»‹›„‟"
	trailingPunctuation = ".,;:!?"
)

// Candidates returns the literal strings worth searching for when a backend
// reports evidence as text, most faithful first. LLMs tend to wrap quotes in
// quotation marks or add a closing period the note does not have.
func Candidates(raw string) []string {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return nil
	}

	var out []string
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		for _, existing := range out {
			if existing == v {
				return
			}
		}
		out = append(out, v)
	}

	add(cleaned)

	unquoted := strings.TrimSpace(strings.Trim(cleaned, quoteChars))
	add(unquoted)
	add(strings.TrimRight(unquoted, trailingPunctuation))
	add(strings.TrimRight(cleaned, trailingPunctuation))

	return out
}
