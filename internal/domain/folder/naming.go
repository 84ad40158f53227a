package folder

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ehr/codeassist/internal/domain/curation"
	"github.com/ehr/codeassist/internal/domain/evidence"
)

// CodesFile is the human-readable code list written next to each note.
const CodesFile = "finalized_codes.txt"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Sanitize turns a user-supplied name into a single safe path segment.
// Accents are folded first so "Hôpital" becomes "Hopital" rather than
// "H_pital". Empty results become "note".
func Sanitize(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}
	s := unsafeChars.ReplaceAllString(folded, "_")
	s = strings.Trim(s, "._-")
	if s == "" {
		return "note"
	}
	return s
}

// candidate returns the nth collision-avoiding variant of stem:
// stem, stem-01, stem-02, ...
func candidate(stem string, n int) string {
	if n == 0 {
		return stem
	}
	return fmt.Sprintf("%s-%02d", stem, n)
}

// maxCandidates bounds the collision search.
const maxCandidates = 1000

// names derives the folder stem and note file name for a save. The admission
// identifier wins over the note file name; with neither, a timestamped name
// is synthesized.
func names(req SaveRequest, now time.Time) (stem, noteFile string) {
	ext := ".txt"
	fileStem := ""
	if nf := strings.TrimSpace(req.NoteFile); nf != "" {
		base := path.Base(strings.ReplaceAll(nf, `\`, "/"))
		if e := path.Ext(base); e != "" && e != base {
			ext = e
		}
		fileStem = strings.TrimSuffix(base, path.Ext(base))
	}

	switch {
	case strings.TrimSpace(req.Name) != "":
		stem = Sanitize(strings.TrimSpace(req.Name))
	case fileStem != "":
		stem = Sanitize(fileStem)
	default:
		stem = Sanitize(fmt.Sprintf("manual-note-%s", now.Format("20060102-150405")))
	}

	if fileStem != "" {
		return stem, Sanitize(fileStem) + ext
	}
	return stem, stem + ext
}

// FormatCodes renders the numbered code list written to finalized_codes.txt.
func FormatCodes(codes []PersistedCode) string {
	var b strings.Builder
	for i, c := range codes {
		fmt.Fprintf(&b, "%d. %s", i+1, c.Code)
		if c.Description != "" {
			fmt.Fprintf(&b, " - %s", c.Description)
		}
		if c.Probability != nil {
			fmt.Fprintf(&b, " (probability: %.4f)", *c.Probability)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

var codeLine = regexp.MustCompile(`^\d+\.\s+(\S+)(?:\s+-\s+(.*?))?(?:\s+\(probability:\s*([0-9.]+)\))?\s*$`)

// ParseCodes reads a finalized_codes.txt listing back. It is used for
// folders that predate codes.json; every code is read as ICD.
func ParseCodes(text string) []PersistedCode {
	var out []PersistedCode
	for _, line := range strings.Split(text, "\n") {
		m := codeLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		pc := PersistedCode{Code: m[1], CodeType: curation.TypeICD, Description: m[2], EvidenceSpans: []evidence.SpanInput{}}
		if m[3] != "" {
			var p float64
			if _, err := fmt.Sscanf(m[3], "%g", &p); err == nil {
				pc.Probability = &p
			}
		}
		out = append(out, pc)
	}
	return out
}
