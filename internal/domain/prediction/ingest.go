package prediction

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/codeassist/internal/domain/curation"
	"github.com/ehr/codeassist/internal/domain/evidence"
)

// NoCodesMessage is reported when a prediction succeeds with nothing above
// the confidence threshold.
const NoCodesMessage = "No codes met the confidence threshold."

// maxSummaryTokens bounds the token list used as a fallback rationale.
const maxSummaryTokens = 5

// Ingest turns an upstream response into display-ready predictions. Every
// code gets a fresh id and its evidence resolved against note; evidence that
// cannot be located is dropped. ICD codes come first, then CPT codes.
func Ingest(note string, resp *Response, req Request) Result {
	res := Result{Reasoning: strings.TrimSpace(resp.Reasoning)}

	icdVersion := ""
	if req.Backend == SourceLLM {
		icdVersion = req.ICDVersion
	}
	for _, in := range resp.ICDCodes {
		res.Codes = append(res.Codes, ingestCode(note, in, req.Backend, curation.TypeICD, icdVersion))
	}
	for _, in := range resp.CPTCodes {
		res.Codes = append(res.Codes, ingestCode(note, in, req.Backend, curation.TypeCPT, ""))
	}

	if len(res.Codes) == 0 {
		res.Message = NoCodesMessage
		if msg := strings.TrimSpace(resp.Message); msg != "" {
			res.Message = msg
		}
	}
	return res
}

func ingestCode(note string, in CodeInput, src Source, codeType, icdVersion string) PredictedCode {
	exp := in.Explanation
	if exp == nil {
		exp = TextExplanation("")
	}
	ev := exp.Evidence()
	ev.SpanTexts = in.EvidenceSpans

	spans := evidence.Resolve(note, ev)
	if spans == nil {
		spans = []evidence.Span{}
	}

	return PredictedCode{
		ID:          uuid.New().String(),
		Code:        strings.TrimSpace(in.Code),
		Description: strings.TrimSpace(in.Description),
		Probability: in.Probability,
		Explanation: summarize(exp),
		Spans:       spans,
		Source:      src,
		CodeType:    codeType,
		ICDVersion:  icdVersion,
	}
}

// summarize prefers the backend's own rationale and otherwise lists the
// highest-ranked tokens.
func summarize(exp Explanation) string {
	if s := strings.TrimSpace(exp.Summary()); s != "" {
		return s
	}
	tokens := append([]evidence.TokenAttribution(nil), exp.Evidence().Tokens...)
	if len(tokens) == 0 {
		return ""
	}
	sort.SliceStable(tokens, func(i, j int) bool { return tokens[i].Rank < tokens[j].Rank })

	var words []string
	for _, tok := range tokens {
		w := tok.Display
		if w == "" {
			w = tok.Token
		}
		w = strings.TrimSpace(evidence.DecodeToken(w))
		if w == "" {
			continue
		}
		words = append(words, w)
		if len(words) == maxSummaryTokens {
			break
		}
	}
	if len(words) == 0 {
		return ""
	}
	return "Top attributed tokens: " + strings.Join(words, ", ")
}
