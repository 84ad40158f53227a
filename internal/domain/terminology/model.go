package terminology

import (
	"fmt"
	"strings"
)

// System identifies a code dictionary.
type System string

const (
	SystemICD9  System = "icd9"
	SystemICD10 System = "icd10"
	SystemCPT   System = "cpt"
)

// Systems lists every supported dictionary.
var Systems = []System{SystemICD9, SystemICD10, SystemCPT}

// URI returns the canonical code system URI.
func (s System) URI() string {
	switch s {
	case SystemICD9:
		return "http://hl7.org/fhir/sid/icd-9-cm"
	case SystemICD10:
		return "http://hl7.org/fhir/sid/icd-10-cm"
	case SystemCPT:
		return "http://www.ama-assn.org/go/cpt"
	}
	return ""
}

// Table is the reference table holding the system's codes.
func (s System) Table() string { return "reference_" + string(s) }

// ParseSystem accepts the system names used by the API ("icd9", "icd10",
// "cpt") plus the bare ICD version numbers "9" and "10".
func ParseSystem(v string) (System, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "icd9", "icd-9", "9":
		return SystemICD9, nil
	case "icd10", "icd-10", "10":
		return SystemICD10, nil
	case "cpt":
		return SystemCPT, nil
	}
	return "", fmt.Errorf("unknown code system %q", v)
}

// SystemFor maps a code type and ICD version to a dictionary. ICD codes
// default to ICD-10 when the version is unknown.
func SystemFor(codeType, icdVersion string) System {
	if strings.EqualFold(codeType, "cpt") {
		return SystemCPT
	}
	if strings.TrimSpace(icdVersion) == "9" {
		return SystemICD9
	}
	return SystemICD10
}

// Code is one dictionary entry.
type Code struct {
	Code        string `db:"code" json:"code"`
	Description string `db:"display" json:"description"`
	Category    string `db:"category" json:"category,omitempty"`
	System      System `db:"-" json:"system"`
}

// compact strips the dots ICD codes are often written with, so "250.00" and
// "25000" compare equal.
func compact(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), ".", ""))
}
