// Package phi screens raw clinical text for likely identifying information
// before any of it can reach an external model. Detection is a fixed regex
// battery: it is deliberately conservative (false positives reject borderline
// input) and makes no claim of completeness — absence of a match is not
// evidence of absence.
package phi

import "regexp"

// PatternKind names one detector in the battery.
type PatternKind string

const (
	KindName    PatternKind = "name"
	KindDate    PatternKind = "date"
	KindPhone   PatternKind = "phone"
	KindMRN     PatternKind = "mrn"
	KindAddress PatternKind = "address"
	KindEmail   PatternKind = "email"
	KindSSN     PatternKind = "ssn"
	KindAadhaar PatternKind = "aadhaar"
	KindPAN     PatternKind = "pan"
	KindIP      PatternKind = "ip"
)

// Result is the gate verdict. Blocked is a plain OR across detectors.
type Result struct {
	Blocked bool
	Kinds   []PatternKind
}

// Matched reports whether the given kind fired.
func (r Result) Matched(kind PatternKind) bool {
	for _, k := range r.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

type detector struct {
	kind     PatternKind
	patterns []*regexp.Regexp
}

// The battery. A kind fires when any of its patterns matches; kinds are
// reported in battery order so results are stable.
var detectors = []detector{
	{KindName, []*regexp.Regexp{
		// Honorific followed by capitalized words: "Dr. Mehta", "Mrs. Rao".
		regexp.MustCompile(`\b(Dr|Mr|Mrs|Ms)\.?\s+[A-Z][a-z]+(\s+[A-Z][a-z]+)*\b`),
	}},
	{KindDate, []*regexp.Regexp{
		regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{4}\b`),
		regexp.MustCompile(`\b\d{4}[/-]\d{1,2}[/-]\d{1,2}\b`),
		// Long-form dates: "January 15, 2024".
		regexp.MustCompile(`(?i)\b(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|Jun(?:e)?|Jul(?:y)?|Aug(?:ust)?|Sep(?:tember)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\s+\d{1,2},?\s+\d{4}\b`),
	}},
	{KindPhone, []*regexp.Regexp{
		regexp.MustCompile(`\(\d{3}\)\s*\d{3}[-.\s]?\d{4}`),
		regexp.MustCompile(`\b\d{3}[-.\s]\d{3}[-.\s]\d{4}\b`),
	}},
	{KindMRN, []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bMRN[:#]?\s*\d+`),
	}},
	{KindAddress, []*regexp.Regexp{
		regexp.MustCompile(`\b\d+\s+[A-Z][a-z]+(\s+[A-Z][a-z]+)*\s+(Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Way)\b`),
	}},
	{KindEmail, []*regexp.Regexp{
		regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	}},
	{KindSSN, []*regexp.Regexp{
		regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	}},
	{KindAadhaar, []*regexp.Regexp{
		regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),
	}},
	{KindPAN, []*regexp.Regexp{
		regexp.MustCompile(`\b[A-Z]{5}[0-9]{4}[A-Z]\b`),
	}},
	{KindIP, []*regexp.Regexp{
		regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
	}},
}

// Scan runs the full battery over text. Pure function, never fails; an empty
// string simply matches nothing.
func Scan(text string) Result {
	var res Result
	for _, d := range detectors {
		for _, p := range d.patterns {
			if p.MatchString(text) {
				res.Kinds = append(res.Kinds, d.kind)
				break
			}
		}
	}
	res.Blocked = len(res.Kinds) > 0
	return res
}
