package harvest

import (
	"regexp"
	"strings"
)

// Classification is the result of classifying one fragment description.
type Classification struct {
	Kind    FragmentKind
	Label   string
	Justice string
}

// justicePattern pulls the author surname out of labels like
// "dissenting opinion by chief justice lee".
var justicePattern = regexp.MustCompile(`(?:dissenting |concurring )?opinion by (?:chief )?justice (\w+)`)

// classifyRule matches a description substring to a kind. Rules are evaluated
// in order; the first match wins.
type classifyRule struct {
	substr     string
	kind       FragmentKind
	label      string
	attributed bool
}

var classifyRules = []classifyRule{
	{substr: "memorandum", kind: KindPrimary, label: "mem"},
	{substr: "dissenting", kind: KindDissent, label: "dis", attributed: true},
	{substr: "concurring", kind: KindConcurrence, label: "con", attributed: true},
	{substr: "opinion", kind: KindPrimary, label: "op"},
}

// Classify maps a fragment description to its kind, summary label, and
// attributed justice. Matching is case-insensitive. When the description only
// says "opinion", a disposition that names a dissenting or concurring opinion
// decides the kind instead; explicit descriptions always win.
func Classify(description, disposition string) Classification {
	desc := strings.ToLower(description)

	for _, rule := range classifyRules {
		if !strings.Contains(desc, rule.substr) {
			continue
		}
		if rule.label == "op" {
			if c, ok := dispositionOverride(desc, disposition); ok {
				return c
			}
		}
		c := Classification{Kind: rule.kind, Label: rule.label}
		if rule.attributed {
			c.Justice = extractJustice(desc)
		}
		return c
	}
	if c, ok := dispositionOverride(desc, disposition); ok {
		return c
	}
	return Classification{Kind: KindUnknown}
}

// dispositionOverride resolves generic descriptions by what the disposition
// says was filed.
func dispositionOverride(lowerDescription, disposition string) (Classification, bool) {
	disp := strings.ToLower(disposition)
	if strings.Contains(disp, "concurring") {
		return Classification{Kind: KindConcurrence, Label: "con", Justice: extractJustice(lowerDescription)}, true
	}
	if strings.Contains(disp, "dissenting") {
		return Classification{Kind: KindDissent, Label: "dis", Justice: extractJustice(lowerDescription)}, true
	}
	return Classification{}, false
}

func extractJustice(lowerDescription string) string {
	m := justicePattern.FindStringSubmatch(lowerDescription)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
