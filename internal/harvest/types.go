package harvest

import (
	"fmt"
	"time"
)

// WorkUnit identifies one (court, docket date) pair to harvest. Immutable
// once created.
type WorkUnit struct {
	Court int
	Date  time.Time
}

// NewWorkUnit builds a unit with the date truncated to day granularity (UTC).
func NewWorkUnit(court int, date time.Time) WorkUnit {
	return WorkUnit{Court: court, Date: Day(date)}
}

// Key returns the stable ledger key, e.g. "2025-02-04_03".
func (u WorkUnit) Key() string {
	return fmt.Sprintf("%s_%02d", u.Date.Format("2006-01-02"), u.Court)
}

// String renders the unit for logs.
func (u WorkUnit) String() string {
	return fmt.Sprintf("court %02d on %s", u.Court, u.Date.Format("2006-01-02"))
}

// Day truncates a time to midnight UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FragmentKind is the closed set of opinion roles a fragment can take.
type FragmentKind string

// Fragment kinds in merge order.
const (
	KindPrimary     FragmentKind = "primary"
	KindConcurrence FragmentKind = "concurrence"
	KindDissent     FragmentKind = "dissent"
	KindUnknown     FragmentKind = "unknown"
)

// Rank orders kinds for assembly: the controlling opinion first, then
// concurrences, then dissents, then anything unclassified.
func (k FragmentKind) Rank() int {
	switch k {
	case KindPrimary:
		return 1
	case KindConcurrence:
		return 2
	case KindDissent:
		return 3
	default:
		return 4
	}
}

// Fragment is one retrievable document belonging to a CaseGroup.
type Fragment struct {
	// URL is the absolute media link for the document.
	URL string
	// Description is the free-text label shown next to the link; it drives
	// classification.
	Description string
	// Kind, Label, and Justice are filled by classification. Label is the
	// short form used in type summaries (mem, op, con, dis); Justice is the
	// lowercase surname of the attributed author, when one is named.
	Kind    FragmentKind
	Label   string
	Justice string
	// TempPath is where the fragment is downloaded before merging. Owned by
	// the assembler for the duration of one case group's assembly.
	TempPath string
}

// CaseGroup is the unit of assembly: one case's fragments discovered within
// a single work unit. It lives for one coordinator pass only.
type CaseGroup struct {
	// Number is the external case identifier, e.g. "03-25-00123-CR".
	Number string
	// CaseURL is the absolute case page link, as published on the docket.
	CaseURL string
	// Disposition is the docket's disposition text for the case; it breaks
	// classification ties for generic "opinion" descriptions.
	Disposition string
	Fragments   []Fragment
}

// Artifact describes the single merged output produced for a CaseGroup,
// together with its metadata record.
type Artifact struct {
	CaseNumber string    `json:"case_number"`
	Court      int       `json:"court"`
	Date       time.Time `json:"date"`
	Path       string    `json:"path"`
	// KindSummary joins fragment labels with "+", e.g. "mem+dis".
	KindSummary string `json:"kind_summary"`
	// JusticeSummary joins attributed fragments as label_justice with ";",
	// e.g. "con_smith;dis_lee". Empty when nothing is attributed.
	JusticeSummary string `json:"justice_summary"`
	// SourceURLs lists the merged fragment URLs in merge order.
	SourceURLs []string `json:"source_urls"`
	// Checksum is the hex SHA-256 of the merged file.
	Checksum string `json:"checksum"`
	// Merged counts the fragments that made it into the file.
	Merged int `json:"merged"`
	// CaseURL is the public case page for reports.
	CaseURL string `json:"case_url,omitempty"`
}

// UnitOutcome aggregates one work unit's results for the ledger.
type UnitOutcome struct {
	Cases int
	Files int
}
