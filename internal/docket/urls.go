// Package docket builds the court site's URLs and parses its published
// docket pages into case groups ready for assembly.
package docket

import (
	"fmt"
	"strings"

	"github.com/texapp/opinion-harvester/internal/harvest"
)

// DocketURL returns the docket index page for one court and date. The site
// takes the date with literal slashes.
func DocketURL(base string, unit harvest.WorkUnit) string {
	return fmt.Sprintf("%s/Docket.aspx?coa=coa%02d&FullDate=%s",
		strings.TrimRight(base, "/"), unit.Court, unit.Date.Format("01/02/2006"))
}

// CaseURL returns the public case page for a case number.
func CaseURL(base, caseNumber string) string {
	return fmt.Sprintf("%s/Case.aspx?cn=%s", strings.TrimRight(base, "/"), caseNumber)
}
