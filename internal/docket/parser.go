package docket

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/texapp/opinion-harvester/internal/harvest"
)

// sectionHeading marks the block of the docket page we harvest from.
const sectionHeading = "Criminal Causes Decided"

// courtTemplateToken is a literal server-side template fragment that leaks
// into media hrefs on some dockets; it stands in for the court identifier.
const courtTemplateToken = `" + this.CurrentWebState.CurrentCourt + @"`

var caseNumberPattern = regexp.MustCompile(`\d{2}-\d{2}-\d{5}-CR`)

// Parser extracts case groups from docket index pages.
type Parser struct {
	base *url.URL
}

// NewParser builds a parser that resolves relative media links against base.
func NewParser(base string) (*Parser, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", base, err)
	}
	return &Parser{base: u}, nil
}

// Parse returns the case groups listed under the criminal section of one
// docket page. A page without that section is a normal empty docket: the
// result is an empty slice and a nil error.
func (p *Parser) Parse(unit harvest.WorkUnit, page []byte) ([]harvest.CaseGroup, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse docket html: %w", err)
	}

	var heading *goquery.Selection
	doc.Find("h3").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if strings.Contains(h.Text(), sectionHeading) {
			heading = h
			return false
		}
		return true
	})
	if heading == nil {
		return nil, nil
	}

	table := p.tableAfter(heading)
	if table == nil {
		return nil, nil
	}

	var cases []harvest.CaseGroup
	table.Find("tbody tr.rgRow, tbody tr.rgAltRow").Each(func(_ int, row *goquery.Selection) {
		if group, ok := p.parseRow(unit, row); ok {
			cases = append(cases, group)
		}
	})
	return cases, nil
}

// tableAfter locates the grid that follows the section heading. The grid is
// either a later sibling of the heading or nested in one.
func (p *Parser) tableAfter(heading *goquery.Selection) *goquery.Selection {
	if t := heading.NextAllFiltered("table.rgMasterTable").First(); t.Length() > 0 {
		return t
	}
	if t := heading.NextAll().Find("table.rgMasterTable").First(); t.Length() > 0 {
		return t
	}
	if t := heading.Parent().NextAll().Find("table.rgMasterTable").First(); t.Length() > 0 {
		return t
	}
	return nil
}

func (p *Parser) parseRow(unit harvest.WorkUnit, row *goquery.Selection) (harvest.CaseGroup, bool) {
	var number, caseHref string
	row.Find(`a[href*="Case.aspx?cn="]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if !strings.Contains(href, "-CR") {
			return true
		}
		if m := caseNumberPattern.FindString(strings.TrimSpace(a.Text())); m != "" {
			number = m
			caseHref = href
			return false
		}
		return true
	})
	if number == "" {
		return harvest.CaseGroup{}, false
	}

	disposition := strings.TrimSpace(row.Find("td.caseDisp").First().Text())
	if disposition == "" {
		cells := row.Find("td")
		if cells.Length() >= 3 {
			disposition = strings.TrimSpace(cells.Eq(2).Text())
		}
	}

	var fragments []harvest.Fragment
	row.Find("table.docGrid").Each(func(_ int, grid *goquery.Selection) {
		link := grid.Find(`a[href*="SearchMedia.aspx"]`).First()
		if link.Length() == 0 {
			return
		}
		href, _ := link.Attr("href")
		description := strings.TrimSpace(link.Closest("td").PrevAllFiltered("td").First().Text())
		fragments = append(fragments, harvest.Fragment{
			URL:         p.resolveMedia(href, unit.Court),
			Description: description,
		})
	})
	if len(fragments) == 0 {
		return harvest.CaseGroup{}, false
	}

	return harvest.CaseGroup{
		Number:      number,
		CaseURL:     p.resolve(caseHref),
		Disposition: disposition,
		Fragments:   fragments,
	}, true
}

// resolveMedia substitutes the court token with the unit's own court before
// resolving against the base URL.
func (p *Parser) resolveMedia(href string, court int) string {
	href = strings.ReplaceAll(href, courtTemplateToken, fmt.Sprintf("coa%02d", court))
	return p.resolve(href)
}

func (p *Parser) resolve(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	return p.base.ResolveReference(u).String()
}

var _ harvest.DocketParser = (*Parser)(nil)
