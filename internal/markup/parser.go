// Package markup extracts structured data from page snapshots. Parsing works
// on serialized HTML rather than live DOM queries so one Content() round trip
// yields the whole list, and so the extraction logic is testable against
// fixtures without a browser.
package markup

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/hliang2/chatspider/api/schemas"
	"github.com/hliang2/chatspider/internal/config"
)

// Parser turns HTML snapshots into entry and detail records using the
// configured selectors.
type Parser struct {
	cfg    config.LocatorConfig
	logger *zap.Logger
}

// NewParser creates a parser bound to the given selector configuration.
func NewParser(cfg config.LocatorConfig, logger *zap.Logger) *Parser {
	return &Parser{
		cfg:    cfg,
		logger: logger.Named("markup"),
	}
}

// ParseEntries extracts the inbox entry list from a page snapshot. Entries
// are returned in document order with 1-based indices; items missing a name
// are kept (the index still addresses a clickable row) but logged.
func (p *Parser) ParseEntries(html string) ([]schemas.Entry, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("markup: parse entry snapshot: %w", err)
	}

	sel := p.cfg.Entries
	var entries []schemas.Entry
	doc.Find(sel.Item).Each(func(i int, item *goquery.Selection) {
		entry := schemas.Entry{
			Index:  i + 1,
			Status: schemas.EntryPending,
		}

		entry.Name = text(item, sel.Name)
		// Company and position ride in the secondary name box, usually as
		// "Company · Position" or as two sibling spans.
		if box := item.Find(sel.NameBox); box.Length() > 0 {
			parts := make([]string, 0, box.Length())
			box.Each(func(_ int, s *goquery.Selection) {
				if t := clean(s.Text()); t != "" && t != entry.Name {
					parts = append(parts, t)
				}
			})
			if len(parts) > 0 {
				entry.Company = parts[0]
			}
			if len(parts) > 1 {
				entry.Position = strings.Join(parts[1:], " ")
			}
		}
		entry.LastMessage = text(item, sel.LastMessage)
		entry.Time = text(item, sel.Time)

		if badge := text(item, sel.UnreadBadge); badge != "" {
			entry.Unread = true
			if n, err := strconv.Atoi(badge); err == nil {
				entry.UnreadCount = n
			}
		}

		if entry.Name == "" {
			p.logger.Debug("Entry row has no readable name.", zap.Int("index", entry.Index))
		}
		entries = append(entries, entry)
	})

	p.logger.Debug("Parsed entry list snapshot.", zap.Int("entries", len(entries)))
	return entries, nil
}

// ParseDetail extracts a detail record from a detail-page snapshot. Every
// field is optional: missing selectors yield empty values, never errors.
func (p *Parser) ParseDetail(html, url string) (*schemas.EntryDetail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("markup: parse detail snapshot: %w", err)
	}

	sel := p.cfg.Detail
	detail := &schemas.EntryDetail{
		URL:         url,
		Title:       firstText(doc, sel.Title),
		Salary:      firstText(doc, sel.Salary),
		Description: firstText(doc, sel.Description),
		WorkAddress: firstText(doc, sel.WorkAddress),
	}

	// The info-desc row packs experience and education alongside the
	// location, separated by middot-style markers.
	if info := firstText(doc, sel.InfoDesc); info != "" {
		fields := splitInfo(info)
		if len(fields) > 0 {
			detail.Location = fields[0]
		}
		if len(fields) > 1 {
			detail.Experience = fields[1]
		}
		if len(fields) > 2 {
			detail.Education = fields[2]
		}
	}

	doc.Find(sel.Tags).Each(func(_ int, s *goquery.Selection) {
		if t := clean(s.Text()); t != "" {
			detail.Tags = append(detail.Tags, t)
		}
	})

	var companyParts []string
	doc.Find(sel.CompanyInfo).Each(func(_ int, s *goquery.Selection) {
		if t := clean(s.Text()); t != "" {
			companyParts = append(companyParts, t)
		}
	})
	detail.CompanyInfo = strings.Join(companyParts, " | ")

	return detail, nil
}

// firstText tries each comma-separated alternative in the selector and
// returns the first non-empty match.
func firstText(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	for _, alt := range strings.Split(selector, ",") {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			continue
		}
		if t := clean(doc.Find(alt).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

func text(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return clean(s.Find(selector).First().Text())
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// splitInfo breaks an info-desc line on the separators the site alternates
// between across layout revisions.
func splitInfo(s string) []string {
	seps := []string{"·", "•", "|"}
	for _, sep := range seps {
		if strings.Contains(s, sep) {
			parts := strings.Split(s, sep)
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if t := clean(p); t != "" {
					out = append(out, t)
				}
			}
			return out
		}
	}
	return strings.Fields(s)
}
