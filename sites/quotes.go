package sites

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-engine/models"
	"github.com/aluiziolira/go-scrape-engine/parser"
	"github.com/aluiziolira/go-scrape-engine/scraper"
)

var _ scraper.Adapter = (*QuotesAdapter)(nil)

// QuotesAdapter scrapes quotes.toscrape.com, a flat-listing site: every
// listing page embeds complete records, there are no detail pages.
type QuotesAdapter struct {
	info models.SiteDescriptor
}

// NewQuotes returns the quotes.toscrape.com adapter.
func NewQuotes() *QuotesAdapter {
	return &QuotesAdapter{
		info: models.SiteDescriptor{
			Name:        "Quotes to Scrape",
			BaseURL:     "http://quotes.toscrape.com/",
			Description: "Demo quotes site for scraping practice - quotes with authors and tags",
		},
	}
}

// Info implements scraper.Adapter.
func (a *QuotesAdapter) Info() models.SiteDescriptor {
	return a.info
}

// RecordsInListing implements scraper.Adapter.
func (a *QuotesAdapter) RecordsInListing() bool {
	return true
}

// ResolveStart matches the filter against the tag links on the front page.
func (a *QuotesAdapter) ResolveStart(front *goquery.Document, filter string) string {
	filter = strings.ToLower(filter)
	resolved := ""
	front.Find("a.tag").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		label := strings.ToLower(strings.TrimSpace(sel.Text()))
		if !strings.Contains(label, filter) {
			return true
		}
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		resolved = absoluteURL(a.info.BaseURL, href)
		return false
	})
	return resolved
}

// ItemLinks is unused: records are embedded in listing pages.
func (a *QuotesAdapter) ItemLinks(*goquery.Document, string, int) []string {
	return nil
}

// NextPage follows the listing pager.
func (a *QuotesAdapter) NextPage(doc *goquery.Document, pageURL string) string {
	href, ok := doc.Find("li.next a").First().Attr("href")
	if !ok {
		return ""
	}
	return absoluteURL(pageURL, href)
}

// ParseRecords extracts every quote embedded in a listing page.
func (a *QuotesAdapter) ParseRecords(doc *goquery.Document, pageURL string) ([]models.Record, error) {
	var records []models.Record
	doc.Find("div.quote").Each(func(_ int, quote *goquery.Selection) {
		author := parser.CleanText(quote.Find("small.author").First().Text())
		if author == "" {
			return
		}

		var tags []string
		quote.Find("a.tag").Each(func(_ int, tag *goquery.Selection) {
			if text := strings.TrimSpace(tag.Text()); text != "" {
				tags = append(tags, text)
			}
		})

		records = append(records, models.Record{
			"name":     fmt.Sprintf("Quote by %s", author),
			"url":      pageURL,
			"price":    0.0,
			"rating":   5.0,
			"text":     parser.CleanText(quote.Find("span.text").First().Text()),
			"author":   author,
			"tags":     strings.Join(tags, ", "),
			"category": "Quotes",
		})
	})
	return records, nil
}
