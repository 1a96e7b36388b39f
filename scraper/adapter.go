package scraper

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-engine/models"
)

// Adapter is the site-specific extraction logic behind the engine. Adapters
// only parse documents the engine has already fetched; all network traffic,
// rate limiting, and cancellation stay in the engine.
type Adapter interface {
	// Info describes the target site.
	Info() models.SiteDescriptor

	// ResolveStart maps a category/tag filter onto a filtered listing URL
	// by matching the filter (case-insensitive substring) against the
	// labels found on the site's front page. Empty result means no match.
	ResolveStart(front *goquery.Document, filter string) string

	// ItemLinks returns up to limit absolute item-page links found on a
	// listing page. Unused by flat-listing sites.
	ItemLinks(doc *goquery.Document, pageURL string, limit int) []string

	// NextPage returns the absolute URL of the next listing page, or ""
	// when the pager ends.
	NextPage(doc *goquery.Document, pageURL string) string

	// ParseRecords parses a fetched page into records: one detail page
	// yields one record for paged-detail sites, one listing page yields
	// zero or more records for flat-listing sites.
	ParseRecords(doc *goquery.Document, pageURL string) ([]models.Record, error)

	// RecordsInListing reports whether records are embedded directly in
	// listing pages, with no per-item detail fetch.
	RecordsInListing() bool
}
