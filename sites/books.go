package sites

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-engine/models"
	"github.com/aluiziolira/go-scrape-engine/parser"
	"github.com/aluiziolira/go-scrape-engine/scraper"
)

var _ scraper.Adapter = (*BooksAdapter)(nil)

var availabilityRe = regexp.MustCompile(`\((\d+) available\)`)

var ratingWords = map[string]float64{
	"One":   1,
	"Two":   2,
	"Three": 3,
	"Four":  4,
	"Five":  5,
}

// BooksAdapter scrapes books.toscrape.com, a paged-detail catalog: listing
// pages link to one detail page per book.
type BooksAdapter struct {
	info models.SiteDescriptor
}

// NewBooks returns the books.toscrape.com adapter.
func NewBooks() *BooksAdapter {
	return &BooksAdapter{
		info: models.SiteDescriptor{
			Name:        "Books to Scrape",
			BaseURL:     "http://books.toscrape.com/",
			Description: "Demo bookstore for scraping practice - 1000 books with ratings and prices",
		},
	}
}

// Info implements scraper.Adapter.
func (a *BooksAdapter) Info() models.SiteDescriptor {
	return a.info
}

// RecordsInListing implements scraper.Adapter.
func (a *BooksAdapter) RecordsInListing() bool {
	return false
}

// ResolveStart matches the filter against the category sidebar.
func (a *BooksAdapter) ResolveStart(front *goquery.Document, filter string) string {
	filter = strings.ToLower(filter)
	resolved := ""
	front.Find("div.side_categories a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
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

// ItemLinks extracts book detail links from a catalog page.
func (a *BooksAdapter) ItemLinks(doc *goquery.Document, pageURL string, limit int) []string {
	var links []string
	doc.Find("article.product_pod h3 a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if limit > 0 && len(links) >= limit {
			return false
		}
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		if link := absoluteURL(pageURL, href); link != "" {
			links = append(links, link)
		}
		return true
	})
	return links
}

// NextPage follows the catalog pager.
func (a *BooksAdapter) NextPage(doc *goquery.Document, pageURL string) string {
	href, ok := doc.Find("li.next a").First().Attr("href")
	if !ok {
		return ""
	}
	return absoluteURL(pageURL, href)
}

// ParseRecords parses one book detail page into a single record.
func (a *BooksAdapter) ParseRecords(doc *goquery.Document, pageURL string) ([]models.Record, error) {
	name := parser.CleanText(doc.Find("h1").First().Text())
	if name == "" {
		return nil, fmt.Errorf("no title on page")
	}

	record := models.Record{
		"name":         name,
		"url":          pageURL,
		"price":        nil,
		"rating":       nil,
		"availability": 0,
		"description":  a.description(doc),
		"category":     a.category(doc),
		"upc":          a.upc(doc),
	}

	if price, ok := parser.ParsePrice(doc.Find("p.price_color").First().Text()); ok {
		record["price"] = price
		record["currency"] = parser.Currency(doc.Find("p.price_color").First().Text())
	}
	if rating, ok := a.rating(doc); ok {
		record["rating"] = rating
	}
	record["availability"] = a.availability(doc)

	return []models.Record{record}, nil
}

// rating reads the star rating from the class list, e.g. "star-rating Three".
func (a *BooksAdapter) rating(doc *goquery.Document) (float64, bool) {
	class, ok := doc.Find("p.star-rating").First().Attr("class")
	if !ok {
		return 0, false
	}
	for _, word := range strings.Fields(class) {
		if value, ok := ratingWords[word]; ok {
			return value, true
		}
	}
	return 0, false
}

// availability extracts the stock count from text like "In stock (22 available)".
func (a *BooksAdapter) availability(doc *goquery.Document) int {
	text := strings.TrimSpace(doc.Find("p.instock.availability").First().Text())
	if match := availabilityRe.FindStringSubmatch(text); match != nil {
		count := 0
		fmt.Sscanf(match[1], "%d", &count)
		return count
	}
	if strings.Contains(strings.ToLower(text), "in stock") {
		return 1
	}
	return 0
}

func (a *BooksAdapter) description(doc *goquery.Document) string {
	return parser.CleanText(doc.Find("#product_description ~ p").First().Text())
}

// category reads the breadcrumb, skipping "Home" and the book title itself.
func (a *BooksAdapter) category(doc *goquery.Document) string {
	crumbs := doc.Find("ul.breadcrumb a")
	if crumbs.Length() < 2 {
		return ""
	}
	return parser.CleanText(crumbs.Last().Text())
}

func (a *BooksAdapter) upc(doc *goquery.Document) string {
	upc := ""
	doc.Find("table.table-striped tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if !strings.Contains(row.Find("th").Text(), "UPC") {
			return true
		}
		upc = strings.TrimSpace(row.Find("td").Text())
		return false
	})
	return upc
}
