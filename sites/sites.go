// Package sites provides the concrete site adapters shipped with the engine.
package sites

import (
	"net/url"

	"github.com/aluiziolira/go-scrape-engine/scraper"
)

// All returns the adapters available for registration with an engine.
func All() []scraper.Adapter {
	return []scraper.Adapter{
		NewBooks(),
		NewQuotes(),
	}
}

// absoluteURL resolves ref against base. A broken ref yields "".
func absoluteURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return b.ResolveReference(r).String()
}
