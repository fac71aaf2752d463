package portal

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Summary describes the page an engine landed on after logging in.
type Summary struct {
	URL   string `json:"url" yaml:"url"`
	Title string `json:"title" yaml:"title"`
	Links int    `json:"links" yaml:"links"`
}

// Summarize extracts the title and counts distinct outbound links in html.
func Summarize(pageURL, html string) (Summary, error) {
	s := Summary{URL: pageURL}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return s, err
	}

	s.Title = strings.TrimSpace(doc.Find("title").First().Text())

	base, _ := url.Parse(pageURL)
	seen := map[string]bool{}
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return
		}
		link, err := url.Parse(href)
		if err != nil {
			return
		}
		if base != nil && !link.IsAbs() {
			link = base.ResolveReference(link)
		}
		seen[link.String()] = true
	})
	s.Links = len(seen)
	return s, nil
}

func (s Summary) data() map[string]any {
	return map[string]any{"url": s.URL, "title": s.Title, "links": s.Links}
}
