package util

import (
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy

	stripAll   = bluemonday.StrictPolicy()
	lineBreaks = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|h[1-6]|li|tr|blockquote|pre)>`)
	blankRuns  = regexp.MustCompile(`\n{3,}`)
)

// htmlPolicy allows formatting, links, images, tables and headings. Script,
// style and iframe contents are dropped entirely; event handler attributes and
// javascript: URLs never survive.
func htmlPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.NewPolicy()
		p.AllowElements(
			"p", "br", "hr", "div", "span", "b", "strong", "i", "em", "u", "s", "small",
			"sub", "sup", "blockquote", "pre", "code", "ul", "ol", "li",
			"h1", "h2", "h3", "h4", "h5", "h6",
			"table", "thead", "tbody", "tfoot", "tr", "th", "td", "caption",
		)
		p.AllowAttrs("href", "title", "target").OnElements("a")
		p.AllowAttrs("src", "alt", "title", "width", "height").OnElements("img")
		p.AllowAttrs("colspan", "rowspan", "align").OnElements("td", "th")
		p.AllowAttrs("align").OnElements("p", "div", "table", "h1", "h2", "h3", "h4", "h5", "h6")
		p.AllowAttrs("class").Globally()
		p.AllowURLSchemes("http", "https", "mailto", "tel", "cid")
		p.AllowRelativeURLs(true)
		p.RequireParseableURLs(true)
		policy = p
	})
	return policy
}

// SanitizeHTML strips unsafe markup from html. The output is stable: running
// it through SanitizeHTML again yields the same string.
func SanitizeHTML(html string) string {
	if html == "" {
		return ""
	}
	return htmlPolicy().Sanitize(html)
}

// HTMLToText renders markup as plain text for SMS, voice and other text-only
// channels. Block endings and <br> become newlines; entities are decoded.
func HTMLToText(markup string) string {
	if markup == "" {
		return ""
	}
	withBreaks := lineBreaks.ReplaceAllString(markup, "\n")
	text := html.UnescapeString(stripAll.Sanitize(withBreaks))

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	text = blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text)
}
