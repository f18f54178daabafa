// internal/app/system/htmlsanitize/htmlsanitize.go
package htmlsanitize

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	richOnce   sync.Once
	richPolicy *bluemonday.Policy

	strictPolicy = bluemonday.StrictPolicy()
)

// policy allows the light formatting clerks paste into resolution text:
// paragraphs, emphasis, lists, tables and plain links.
func policy() *bluemonday.Policy {
	richOnce.Do(func() {
		p := bluemonday.NewPolicy()
		p.AllowElements("p", "br", "hr", "strong", "b", "em", "i", "u", "s",
			"sub", "sup", "blockquote", "ul", "ol", "li", "pre", "code",
			"table", "thead", "tbody", "tr", "th", "td")
		p.AllowAttrs("colspan", "rowspan").OnElements("th", "td")
		p.AllowStandardURLs()
		p.AllowAttrs("href").OnElements("a")
		p.RequireNoFollowOnLinks(true)
		richPolicy = p
	})
	return richPolicy
}

// Sanitize cleans rich resolution text.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(policy().Sanitize(s))
}

// StripTags removes all markup. Used for comments and notes, which are
// stored as plain text.
func StripTags(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(strictPolicy.Sanitize(s))
}
