package normalizer

import (
	"strings"

	"golang.org/x/net/html"
)

// StripMarkup decodes HTML entities and removes markup, turning line and
// paragraph breaks into spaces and collapsing whitespace.
func StripMarkup(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	decoded := html.UnescapeString(s)

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(decoded))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "br", "p", "div", "li":
				b.WriteByte(' ')
			}
		}
	}
}

// DecodeEntities unescapes HTML entities without touching markup.
func DecodeEntities(s string) string {
	return html.UnescapeString(s)
}
