package timeline

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

var documentLinkRe = regexp.MustCompile(`(src|href)=["'][^"']*document\.send\.php\?docid=(\d+)[^"']*["']`)

// DocumentLinker builds portal URLs for backend documents.
type DocumentLinker struct {
	proxyPath string
}

// NewDocumentLinker serves documents under proxyPath.
func NewDocumentLinker(proxyPath string) DocumentLinker {
	proxyPath = strings.TrimRight(proxyPath, "/")
	if proxyPath == "" {
		proxyPath = "/documents"
	}
	return DocumentLinker{proxyPath: proxyPath}
}

// URL returns the proxy location of a document. Inline images cannot send
// headers, so the credential travels in the query.
func (l DocumentLinker) URL(docID int, credential string) string {
	u := l.proxyPath + "/" + strconv.Itoa(docID)
	if credential != "" {
		u += "?session_token=" + url.QueryEscape(credential)
	}
	return u
}

// RenderContent decodes backend HTML entities and points document links at
// the proxy.
func (l DocumentLinker) RenderContent(raw, credential string) string {
	decoded := html.UnescapeString(raw)
	return documentLinkRe.ReplaceAllStringFunc(decoded, func(m string) string {
		parts := documentLinkRe.FindStringSubmatch(m)
		id, err := strconv.Atoi(parts[2])
		if err != nil {
			return m
		}
		return parts[1] + `="` + html.EscapeString(l.URL(id, credential)) + `"`
	})
}
