package docsource

import (
	"net/url"
	"path"
	"strings"
)

// NameFromURL derives a readable document name from a URL: the last path
// segment without its extension, or the host when the path is empty. An
// unparseable URL is returned unchanged.
//
//	https://example.com/specs/auth-flow.md  -> auth-flow
//	https://example.com/                    -> example.com
func NameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}

	segment := path.Base(strings.TrimSuffix(parsed.Path, "/"))
	if segment == "" || segment == "." || segment == "/" {
		return parsed.Host
	}
	if unescaped, err := url.PathUnescape(segment); err == nil {
		segment = unescaped
	}
	if name := strings.TrimSuffix(segment, path.Ext(segment)); name != "" {
		return name
	}
	return segment
}
