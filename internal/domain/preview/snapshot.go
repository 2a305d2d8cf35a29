package preview

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var snapshotPolicy = bluemonday.UGCPolicy()

// Sanitize renders the children of n through the UGC policy
func Sanitize(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return ""
		}
	}
	return strings.TrimSpace(snapshotPolicy.Sanitize(buf.String()))
}
