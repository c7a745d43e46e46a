package registry

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func mustParseHTML(t *testing.T, s string) *html.Node {
	t.Helper()
	root, err := html.Parse(strings.NewReader(s))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return root
}
