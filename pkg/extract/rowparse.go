package extract

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// rowInfo is the metadata recoverable from one file row's markup.
type rowInfo struct {
	Name string
	Href string
}

// nameMarkers flag elements carrying the display name. Matched against
// class, id and data-testid attribute values.
var nameMarkers = []string{"asset-name", "file-name", "name"}

// urlAttrs carry a direct asset link on rows without an anchor.
var urlAttrs = []string{"data-url", "data-href", "data-download-url"}

// parseRow recovers a file name and source link from one row's innerHTML.
// Name resolution order: marked name element, then the row's aria-label,
// then the first text node. Table rows are parsed against a table context
// or the parser would drop the tr/td elements entirely.
func parseRow(fragment string) (rowInfo, error) {
	trimmed := strings.TrimSpace(fragment)
	if trimmed == "" {
		return rowInfo{}, nil
	}

	nodes, err := html.ParseFragment(strings.NewReader(trimmed), fragmentContext(trimmed))
	if err != nil {
		return rowInfo{}, fmt.Errorf("parsing row markup: %w", err)
	}

	var info rowInfo
	var ariaLabel, firstText string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedRowElement(n.Data) {
			return
		}
		if n.Type == html.ElementNode {
			if info.Href == "" {
				info.Href = linkFrom(n)
			}
			if info.Name == "" && isNameElement(n) {
				info.Name = strings.TrimSpace(textContent(n))
			}
			if ariaLabel == "" {
				ariaLabel = strings.TrimSpace(attrValue(n, "aria-label"))
			}
		}
		if n.Type == html.TextNode && firstText == "" {
			firstText = strings.TrimSpace(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}

	if info.Name == "" {
		info.Name = ariaLabel
	}
	if info.Name == "" {
		info.Name = firstText
	}
	return info, nil
}

// fragmentContext picks the parse context node. tr and td fragments only
// survive parsing inside their table parents.
func fragmentContext(fragment string) *html.Node {
	lower := strings.ToLower(fragment)
	switch {
	case strings.HasPrefix(lower, "<tr"):
		return &html.Node{Type: html.ElementNode, DataAtom: atom.Tbody, Data: "tbody"}
	case strings.HasPrefix(lower, "<td"), strings.HasPrefix(lower, "<th"):
		return &html.Node{Type: html.ElementNode, DataAtom: atom.Tr, Data: "tr"}
	default:
		return &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}
	}
}

func skippedRowElement(tagName string) bool {
	switch strings.ToLower(tagName) {
	case "script", "style", "noscript", "svg", "template":
		return true
	}
	return false
}

// linkFrom returns an anchor href or a link-bearing data attribute.
func linkFrom(n *html.Node) string {
	if strings.EqualFold(n.Data, "a") {
		if href := attrValue(n, "href"); href != "" && !strings.HasPrefix(href, "#") {
			return href
		}
		return ""
	}
	for _, key := range urlAttrs {
		if v := attrValue(n, key); v != "" {
			return v
		}
	}
	return ""
}

// isNameElement reports whether the element is marked as the name cell.
func isNameElement(n *html.Node) bool {
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		if key != "class" && key != "id" && key != "data-testid" && key != "data-test" {
			continue
		}
		val := strings.ToLower(attr.Val)
		for _, marker := range nameMarkers {
			if strings.Contains(val, marker) {
				return true
			}
		}
	}
	return false
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if strings.EqualFold(attr.Key, key) {
			return attr.Val
		}
	}
	return ""
}

// textContent concatenates the trimmed text nodes of a subtree.
func textContent(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && skippedRowElement(node.Data) {
			return
		}
		if node.Type == html.TextNode {
			if text := strings.TrimSpace(node.Data); text != "" {
				parts = append(parts, text)
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}
