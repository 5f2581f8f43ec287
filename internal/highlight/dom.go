// Package highlight maps text selections in rendered messages to plain
// text offsets and back. Offsets count characters (runes) of the
// concatenated text nodes, ignoring markup.
package highlight

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var policy = bluemonday.UGCPolicy()

// Parse sanitizes markup and returns it as the children of a detached
// <div> root.
func Parse(markup string) (*html.Node, error) {
	clean := policy.Sanitize(markup)
	root := newElement(atom.Div)
	nodes, err := html.ParseFragment(strings.NewReader(clean), newElement(atom.Div))
	if err != nil {
		return nil, fmt.Errorf("parse message markup: %w", err)
	}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return root, nil
}

// FromText renders plain message content: one <p> per paragraph, split on
// blank lines.
func FromText(content string) *html.Node {
	root := newElement(atom.Div)
	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		p := newElement(atom.P)
		p.AppendChild(&html.Node{Type: html.TextNode, Data: para})
		root.AppendChild(p)
	}
	return root
}

// Render serializes the children of root.
func Render(root *html.Node) (string, error) {
	var buf bytes.Buffer
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// PlainText concatenates the text nodes under root.
func PlainText(root *html.Node) string {
	var sb strings.Builder
	for _, t := range textNodes(root) {
		sb.WriteString(t.Data)
	}
	return sb.String()
}

// Normalize merges adjacent text nodes and drops empty ones.
func Normalize(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch {
		case c.Type == html.TextNode && c.Data == "":
			n.RemoveChild(c)
		case c.Type == html.TextNode:
			for next != nil && next.Type == html.TextNode {
				c.Data += next.Data
				after := next.NextSibling
				n.RemoveChild(next)
				next = after
			}
		default:
			Normalize(c)
		}
		c = next
	}
}

// CountNodes counts root and every node below it.
func CountNodes(root *html.Node) int {
	n := 1
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		n += CountNodes(c)
	}
	return n
}

type textRun struct {
	node  *html.Node
	start int
	end   int
}

func textNodes(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

// runs lists the text nodes under root with their [start,end) offsets.
func runs(root *html.Node) []textRun {
	nodes := textNodes(root)
	out := make([]textRun, 0, len(nodes))
	pos := 0
	for _, n := range nodes {
		l := utf8.RuneCountInString(n.Data)
		out = append(out, textRun{node: n, start: pos, end: pos + l})
		pos += l
	}
	return out
}

func newElement(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func contains(root, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == root {
			return true
		}
	}
	return false
}
