package highlight

import (
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"branchchat/internal/domain/models"
)

const (
	attrBranchID   = "data-branch-id"
	attrConnection = "data-connection-type"
	highlightClass = "branch-highlight"
)

var (
	// ErrNoSelection is returned for links created from a whole message.
	ErrNoSelection = errors.New("branch link has no text selection")
	// ErrStaleSelection is returned when the offsets no longer match the
	// rendered text.
	ErrStaleSelection = errors.New("selection does not match the message text")
)

// borderStyle draws attached links solid and detached links dotted.
func borderStyle(c models.ConnectionType) string {
	switch c {
	case models.ConnectionDetached:
		return "dotted"
	case models.ConnectionTemporary:
		return "dashed"
	default:
		return "solid"
	}
}

// Apply wraps the text covered by the link's selection in highlight spans.
// Text nodes that straddle a boundary are split first, so a selection
// across markup produces one span per covered fragment.
func Apply(root *html.Node, link models.BranchLink) error {
	sel, ok := link.Selection()
	if !ok {
		return ErrNoSelection
	}
	text := []rune(PlainText(root))
	if sel.StartPosition < 0 || sel.EndPosition > len(text) || sel.StartPosition >= sel.EndPosition {
		return fmt.Errorf("branch %s: offsets [%d,%d) outside %d characters: %w",
			link.ID, sel.StartPosition, sel.EndPosition, len(text), ErrStaleSelection)
	}
	if got := string(text[sel.StartPosition:sel.EndPosition]); got != sel.SelectedText {
		return fmt.Errorf("branch %s: found %q at [%d,%d): %w",
			link.ID, got, sel.StartPosition, sel.EndPosition, ErrStaleSelection)
	}

	for _, r := range runs(root) {
		from, to := max(sel.StartPosition, r.start), min(sel.EndPosition, r.end)
		if from >= to {
			continue
		}
		wrap(r.node, from-r.start, to-r.start, link)
	}
	return nil
}

// ApplyAll highlights every selection link and returns how many were
// applied. Whole-message links are skipped; stale ones are returned as
// errors after the rest are applied.
func ApplyAll(root *html.Node, links []models.BranchLink) (int, error) {
	applied := 0
	var errs []error
	for _, l := range links {
		err := Apply(root, l)
		switch {
		case err == nil:
			applied++
		case errors.Is(err, ErrNoSelection):
		default:
			errs = append(errs, err)
		}
	}
	return applied, errors.Join(errs...)
}

// wrap splits t into before, highlighted and after fragments and wraps
// the middle one.
func wrap(t *html.Node, from, to int, link models.BranchLink) {
	data := []rune(t.Data)
	parent := t.Parent

	span := newElement(atom.Span)
	span.Attr = []html.Attribute{
		{Key: "class", Val: highlightClass},
		{Key: attrBranchID, Val: link.ID},
		{Key: attrConnection, Val: string(link.ConnectionType)},
		{Key: "style", Val: fmt.Sprintf("border-bottom: 2px %s %s; cursor: pointer", borderStyle(link.ConnectionType), link.ConnectionColor)},
	}
	span.AppendChild(&html.Node{Type: html.TextNode, Data: string(data[from:to])})

	if from > 0 {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: string(data[:from])}, t)
	}
	parent.InsertBefore(span, t)
	if to < len(data) {
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: string(data[to:])}, t)
	}
	parent.RemoveChild(t)
}

// spans finds the highlight spans under root; an empty branchID matches
// all of them.
func spans(root *html.Node, branchID string) *goquery.Selection {
	found := goquery.NewDocumentFromNode(root).Find("span[" + attrBranchID + "]")
	if branchID == "" {
		return found
	}
	return found.FilterFunction(func(_ int, s *goquery.Selection) bool {
		id, _ := s.Attr(attrBranchID)
		return id == branchID
	})
}

// Clear removes the highlights of branchID, or all highlights when
// branchID is empty, and re-normalizes the text nodes. It returns the
// number of spans removed.
func Clear(root *html.Node, branchID string) int {
	found := spans(root, branchID)
	for _, span := range found.Nodes {
		parent := span.Parent
		for c := span.FirstChild; c != nil; c = span.FirstChild {
			span.RemoveChild(c)
			parent.InsertBefore(c, span)
		}
		parent.RemoveChild(span)
	}
	Normalize(root)
	return len(found.Nodes)
}

// Highlights lists the branch ids highlighted under root in document
// order, each once.
func Highlights(root *html.Node) []string {
	var ids []string
	seen := make(map[string]bool)
	spans(root, "").Each(func(_ int, s *goquery.Selection) {
		id, _ := s.Attr(attrBranchID)
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	})
	return ids
}

// Click resolves a click on n. If n lies inside a highlight span under
// root, onClick is called with its branch id and Click reports true.
func Click(root, n *html.Node, onClick func(branchID string)) bool {
	for ; n != nil && n != root; n = n.Parent {
		if n.Type != html.ElementNode || n.DataAtom != atom.Span {
			continue
		}
		if id, ok := attr(n, attrBranchID); ok {
			onClick(id)
			return true
		}
	}
	return false
}
