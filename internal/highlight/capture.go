package highlight

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"branchchat/internal/domain/models"
)

var (
	// ErrEmptySelection is returned when a selection covers no text.
	ErrEmptySelection = errors.New("selection is empty")
	// ErrOutsideRoot is returned for boundary points in another tree.
	ErrOutsideRoot = errors.New("selection boundary is outside the message")
)

// Point is a selection boundary. For a text node Offset counts runes into
// its data; for an element it counts child nodes.
type Point struct {
	Node   *html.Node
	Offset int
}

// Capture converts a selection between two boundary points into plain
// text offsets relative to root. A backwards selection is normalized.
func Capture(root *html.Node, anchor, focus Point) (models.TextSelection, error) {
	start, err := offsetOf(root, anchor)
	if err != nil {
		return models.TextSelection{}, err
	}
	end, err := offsetOf(root, focus)
	if err != nil {
		return models.TextSelection{}, err
	}
	if end < start {
		start, end = end, start
	}
	if start == end {
		return models.TextSelection{}, ErrEmptySelection
	}

	text := []rune(PlainText(root))
	return models.TextSelection{
		SelectedText:  string(text[start:end]),
		StartPosition: start,
		EndPosition:   end,
	}, nil
}

// SelectText selects the first occurrence of text in the plain text of
// root.
func SelectText(root *html.Node, text string) (models.TextSelection, error) {
	if text == "" {
		return models.TextSelection{}, ErrEmptySelection
	}
	plain := PlainText(root)
	i := strings.Index(plain, text)
	if i < 0 {
		return models.TextSelection{}, fmt.Errorf("%q does not occur in the message", text)
	}
	start := utf8.RuneCountInString(plain[:i])
	return models.TextSelection{
		SelectedText:  text,
		StartPosition: start,
		EndPosition:   start + utf8.RuneCountInString(text),
	}, nil
}

// offsetOf sums the text lengths that precede p in document order.
func offsetOf(root *html.Node, p Point) (int, error) {
	if p.Node == nil || !contains(root, p.Node) {
		return 0, ErrOutsideRoot
	}

	if p.Node.Type == html.TextNode {
		for _, r := range runs(root) {
			if r.node == p.Node {
				return r.start + clamp(p.Offset, 0, r.end-r.start), nil
			}
		}
		return 0, ErrOutsideRoot
	}

	// The boundary sits before child number Offset, or at the end of the
	// element when there is no such child.
	boundary := p.Node.FirstChild
	for i := 0; i < p.Offset && boundary != nil; i++ {
		boundary = boundary.NextSibling
	}

	pos := 0
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if boundary != nil && n == boundary {
			return true
		}
		if n.Type == html.TextNode {
			pos += utf8.RuneCountInString(n.Data)
			return false
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return boundary == nil && n == p.Node
	}
	walk(root)
	return pos, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
