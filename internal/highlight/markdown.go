package highlight

import (
	"fmt"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Markdown renders a highlighted message for a terminal. Highlighted text
// is marked ==like this== and followed by the short branch id.
func Markdown(root *html.Node) (string, error) {
	markup, err := Render(root)
	if err != nil {
		return "", fmt.Errorf("render message: %w", err)
	}

	conv := md.NewConverter("", true, nil)
	conv.AddRules(md.Rule{
		Filter: []string{"span"},
		Replacement: func(content string, selec *goquery.Selection, _ *md.Options) *string {
			id, ok := selec.Attr(attrBranchID)
			if !ok {
				return nil
			}
			return md.String(fmt.Sprintf("==%s==[%s]", content, shortID(id)))
		},
	})

	out, err := conv.ConvertString(markup)
	if err != nil {
		return "", fmt.Errorf("convert message to markdown: %w", err)
	}
	return out, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
