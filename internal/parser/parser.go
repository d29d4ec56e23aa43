// Package parser analyses the HTML emitted by the embedded editor: headline
// text, referenced image hashes, emptiness, placeholder substitution,
// sanitising and Markdown export.
package parser

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HeadlineLength is the number of runes kept for a note headline.
const HeadlineLength = 200

// emptyBodies are the serialisations the editor produces for a blank document.
var emptyBodies = map[string]struct{}{
	"<p></p>":                     {},
	"<p><br></p>":                 {},
	"<p>&nbsp;</p>":               {},
	`<p><br data-mce-bogus="1"></p>`: {},
}

// Result holds the output of parsing editor HTML.
type Result struct {
	Text     string
	Headline string
	Images   []string
}

// Parse extracts plain text, the headline and image hashes from editor HTML.
func Parse(content string) (*Result, error) {
	nodes, err := parseFragment(content)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	var images []string
	seen := make(map[string]struct{})
	for _, n := range nodes {
		walk(n, func(n *html.Node) {
			switch n.Type {
			case html.TextNode:
				text.WriteString(n.Data)
				text.WriteByte(' ')
			case html.ElementNode:
				if n.DataAtom == atom.Img {
					if h := attr(n, "data-hash"); h != "" {
						if _, dup := seen[h]; !dup {
							seen[h] = struct{}{}
							images = append(images, h)
						}
					}
				}
			}
		})
	}

	plain := strings.Join(strings.Fields(text.String()), " ")
	return &Result{
		Text:     plain,
		Headline: truncate(plain, HeadlineLength),
		Images:   images,
	}, nil
}

// Headline returns the first HeadlineLength runes of the text content, or
// empty string when content cannot be parsed.
func Headline(content string) string {
	res, err := Parse(content)
	if err != nil {
		return ""
	}
	return res.Headline
}

// IsEmpty reports whether content is blank or one of the editor's
// blank-document serialisations.
func IsEmpty(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return true
	}
	_, ok := emptyBodies[trimmed]
	return ok
}

// ReplaceImageSources points every <img data-hash> whose hash is in pending at
// asset, so the editor shows a placeholder until the blob is downloaded.
func ReplaceImageSources(content string, pending map[string]bool, asset string) (string, error) {
	if len(pending) == 0 || !strings.Contains(content, "data-hash") {
		return content, nil
	}
	nodes, err := parseFragment(content)
	if err != nil {
		return "", err
	}
	for _, n := range nodes {
		walk(n, func(n *html.Node) {
			if n.Type != html.ElementNode || n.DataAtom != atom.Img {
				return
			}
			if !pending[attr(n, "data-hash")] {
				return
			}
			setAttr(n, "src", asset)
			setAttr(n, "data-loading", "true")
		})
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

func parseFragment(content string) ([]*html.Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	return html.ParseFragment(strings.NewReader(content), body)
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
