package parser

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

var (
	policy = newPolicy()

	mdConverter = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
)

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("data-hash", "data-mime", "data-size", "data-loading").OnElements("img", "span", "div")
	p.AllowAttrs("data-checked").OnElements("li", "ul")
	p.AllowDataURIImages()
	return p
}

// Sanitize strips scripts, event handlers and unknown markup from editor HTML
// while keeping the attachment attributes the editor relies on.
func Sanitize(content string) string {
	return policy.Sanitize(content)
}

// Markdown converts editor HTML to CommonMark. Unconvertible content yields
// the plain text instead.
func Markdown(content string) string {
	out, err := mdConverter.ConvertString(content)
	if err != nil || strings.TrimSpace(out) == "" {
		if res, perr := Parse(content); perr == nil {
			return res.Text
		}
		return ""
	}
	return strings.TrimSpace(out)
}
