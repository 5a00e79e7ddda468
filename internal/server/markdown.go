package server

import (
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
)

var markdownPolicy = bluemonday.UGCPolicy()

// renderMarkdown turns model output into HTML safe to embed in the page.
func renderMarkdown(s string) template.HTML {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	unsafe := blackfriday.Run([]byte(s), blackfriday.WithExtensions(blackfriday.CommonExtensions|blackfriday.HardLineBreak))
	return template.HTML(markdownPolicy.SanitizeBytes(unsafe)) // #nosec G203 sanitized above
}
