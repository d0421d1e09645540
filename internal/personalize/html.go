package personalize

import (
	"html"
	"strings"
)

// BuildHTML wraps personalized text in a minimal email body with a closing
// block naming the store. Newlines become <br>.
func BuildHTML(text, storeName, signature string) string {
	if strings.TrimSpace(storeName) == "" {
		storeName = DefaultStoreName
	}
	if strings.TrimSpace(signature) == "" {
		signature = "The " + storeName + " Team"
	}
	body := strings.ReplaceAll(html.EscapeString(text), "\n", "<br>")

	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;line-height:1.5;color:#333">`)
	b.WriteString(`<div style="max-width:600px;margin:0 auto;padding:20px">`)
	b.WriteString(`<p>`)
	b.WriteString(body)
	b.WriteString(`</p>`)
	b.WriteString(`<hr style="border:none;border-top:1px solid #eee">`)
	b.WriteString(`<p style="font-size:14px;color:#666">Best regards,<br>`)
	b.WriteString(html.EscapeString(signature))
	b.WriteString(`<br>`)
	b.WriteString(html.EscapeString(storeName))
	b.WriteString(`</p></div></body></html>`)
	return b.String()
}
