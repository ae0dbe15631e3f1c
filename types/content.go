package types

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/russross/blackfriday/v2"
	"golang.org/x/net/html"
)

// RenderMarkdown renders markdown source as a single HTML fragment.
// Markdown is processed with the usual extensions and the result is parsed
// and re-rendered with script content and inline event handlers removed,
// since lesson and announcement bodies are shown to every member of a course.
func RenderMarkdown(markdown string) (string, error) {
	if !utf8.ValidString(markdown) {
		return "", fmt.Errorf("markdown source is not valid utf8")
	}

	var extensions blackfriday.Extensions
	extensions |= blackfriday.NoIntraEmphasis
	extensions |= blackfriday.Tables
	extensions |= blackfriday.FencedCode
	extensions |= blackfriday.Autolink
	extensions |= blackfriday.Strikethrough
	extensions |= blackfriday.SpaceHeadings

	raw := blackfriday.Run([]byte(markdown), blackfriday.WithExtensions(extensions))

	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("error parsing rendered markdown: %v", err)
	}
	if doc == nil {
		return "", fmt.Errorf("parsing the HTML yielded a nil document")
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			if c.Type == html.ElementNode && (c.Data == "script" || c.Data == "style") {
				n.RemoveChild(c)
			} else {
				walk(c)
			}
			c = next
		}
		if n.Type == html.ElementNode {
			clean := n.Attr[:0]
			for _, a := range n.Attr {
				if strings.HasPrefix(strings.ToLower(a.Key), "on") {
					continue
				}
				if (a.Key == "href" || a.Key == "src") &&
					strings.HasPrefix(strings.ToLower(strings.TrimSpace(a.Val)), "javascript:") {
					continue
				}
				clean = append(clean, a)
			}
			n.Attr = clean
		}
	}
	walk(doc)

	var buf bytes.Buffer
	if err = html.Render(&buf, doc); err != nil {
		return "", fmt.Errorf("error rendering HTML: %v", err)
	}

	// html.Render wraps the fragment in html/head/body; strip the shell
	out := buf.String()
	if i := strings.Index(out, "<body>"); i >= 0 {
		out = out[i+len("<body>"):]
		if j := strings.LastIndex(out, "</body>"); j >= 0 {
			out = out[:j]
		}
	}
	return out, nil
}

// fix line endings
func fixLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for strings.Contains(s, " \n") {
		s = strings.ReplaceAll(s, " \n", "\n")
	}
	for strings.HasSuffix(s, "\n\n") {
		s = s[:len(s)-1]
	}
	return s
}
