package ingest

import (
	"bytes"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var plainContentTypes = []string{"text/markdown", "text/x-markdown", "text/plain"}

var plainExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".rst":      true,
}

// 这些元素属于页面框架，不进入正文
var skipElements = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Nav:      true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Footer:   true,
	atom.Header:   true,
	atom.Aside:    true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Form:     true,
	atom.Iframe:   true,
	atom.Template: true,
}

var headingLevel = map[atom.Atom]int{
	atom.H1: 1, atom.H2: 2, atom.H3: 3, atom.H4: 4, atom.H5: 5, atom.H6: 6,
}

var spaceRe = regexp.MustCompile(`\s+`)

// IsPlainText 判断是否可直接作为 markdown/纯文本使用
func IsPlainText(contentType, rawURL string) bool {
	ct := strings.ToLower(contentType)
	for _, t := range plainContentTypes {
		if strings.HasPrefix(ct, t) {
			return true
		}
	}
	if strings.Contains(ct, "html") {
		return false
	}
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return plainExtensions[strings.ToLower(path.Ext(p))]
}

// Extract 把抓取结果转为正文文本
func Extract(doc *Document) (string, error) {
	if IsPlainText(doc.ContentType, doc.URL) {
		return strings.TrimSpace(string(doc.Body)), nil
	}
	return HTMLToMarkdown(doc.Body)
}

// HTMLToMarkdown 把 HTML 归约为结构化 markdown：标题、段落、列表项、代码块、引用
func HTMLToMarkdown(body []byte) (string, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	start := findFirst(root, atom.Main)
	if start == nil {
		start = findFirst(root, atom.Article)
	}
	if start == nil {
		start = root
	}

	w := &mdWriter{}
	w.walk(start)
	w.flush()
	return strings.Join(w.blocks, "\n\n"), nil
}

type mdWriter struct {
	blocks []string
	inline strings.Builder
}

func (w *mdWriter) emit(block string) {
	if strings.TrimSpace(block) != "" {
		w.blocks = append(w.blocks, block)
	}
}

func (w *mdWriter) flush() {
	text := collapse(w.inline.String())
	w.inline.Reset()
	w.emit(text)
}

func (w *mdWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.inline.WriteString(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if skipElements[n.DataAtom] {
			return
		}
		if level, ok := headingLevel[n.DataAtom]; ok {
			w.flush()
			if text := collapse(inlineText(n)); text != "" {
				w.emit(strings.Repeat("#", level) + " " + text)
			}
			return
		}
		switch n.DataAtom {
		case atom.P:
			w.flush()
			w.emit(collapse(inlineText(n)))
			return
		case atom.Li:
			w.flush()
			if text := collapse(inlineText(n)); text != "" {
				w.emit("- " + text)
			}
			return
		case atom.Pre:
			w.flush()
			code := strings.Trim(textContent(n), "\n")
			if strings.TrimSpace(code) != "" {
				w.emit("```\n" + code + "\n```")
			}
			return
		case atom.Blockquote:
			w.flush()
			text := collapse(inlineText(n))
			if text != "" {
				w.emit("> " + text)
			}
			return
		case atom.Br:
			w.inline.WriteString(" ")
			return
		case atom.Div, atom.Section, atom.Ul, atom.Ol, atom.Table, atom.Tr, atom.Body,
			atom.Main, atom.Article, atom.Dl, atom.Dt, atom.Dd, atom.Figure, atom.Tbody:
			w.flush()
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				w.walk(c)
			}
			w.flush()
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

// textContent 原样拼接文本，保留空白（用于 pre）
func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		if n.Type == html.ElementNode && skipElements[n.DataAtom] {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// inlineText 行内文本，<code> 用反引号包裹
func inlineText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
			return
		case n.Type == html.ElementNode && skipElements[n.DataAtom]:
			return
		case n.Type == html.ElementNode && n.DataAtom == atom.Code:
			b.WriteString("`" + collapse(textContent(n)) + "`")
			return
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			b.WriteString(" ")
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapse(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
