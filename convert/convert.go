// Package convert turns task descriptions written in reStructuredText into HTML
// and extracts plain text and links from that HTML.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// FailureMessage replaces a description whose conversion failed
const FailureMessage = "An error occurs during conversion from RST TO Markdown : please retry or give up"

// Pandoc converts RST to HTML5 with the pandoc binary
type Pandoc struct {
	path    string
	timeout time.Duration
}

// NewPandoc creates a converter; an empty path means "pandoc" from PATH
func NewPandoc(path string, timeout time.Duration) *Pandoc {
	if path == "" {
		path = "pandoc"
	}
	return &Pandoc{path: path, timeout: timeout}
}

// Convert renders rst as HTML5 without syntax highlighting
func (p *Pandoc) Convert(ctx context.Context, rst string) (string, error) {
	if strings.TrimSpace(rst) == "" {
		return "", nil
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p.path, "--from=rst", "--to=html5", "--no-highlight")
	cmd.Stdin = strings.NewReader(rst)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pandoc failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}

// PlainText returns the visible text of an HTML fragment, whitespace collapsed
func PlainText(fragment string) string {
	nodes, err := parseFragment(fragment)
	if err != nil {
		return ""
	}

	var parts []string
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				parts = append(parts, text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	for _, n := range nodes {
		f(n)
	}

	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// Links returns the href of every anchor and the src of every image, in document order
func Links(fragment string) []string {
	nodes, err := parseFragment(fragment)
	if err != nil {
		return nil
	}

	var links []string
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode {
			key := ""
			switch n.Data {
			case "a":
				key = "href"
			case "img":
				key = "src"
			}
			for _, attr := range n.Attr {
				if key != "" && attr.Key == key && attr.Val != "" {
					links = append(links, attr.Val)
					break
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	for _, n := range nodes {
		f(n)
	}
	return links
}

func parseFragment(fragment string) ([]*html.Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	return html.ParseFragment(strings.NewReader(fragment), body)
}
