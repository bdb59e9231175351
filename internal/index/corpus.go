package index

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/net/html"
)

// ErrCorpusMissing means the reference corpus cannot be read. Unlike service
// flakiness this is fatal: the index cannot be built without it.
var ErrCorpusMissing = errors.New("reference corpus missing")

// Document is one corpus record, as stored in the newline-delimited corpus
// file and in the persisted metadata artifact.
type Document struct {
	DocID    string            `json:"doc_id"`
	Source   string            `json:"source"`
	Snippet  string            `json:"snippet"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// LoadCorpus reads a newline-delimited JSON corpus. Records without a source
// default to "KB"; snippets carrying HTML markup are reduced to visible text.
func LoadCorpus(path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorpusMissing, path, err)
	}
	defer func() { _ = f.Close() }()

	var docs []Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var doc Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("corpus line %d: %w", line, err)
		}
		if doc.DocID == "" {
			return nil, fmt.Errorf("corpus line %d: missing doc_id", line)
		}
		if doc.Source == "" {
			doc.Source = "KB"
		}
		if looksLikeHTML(doc.Snippet) {
			doc.Snippet = visibleText(doc.Snippet)
		}
		doc.Snippet = strings.TrimSpace(doc.Snippet)
		if doc.Snippet == "" {
			return nil, fmt.Errorf("corpus line %d: empty snippet", line)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan corpus: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s has no records", ErrCorpusMissing, path)
	}
	return docs, nil
}

func looksLikeHTML(s string) bool {
	open := strings.IndexByte(s, '<')
	if open < 0 {
		return false
	}
	return strings.IndexByte(s[open:], '>') > 0
}

// visibleText strips markup from an HTML fragment, skipping script and
// style subtrees.
func visibleText(fragment string) string {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if buf.Len() > 0 {
					buf.WriteString(" ")
				}
				buf.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return buf.String()
}
