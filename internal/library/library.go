// Package library turns Markdown and HTML files into narration entries.
package library

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/dgnsrekt/narrate/internal/narration"
	"github.com/dgnsrekt/narrate/internal/storage"
	"github.com/google/uuid"
	"github.com/muesli/gitcha"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// Extensions are the file patterns narrate can read.
var Extensions = []string{
	"*.md", "*.mdown", "*.mkdn", "*.mkd", "*.markdown", "*.html", "*.htm",
}

// Document is an article read from disk.
type Document struct {
	ID      string
	Title   string
	Source  string
	Summary string
	Path    string
	Content string
}

// Entry returns the document as an engine entry.
func (d Document) Entry() narration.Entry {
	return narration.Entry{
		ID:      d.ID,
		Title:   d.Title,
		Source:  d.Source,
		Summary: d.Summary,
		Content: d.Content,
	}
}

// Record returns the document as a library row.
func (d Document) Record() storage.Entry {
	return storage.Entry{
		ID:      d.ID,
		Title:   d.Title,
		Source:  d.Source,
		Summary: d.Summary,
		Path:    d.Path,
	}
}

type frontMatter struct {
	Title   string `yaml:"title"`
	Source  string `yaml:"source"`
	Summary string `yaml:"summary"`
}

var (
	frontMatterRe = regexp.MustCompile(`(?s)\A---\r?\n(.*?)\r?\n---\r?\n?`)
	htmlTitleRe   = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	htmlHeadingRe = regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`)
	tagRe         = regexp.MustCompile(`<[^>]*>`)
)

// ID derives a stable article id from a path.
func ID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(path))).String()
}

// IsSupported reports whether path has a readable extension.
func IsSupported(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	for _, pat := range Extensions {
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
	}
	return false
}

func isHTML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".html" || ext == ".htm"
}

// Load reads and parses the file at path.
func Load(path string) (Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("unable to read %s: %w", path, err)
	}
	return Parse(path, b), nil
}

// Parse builds a Document from raw file contents. The title is the
// front-matter title, the first heading, the HTML <title>, or the file name,
// in that order. The source is the front-matter source or the parent
// directory name.
func Parse(path string, raw []byte) Document {
	var fm frontMatter
	body := raw
	if m := frontMatterRe.FindSubmatchIndex(raw); m != nil {
		if err := yaml.Unmarshal(raw[m[2]:m[3]], &fm); err == nil {
			body = raw[m[1]:]
		}
	}

	d := Document{
		ID:      ID(path),
		Title:   strings.TrimSpace(fm.Title),
		Source:  strings.TrimSpace(fm.Source),
		Summary: strings.TrimSpace(fm.Summary),
		Path:    path,
		Content: string(bytes.TrimSpace(body)),
	}

	if d.Title == "" {
		if isHTML(path) {
			d.Title = htmlTitle(body)
		} else {
			d.Title = markdownTitle(body)
		}
	}
	if d.Title == "" {
		d.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if d.Source == "" {
		if abs, err := filepath.Abs(path); err == nil {
			d.Source = filepath.Base(filepath.Dir(abs))
		}
	}
	return d
}

func markdownTitle(src []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))
	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		var b strings.Builder
		lines := h.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(src))
		}
		title = strings.TrimSpace(b.String())
		return ast.WalkStop, nil
	})
	return title
}

func htmlTitle(src []byte) string {
	for _, re := range []*regexp.Regexp{htmlTitleRe, htmlHeadingRe} {
		if m := re.FindSubmatch(src); m != nil {
			t := tagRe.ReplaceAllString(string(m[1]), "")
			t = strings.Join(strings.Fields(html.UnescapeString(t)), " ")
			if t != "" {
				return t
			}
		}
	}
	return ""
}

// Find returns the readable files under each argument. Plain file arguments
// are returned as given; directories are searched recursively, honoring
// .gitignore.
func Find(args ...string) ([]string, error) {
	var paths []string
	seen := map[string]bool{}
	add := func(p string) {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("unable to stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			add(arg)
			continue
		}

		ch, err := gitcha.FindFilesExcept(arg, Extensions, nil)
		if err != nil {
			return nil, fmt.Errorf("unable to search %s: %w", arg, err)
		}
		var found []string
		for res := range ch {
			found = append(found, res.Path)
		}
		sort.Strings(found)
		for _, p := range found {
			add(p)
		}
	}
	return paths, nil
}

// LoadAll finds and loads every document under args.
func LoadAll(args ...string) ([]Document, error) {
	paths, err := Find(args...)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(paths))
	for _, p := range paths {
		d, err := Load(p)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}
