// Package normalize turns raw article text (HTML, Markdown, or a mix of both)
// into plain prose suitable for narration.
package normalize

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/unicode/norm"
)

var (
	urlPattern      = regexp.MustCompile(`(?i)\b(?:https?|ftp)://[^\s<>()]+|\bwww\.[^\s<>()]+`)
	emailPattern    = regexp.MustCompile(`[\p{L}\p{N}._%+-]+@[\p{L}\p{N}.-]+\.\p{L}{2,}`)
	hashtagPattern  = regexp.MustCompile(`(^|\s)#[\p{L}\p{N}_]+`)
	entityPattern   = regexp.MustCompile(`&(?:[a-zA-Z][a-zA-Z0-9]*|#[0-9]+|#[xX][0-9a-fA-F]+);?`)
	residualMarkup  = regexp.MustCompile("[*_~`|>#]+")
	emptyBrackets   = regexp.MustCompile(`\(\s*\)|\[\s*\]`)
	spaceBeforePunc = regexp.MustCompile(` +([.,;:!?])`)
	repeatedPeriods = regexp.MustCompile(`([!?,;:])\.+|\.{2,}`)
	whitespace      = regexp.MustCompile(`[\s\p{Z}]+`)
	sentenceBreak   = regexp.MustCompile(`([.!?]) (\p{Lu}|\p{N}|["'“‘(])`)
	clauseBreak     = regexp.MustCompile(`[;:] `)
	markupTag       = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9]*(?:\s[^>]*)?/?>`)
	lineIndent      = regexp.MustCompile(`(?m)^[ \t]+`)
	blockEnd        = regexp.MustCompile(`(?i)<br\s*/?>|<hr\b[^>]*>|</(?:p|div|h[1-6]|li|dt|dd|tr|blockquote|pre|section|article|header|footer|aside|ul|ol|dl|table|figure|figcaption)\s*>`)
)

// SentencePause is inserted after a sentence-ending mark.
const SentencePause = " ..."

// abbreviations never end a sentence.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true, "sr": true,
	"jr": true, "st": true, "vs": true, "etc": true, "inc": true, "ltd": true,
	"no": true, "fig": true, "e.g": true, "i.e": true, "u.s": true, "jan": true,
	"feb": true, "mar": true, "apr": true, "aug": true, "sep": true, "sept": true,
	"oct": true, "nov": true, "dec": true,
}

// Normalizer converts markup into narration-ready prose. It is safe for
// concurrent use.
type Normalizer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// New creates a Normalizer.
func New() *Normalizer {
	policy := bluemonday.StrictPolicy()
	policy.AddSpaceWhenStrippingTag(true)
	return &Normalizer{
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy: policy,
	}
}

var std = New()

// Text normalizes raw with the package-level Normalizer.
func Text(raw string) string {
	return std.Text(raw)
}

// Text strips markup, links, hashtags, emails and entities from raw, collapses
// whitespace and inserts pause cues.
func (n *Normalizer) Text(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	s := norm.NFKC.String(raw)
	s = strings.ReplaceAll(s, "\r\n", "\n")

	// HTML first. Block ends become paragraph breaks so each block reads
	// as its own sentence. The strict policy then drops every tag, along
	// with the bodies of script and style elements, and escapes the rest.
	// Indentation left by nested markup would otherwise parse as a code
	// block below.
	isHTML := markupTag.MatchString(s)
	if isHTML {
		s = blockEnd.ReplaceAllString(s, "${0}\n\n")
	}
	s = n.policy.Sanitize(s)
	if isHTML {
		s = lineIndent.ReplaceAllString(s, "")
	}
	s = html.UnescapeString(s)

	s = n.markdownToText(s)

	s = urlPattern.ReplaceAllString(s, "")
	s = emailPattern.ReplaceAllString(s, "")
	s = hashtagPattern.ReplaceAllString(s, "$1")
	s = entityPattern.ReplaceAllString(s, " ")
	s = residualMarkup.ReplaceAllString(s, " ")
	s = emptyBrackets.ReplaceAllString(s, " ")

	s = whitespace.ReplaceAllString(s, " ")
	s = spaceBeforePunc.ReplaceAllString(s, "$1")
	s = repeatedPeriods.ReplaceAllStringFunc(s, func(m string) string {
		return m[:1]
	})
	s = strings.TrimLeft(strings.TrimSpace(s), ".,;: ")

	return addPauses(s)
}

// markdownToText renders the plain text of a Markdown document.
func (n *Normalizer) markdownToText(markdown string) string {
	reader := text.NewReader([]byte(markdown))
	doc := n.md.Parser().Parse(reader)

	var buf strings.Builder
	walkNode(doc, reader.Source(), &buf)
	return buf.String()
}

// walkNode recursively walks the AST and extracts text content.
func walkNode(node ast.Node, source []byte, buf *strings.Builder) {
	switch n := node.(type) {
	case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock, *ast.RawHTML,
		*ast.ThematicBreak, *ast.AutoLink, *ast.Image, *east.TaskCheckBox:
		return

	case *ast.Text:
		buf.Write(n.Segment.Value(source))
		if n.SoftLineBreak() || n.HardLineBreak() {
			buf.WriteByte(' ')
		}
		return

	case *ast.String:
		buf.Write(n.Value)
		return

	case *ast.CodeSpan:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
			}
		}
		return

	case *ast.Heading, *ast.Paragraph, *ast.TextBlock, *ast.ListItem, *east.TableRow, *east.TableHeader:
		walkChildren(n, source, buf)
		endSentence(buf)
		return

	case *east.TableCell:
		walkChildren(n, source, buf)
		buf.WriteString(", ")
		return
	}

	walkChildren(node, source, buf)
}

func walkChildren(node ast.Node, source []byte, buf *strings.Builder) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		walkNode(c, source, buf)
	}
}

// endSentence terminates the text written so far with a period unless it
// already ends in sentence or clause punctuation.
func endSentence(buf *strings.Builder) {
	content := strings.TrimRight(buf.String(), " ,")
	if content == "" {
		return
	}
	if len(content) != buf.Len() {
		buf.Reset()
		buf.WriteString(content)
	}
	last, _ := utf8.DecodeLastRuneInString(content)
	switch last {
	case '.', '!', '?', ':', ';':
		buf.WriteByte(' ')
	default:
		buf.WriteString(". ")
	}
}

// addPauses inserts SentencePause after sentence ends and turns clause
// separators into commas.
func addPauses(s string) string {
	s = clauseBreak.ReplaceAllString(s, ", ")
	if strings.HasSuffix(s, ":") || strings.HasSuffix(s, ";") {
		s = s[:len(s)-1] + "."
	}

	matches := sentenceBreak.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	prev := 0
	for _, m := range matches {
		// m[2]:m[3] is the punctuation mark.
		end := m[3]
		b.WriteString(s[prev:end])
		if s[m[2]] != '.' || !isAbbreviation(s[:m[2]]) {
			b.WriteString(SentencePause)
		}
		prev = end
	}
	b.WriteString(s[prev:])
	return b.String()
}

// isAbbreviation reports whether the word ending s is a known abbreviation
// or a single letter initial.
func isAbbreviation(s string) bool {
	i := strings.LastIndexFunc(s, unicode.IsSpace)
	word := strings.ToLower(s[i+1:])
	word = strings.TrimLeft(word, `"'(“‘`)
	if utf8.RuneCountInString(word) == 1 {
		r, _ := utf8.DecodeRuneInString(word)
		return unicode.IsLetter(r)
	}
	return abbreviations[word]
}
