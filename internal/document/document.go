package document

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// ErrorKind classifies document-level failures.
type ErrorKind int

const (
	MalformedHtml ErrorKind = iota
	InvalidQuery
	UnexpectedSchema
	InvalidUrl
)

func (k ErrorKind) String() string {
	return [...]string{"malformed html", "invalid query", "unexpected schema", "invalid url"}[k]
}

type ParsingError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *ParsingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parsing error (%s): %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("parsing error (%s): %s", e.Kind, e.Detail)
}

func (e *ParsingError) Unwrap() error {
	return e.Err
}

// Document is a parsed html tree together with the base url against which
// relative links inside it are resolved. The base must be the final response
// url, not the request url, so that resolution survives redirects.
type Document struct {
	root *html.Node
	base *url.URL
	raw  string
}

// Parse builds a Document from a raw html body. Parsing is lenient: partial or
// broken markup still yields a best-effort tree. Only a total parse failure is
// reported as MalformedHtml.
func Parse(body []byte, base *url.URL) (*Document, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &ParsingError{Kind: MalformedHtml, Detail: "failed to parse html", Err: err}
	}
	return &Document{root: root, base: base, raw: string(body)}, nil
}

// BaseURL returns the url relative links are resolved against.
func (d *Document) BaseURL() *url.URL {
	return d.base
}

// HTML returns the raw body the document was parsed from.
func (d *Document) HTML() string {
	return d.raw
}

// QueryNodes evaluates an xpath expression and returns the matching nodes in
// document order. A malformed expression is an InvalidQuery error; an
// expression that matches nothing returns an empty slice.
func (d *Document) QueryNodes(pathExpression string) ([]*html.Node, error) {
	expr, err := xpath.Compile(pathExpression)
	if err != nil {
		return nil, &ParsingError{Kind: InvalidQuery, Detail: pathExpression, Err: err}
	}
	return htmlquery.QuerySelectorAll(d.root, expr), nil
}

// ExtractLinks takes the text content of every node matched by the expression
// as an href and resolves it against the document base. A single unresolvable
// value aborts the whole extraction.
func (d *Document) ExtractLinks(pathExpression string) ([]*url.URL, error) {
	nodes, err := d.QueryNodes(pathExpression)
	if err != nil {
		return nil, err
	}
	links := make([]*url.URL, 0, len(nodes))
	for _, node := range nodes {
		href := htmlquery.InnerText(node)
		link, err := d.base.Parse(href)
		if err != nil {
			return nil, &ParsingError{Kind: InvalidUrl, Detail: href, Err: err}
		}
		links = append(links, link)
	}
	return links, nil
}

// NormalizedText extracts the text of exactly one matching node. Zero or
// multiple matches mean the page does not look like what the caller expects
// and are reported as UnexpectedSchema.
func (d *Document) NormalizedText(pathExpression string) (string, error) {
	nodes, err := d.QueryNodes(pathExpression)
	if err != nil {
		return "", err
	}
	if len(nodes) != 1 {
		return "", &ParsingError{
			Kind:   UnexpectedSchema,
			Detail: fmt.Sprintf("query %q matched %d nodes, want 1", pathExpression, len(nodes)),
		}
	}
	return NormalizeText(htmlquery.InnerText(nodes[0])), nil
}

var (
	horizontalWhitespace = regexp.MustCompile(`[\t\v\f\r ]+`)
	repeatedLinebreaks   = regexp.MustCompile(`(\n\s*){2,}`)
)

// NormalizeText collapses runs of horizontal whitespace to a single space and
// runs of two or more line breaks to one blank line. Idempotent.
func NormalizeText(s string) string {
	s = horizontalWhitespace.ReplaceAllString(s, " ")
	return repeatedLinebreaks.ReplaceAllString(s, "\n\n")
}
