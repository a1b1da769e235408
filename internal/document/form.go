package document

import (
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

var ErrNoFormFound = errors.New("no form matches the locator")

type Field struct {
	Name  string
	Value string
}

// FieldSet is the ordered name/value state a browser would submit for a form.
// Order is inputs, then selects, then textareas, each group in document order,
// and must be preserved: url.Values would sort the keys on encoding.
type FieldSet []Field

// Get returns the value of the first field with the given name.
func (fs FieldSet) Get(name string) (string, bool) {
	for _, f := range fs {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Set replaces the value of the first field with the given name, or appends a
// new field when none exists. The receiver is not modified.
func (fs FieldSet) Set(name, value string) FieldSet {
	out := make(FieldSet, len(fs))
	copy(out, fs)
	for i, f := range out {
		if f.Name == name {
			out[i].Value = value
			return out
		}
	}
	return append(out, Field{Name: name, Value: value})
}

// Encode serializes the fields as application/x-www-form-urlencoded in field
// order. url.Values is unsuitable here since its Encode sorts by key.
func (fs FieldSet) Encode() string {
	var b strings.Builder
	for i, f := range fs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(f.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f.Value))
	}
	return b.String()
}

// ExtractFormState computes the current field values of the form matched by
// formLocator, the way a browser would serialize it on submit:
//   - input fields: submit/reset/image are skipped, radio/checkbox only count
//     when checked, disabled fields are never submitted, everything else needs
//     both a name and a value attribute;
//   - select fields: the first option flagged selected wins, otherwise the
//     first option; a select without options is skipped with a warning;
//   - textareas: the text content, even when empty.
//
// When several forms match, the first in document order is used; the rest are
// ignored. Multi-valued selects are unsupported.
func ExtractFormState(doc *Document, formLocator string) (FieldSet, error) {
	forms, err := doc.QueryNodes(formLocator)
	if err != nil {
		return nil, err
	}
	if len(forms) == 0 {
		return nil, ErrNoFormFound
	}
	if len(forms) > 1 {
		slog.Debug("form locator matched multiple forms. using the first one.",
			slog.String("locator", formLocator), slog.Int("matches", len(forms)))
	}
	form := forms[0]

	var out FieldSet
	for _, node := range htmlquery.Find(form, "descendant::input") {
		if typ, ok := attr(node, "type"); ok {
			switch typ {
			case "submit", "reset", "image":
				// fire only on user interaction
				continue
			case "radio", "checkbox":
				if _, checked := attr(node, "checked"); !checked {
					continue
				}
			}
		}
		if _, disabled := attr(node, "disabled"); disabled {
			continue
		}
		name, hasName := attr(node, "name")
		value, hasValue := attr(node, "value")
		if hasName && hasValue {
			out = append(out, Field{Name: name, Value: value})
		}
	}

	for _, node := range htmlquery.Find(form, "descendant::select") {
		name, ok := attr(node, "name")
		if !ok {
			continue
		}
		options := htmlquery.Find(node, "option")
		if len(options) == 0 {
			slog.Warn("select field has no options. skipping.", slog.String("name", name))
			continue
		}
		value, ok := selectValue(options)
		if !ok {
			slog.Warn("select field has no option with a value. skipping.", slog.String("name", name))
			continue
		}
		out = append(out, Field{Name: name, Value: value})
	}

	for _, node := range htmlquery.Find(form, "descendant::textarea") {
		if name, ok := attr(node, "name"); ok {
			out = append(out, Field{Name: name, Value: htmlquery.InnerText(node)})
		}
	}

	return out, nil
}

// selectValue picks the value of the first selected option, falling back to
// the first option in document order that carries a value attribute.
func selectValue(options []*html.Node) (string, bool) {
	for _, opt := range options {
		if _, selected := attr(opt, "selected"); !selected {
			continue
		}
		if value, ok := attr(opt, "value"); ok {
			return value, true
		}
	}
	for _, opt := range options {
		if value, ok := attr(opt, "value"); ok {
			return value, true
		}
	}
	return "", false
}

func attr(node *html.Node, name string) (string, bool) {
	for _, a := range node.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}
