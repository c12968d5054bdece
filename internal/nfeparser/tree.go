package nfeparser

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ctxCheckEvery is how many tokens are read between context checks.
const ctxCheckEvery = 256

// Node is one element of a parsed document. Names of elements and attributes
// are stored normalized (see normalizeName), and every accessor is safe to call
// on a nil *Node, so lookups can be chained without intermediate checks.
type Node struct {
	Name     string
	Attrs    map[string]string
	Children []*Node

	text strings.Builder
}

// Text returns the element's character data, trimmed.
func (n *Node) Text() string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.text.String())
}

// Child returns the first child element called name.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	want := normalizeName(name)
	for _, c := range n.Children {
		if c.Name == want {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns every child element called name, in document order.
func (n *Node) ChildrenNamed(name string) []*Node {
	if n == nil {
		return nil
	}
	want := normalizeName(name)
	var out []*Node
	for _, c := range n.Children {
		if c.Name == want {
			out = append(out, c)
		}
	}
	return out
}

// Path follows a chain of first-child lookups.
func (n *Node) Path(names ...string) *Node {
	cur := n
	for _, name := range names {
		cur = cur.Child(name)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Value returns the trimmed text found at the given path, or "".
func (n *Node) Value(names ...string) string {
	return n.Path(names...).Text()
}

// Attr returns the attribute called name, or "".
func (n *Node) Attr(name string) string {
	if n == nil || n.Attrs == nil {
		return ""
	}
	return strings.TrimSpace(n.Attrs[normalizeName(name)])
}

// =============================================================================
// TREE BUILDER
// =============================================================================

// parseTree reads a whole XML document into a Node tree rooted at a synthetic
// document node. The context is checked while tokenizing so a caller deadline
// bounds the work done on hostile input.
func parseTree(ctx context.Context, r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = true
	dec.CharsetReader = charset.NewReaderLabel

	doc := &Node{Name: "#document"}
	stack := []*Node{doc}
	count := 0

	for {
		count++
		if count%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			node := &Node{Name: normalizeName(t.Name.Local)}
			if len(t.Attr) > 0 {
				node.Attrs = make(map[string]string, len(t.Attr))
				for _, a := range t.Attr {
					if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
						continue
					}
					node.Attrs[normalizeName(a.Name.Local)] = a.Value
				}
			}
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, node)
			stack = append(stack, node)

		case xml.EndElement:
			stack = stack[:len(stack)-1]

		case xml.CharData:
			stack[len(stack)-1].text.Write(t)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("unexpected end of document inside <%s>", stack[len(stack)-1].Name)
	}
	if len(doc.Children) == 0 {
		return nil, errors.New("document has no root element")
	}
	return doc, nil
}

// normalizeName lowercases a tag or attribute name and strips diacritics, so
// "infNFe", "INFNFE" and "infNFé" all compare equal.
func normalizeName(s string) string {
	if isASCII(s) {
		return strings.ToLower(s)
	}
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		s,
	)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
