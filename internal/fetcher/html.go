package fetcher

import (
	"io"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ExtractTable returns the <td> text of each row of the first <table> carrying
// the given class (any table when class is empty). Rows without <td> cells,
// such as <th> header rows, are skipped. found is false when no such table exists.
func ExtractTable(r io.Reader, class string) (rows [][]string, found bool, err error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, false, eris.Wrap(err, "html: parse")
	}

	table := findElement(doc, atom.Table, class)
	if table == nil {
		return nil, false, nil
	}

	for _, tr := range collect(table, atom.Tr, atom.Table) {
		var cells []string
		for c := tr.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.DataAtom == atom.Td {
				cells = append(cells, nodeText(c))
			}
		}
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	}
	return rows, true, nil
}

// ExtractSelectOptions returns the option labels of the first <select>
// carrying the given class, in document order.
func ExtractSelectOptions(r io.Reader, class string) (options []string, found bool, err error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, false, eris.Wrap(err, "html: parse")
	}

	sel := findElement(doc, atom.Select, class)
	if sel == nil {
		return nil, false, nil
	}
	for _, opt := range collect(sel, atom.Option, 0) {
		options = append(options, nodeText(opt))
	}
	return options, true, nil
}

// TextCells returns the text of every <td> in an HTML fragment, in order.
// KML placemark descriptions embed their attributes this way.
func TextCells(fragment string) ([]string, error) {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return nil, eris.Wrap(err, "html: parse fragment")
	}
	var cells []string
	for _, td := range collect(doc, atom.Td, 0) {
		cells = append(cells, nodeText(td))
	}
	return cells, nil
}

func findElement(n *html.Node, a atom.Atom, class string) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a && (class == "" || hasClass(n, class)) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a, class); found != nil {
			return found
		}
	}
	return nil
}

// collect returns descendants of n matching a, without descending into
// nested elements of type stop.
func collect(n *html.Node, a atom.Atom, stop atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(p *html.Node) {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if c.DataAtom == a {
				out = append(out, c)
				continue
			}
			if stop != 0 && c.DataAtom == stop {
				continue
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" && slices.Contains(strings.Fields(attr.Val), class) {
			return true
		}
	}
	return false
}

// nodeText concatenates the text under n with whitespace collapsed.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(p *html.Node) {
		if p.Type == html.TextNode {
			b.WriteString(p.Data)
			b.WriteByte(' ')
		}
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
