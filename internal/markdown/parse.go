package markdown

import (
	"strings"

	gm "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	gmparser "github.com/gomarkdown/markdown/parser"
)

// Heading ids, definition lists and math are left as literal text so they
// survive the round trip unchanged.
const extensions = (gmparser.CommonExtensions | gmparser.Autolink) &^
	(gmparser.HeadingIDs | gmparser.DefinitionLists | gmparser.MathJax)

// Parse builds a Tree from markdown source. Parsing never fails; anything
// the parser does not model is kept as literal text.
func Parse(src string) *Tree {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	src = strings.ReplaceAll(src, "\r", "\n")

	doc := gm.Parse([]byte(src), gmparser.NewWithExtensions(extensions))

	t := NewTree()
	for _, c := range doc.GetChildren() {
		convert(t, t.Root(), c)
	}
	return t
}

func convert(t *Tree, parent NodeID, n ast.Node) {
	var id NodeID
	switch n := n.(type) {
	case *ast.Text:
		if len(n.Literal) > 0 {
			t.Add(parent, Value{Kind: KindText, Literal: string(n.Literal)})
		}
		return
	case *ast.Code:
		t.Add(parent, Value{Kind: KindCode, Literal: string(n.Literal)})
		return
	case *ast.HTMLSpan:
		t.Add(parent, Value{Kind: KindHTMLSpan, Literal: string(n.Literal)})
		return
	case *ast.HTMLBlock:
		t.Add(parent, Value{Kind: KindHTMLBlock, Literal: string(n.Literal)})
		return
	case *ast.CodeBlock:
		t.Add(parent, Value{Kind: KindCodeBlock, Literal: string(n.Literal), Info: string(n.Info)})
		return
	case *ast.HorizontalRule:
		t.Add(parent, Value{Kind: KindHorizontalRule})
		return
	case *ast.Softbreak:
		t.Add(parent, Value{Kind: KindSoftbreak})
		return
	case *ast.Hardbreak:
		t.Add(parent, Value{Kind: KindHardbreak})
		return
	case *ast.NonBlockingSpace:
		t.Add(parent, Value{Kind: KindText, Literal: " "})
		return
	case *ast.Paragraph:
		id = t.Add(parent, Value{Kind: KindParagraph})
	case *ast.Heading:
		id = t.Add(parent, Value{Kind: KindHeading, Level: n.Level})
	case *ast.BlockQuote:
		id = t.Add(parent, Value{Kind: KindBlockQuote})
	case *ast.List:
		id = t.Add(parent, Value{
			Kind:    KindList,
			Ordered: n.ListFlags&ast.ListTypeOrdered != 0,
			Tight:   n.Tight,
			Start:   n.Start,
			Bullet:  n.BulletChar,
			Delim:   n.Delimiter,
		})
	case *ast.ListItem:
		id = t.Add(parent, Value{Kind: KindListItem})
	case *ast.Table:
		id = t.Add(parent, Value{Kind: KindTable})
	case *ast.TableRow:
		id = t.Add(parent, Value{Kind: KindTableRow})
	case *ast.TableCell:
		id = t.Add(parent, Value{Kind: KindTableCell, Header: n.IsHeader, Align: cellAlign(n.Align)})
	case *ast.Emph:
		id = t.Add(parent, Value{Kind: KindEmph})
	case *ast.Strong:
		id = t.Add(parent, Value{Kind: KindStrong})
	case *ast.Del:
		id = t.Add(parent, Value{Kind: KindDel})
	case *ast.Link:
		id = t.Add(parent, Value{Kind: KindLink, Destination: string(n.Destination), Title: string(n.Title)})
	case *ast.Image:
		id = t.Add(parent, Value{Kind: KindImage, Destination: string(n.Destination), Title: string(n.Title)})
	default:
		if leaf := n.AsLeaf(); leaf != nil {
			if len(leaf.Literal) > 0 {
				t.Add(parent, Value{Kind: KindText, Literal: string(leaf.Literal)})
			}
			return
		}
		// Table sections and other wrappers are flattened into the parent.
		id = parent
	}

	for _, c := range n.GetChildren() {
		convert(t, id, c)
	}
}

func cellAlign(f ast.CellAlignFlags) Align {
	switch f {
	case ast.TableAlignmentLeft:
		return AlignLeft
	case ast.TableAlignmentRight:
		return AlignRight
	case ast.TableAlignmentCenter:
		return AlignCenter
	}
	return AlignNone
}
