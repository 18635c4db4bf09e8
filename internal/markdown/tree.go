package markdown

import "fmt"

// NodeID addresses a node inside a Tree.
type NodeID int

// None marks the absence of a node, such as the root's parent.
const None NodeID = -1

type Kind int

const (
	KindDocument Kind = iota
	KindParagraph
	KindHeading
	KindBlockQuote
	KindList
	KindListItem
	KindCodeBlock
	KindHTMLBlock
	KindHorizontalRule
	KindTable
	KindTableRow
	KindTableCell
	KindText
	KindEmph
	KindStrong
	KindDel
	KindCode
	KindHTMLSpan
	KindLink
	KindImage
	KindSoftbreak
	KindHardbreak
)

var kindNames = [...]string{
	KindDocument:       "document",
	KindParagraph:      "paragraph",
	KindHeading:        "heading",
	KindBlockQuote:     "blockquote",
	KindList:           "list",
	KindListItem:       "item",
	KindCodeBlock:      "code_block",
	KindHTMLBlock:      "html_block",
	KindHorizontalRule: "hr",
	KindTable:          "table",
	KindTableRow:       "table_row",
	KindTableCell:      "table_cell",
	KindText:           "text",
	KindEmph:           "emph",
	KindStrong:         "strong",
	KindDel:            "del",
	KindCode:           "code",
	KindHTMLSpan:       "html_span",
	KindLink:           "link",
	KindImage:          "image",
	KindSoftbreak:      "softbreak",
	KindHardbreak:      "hardbreak",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Block reports whether nodes of this kind sit on their own lines.
func (k Kind) Block() bool {
	switch k {
	case KindDocument, KindParagraph, KindHeading, KindBlockQuote, KindList, KindListItem,
		KindCodeBlock, KindHTMLBlock, KindHorizontalRule, KindTable, KindTableRow, KindTableCell:
		return true
	}
	return false
}

type Align int

const (
	AlignNone Align = iota
	AlignLeft
	AlignCenter
	AlignRight
)

// Value is the payload of a node. Which fields are meaningful depends on Kind.
type Value struct {
	Kind Kind

	// Text, Code, HTMLBlock, HTMLSpan and CodeBlock content.
	Literal string

	// Link and Image.
	Destination string
	Title       string

	// Heading.
	Level int

	// CodeBlock.
	Info string

	// List.
	Ordered bool
	Tight   bool
	Start   int
	Bullet  byte
	Delim   byte

	// Table rows and cells.
	Header bool
	Align  Align
}

type node struct {
	value    Value
	parent   NodeID
	children []NodeID
}

// Tree is an arena of markdown nodes. Node 0 is always the document root.
// A node owns its children; detaching them leaves them in the arena with no
// parent until they are appended somewhere else.
type Tree struct {
	nodes []node
}

// NewTree returns a tree holding only a document root.
func NewTree() *Tree {
	return &Tree{nodes: []node{{value: Value{Kind: KindDocument}, parent: None}}}
}

func (t *Tree) Root() NodeID { return 0 }

// Len is the number of nodes in the arena, including orphans.
func (t *Tree) Len() int { return len(t.nodes) }

func (t *Tree) Value(id NodeID) Value { return t.nodes[id].value }

func (t *Tree) Kind(id NodeID) Kind { return t.nodes[id].value.Kind }

func (t *Tree) Parent(id NodeID) NodeID { return t.nodes[id].parent }

// Children returns a copy of id's child list.
func (t *Tree) Children(id NodeID) []NodeID {
	return append([]NodeID(nil), t.nodes[id].children...)
}

// Add appends a new node with value v under parent and returns its id.
func (t *Tree) Add(parent NodeID, v Value) NodeID {
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, node{value: v, parent: parent})
	if parent != None {
		t.nodes[parent].children = append(t.nodes[parent].children, id)
	}
	return id
}

// Replace swaps the payload at id for v and orphans its children, which
// are returned.
func (t *Tree) Replace(id NodeID, v Value) []NodeID {
	orphans := t.DetachChildren(id)
	t.nodes[id].value = v
	return orphans
}

// SetDestination rewrites the target of a link or image in place.
func (t *Tree) SetDestination(id NodeID, dest string) {
	t.nodes[id].value.Destination = dest
}

// DetachChildren removes every child of id and returns them in order.
func (t *Tree) DetachChildren(id NodeID) []NodeID {
	children := t.nodes[id].children
	t.nodes[id].children = nil
	for _, c := range children {
		t.nodes[c].parent = None
	}
	return children
}

// AppendChildren attaches orphaned nodes to the end of id's child list.
func (t *Tree) AppendChildren(id NodeID, children ...NodeID) error {
	for _, c := range children {
		if t.nodes[c].parent != None {
			return fmt.Errorf("node %d already has parent %d", c, t.nodes[c].parent)
		}
		if c == id || t.isAncestor(c, id) {
			return fmt.Errorf("attaching node %d under %d would create a cycle", c, id)
		}
	}
	for _, c := range children {
		t.nodes[c].parent = id
	}
	t.nodes[id].children = append(t.nodes[id].children, children...)
	return nil
}

// isAncestor reports whether a is an ancestor of b.
func (t *Tree) isAncestor(a, b NodeID) bool {
	for p := t.nodes[b].parent; p != None; p = t.nodes[p].parent {
		if p == a {
			return true
		}
	}
	return false
}

// Walk visits id and its descendants in pre-order. A node's children are
// read after fn returns, so children spliced in by fn are visited too.
// The walk stops at the first error.
func (t *Tree) Walk(id NodeID, fn func(NodeID) error) error {
	if err := fn(id); err != nil {
		return err
	}
	for i := 0; i < len(t.nodes[id].children); i++ {
		if err := t.Walk(t.nodes[id].children[i], fn); err != nil {
			return err
		}
	}
	return nil
}

// PlainText concatenates the literal text below id.
func (t *Tree) PlainText(id NodeID) string {
	var out []byte
	t.Walk(id, func(n NodeID) error {
		switch v := t.nodes[n].value; v.Kind {
		case KindText, KindCode:
			out = append(out, v.Literal...)
		case KindSoftbreak, KindHardbreak:
			out = append(out, ' ')
		}
		return nil
	})
	return string(out)
}
