// Package tagtree decodes the little-endian, NUL-named tag streams stored inside region frames.
package tagtree

import "fmt"

// TagID identifies the payload shape of a record.
type TagID byte

const (
	TagEnd    TagID = 0x00
	TagStruct TagID = 0x03
	TagList   TagID = 0x04
	TagBlob   TagID = 0x05
	TagInt    TagID = 0x06
	TagByte   TagID = 0x10

	// TagUnknown never appears on the wire. The decoder appends a node with this tag where it lost sync.
	TagUnknown TagID = 0xFF
)

func (t TagID) String() string {
	switch t {
	case TagEnd:
		return "end"
	case TagStruct:
		return "struct"
	case TagList:
		return "list"
	case TagBlob:
		return "blob"
	case TagInt:
		return "int"
	case TagByte:
		return "byte"
	case TagUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("0x%02x", byte(t))
	}
}

// IsContainer reports whether records of this tag carry nested records.
func (t TagID) IsContainer() bool {
	return t == TagStruct || t == TagList
}

// Node is one decoded record. Which payload field is meaningful depends on Tag.
type Node struct {
	Tag  TagID
	Name string

	Children []*Node // TagStruct, TagList
	Bytes    []byte  // TagBlob
	Int      int32   // TagInt
	Byte     uint8   // TagByte

	// Offset is the position of the record's tag byte in the decoded buffer. For TagUnknown it holds the offending
	// tag value in Byte.
	Offset int
}

// Child returns the first direct child called name, or nil.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, child := range n.Children {
		if child.Name == name {
			return child
		}
	}
	return nil
}

// Find returns the first node called name in depth-first order, n itself included.
func (n *Node) Find(name string) *Node {
	if n == nil {
		return nil
	}
	if n.Name == name {
		return n
	}
	for _, child := range n.Children {
		if found := child.Find(name); found != nil {
			return found
		}
	}
	return nil
}

// FindContainer is Find restricted to struct and list nodes.
func (n *Node) FindContainer(name string) *Node {
	if n == nil {
		return nil
	}
	if n.Name == name && n.Tag.IsContainer() {
		return n
	}
	for _, child := range n.Children {
		if found := child.FindContainer(name); found != nil {
			return found
		}
	}
	return nil
}

// Walk calls fn for n and every descendant in depth-first order along with its depth below n.
func (n *Node) Walk(fn func(node *Node, depth int)) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(*Node, int), depth int) {
	if n == nil {
		return
	}
	fn(n, depth)
	for _, child := range n.Children {
		child.walk(fn, depth+1)
	}
}

// NewStruct, NewList, NewBlob, NewInt and NewByte build nodes for the encoder.

func NewStruct(name string, children ...*Node) *Node {
	return &Node{Tag: TagStruct, Name: name, Children: children}
}

func NewList(name string, children ...*Node) *Node {
	return &Node{Tag: TagList, Name: name, Children: children}
}

func NewBlob(name string, data []byte) *Node {
	return &Node{Tag: TagBlob, Name: name, Bytes: data}
}

func NewInt(name string, v int32) *Node {
	return &Node{Tag: TagInt, Name: name, Int: v}
}

func NewByte(name string, v uint8) *Node {
	return &Node{Tag: TagByte, Name: name, Byte: v}
}
