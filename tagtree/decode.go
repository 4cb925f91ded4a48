package tagtree

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ErrorKind classifies a ParseError.
type ErrorKind int

const (
	Truncated ErrorKind = iota + 1
	UnknownTag
)

func (k ErrorKind) String() string {
	switch k {
	case Truncated:
		return "truncated"
	case UnknownTag:
		return "unknown tag"
	default:
		return "parse error"
	}
}

// ParseError describes where decoding stopped. It is informational: the tree returned alongside it holds everything
// decoded before and around the failure.
type ParseError struct {
	Kind   ErrorKind
	Offset int
	Tag    TagID
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("tagtree: %s at offset %d (tag %s)", e.Kind, e.Offset, e.Tag)
}

// Decode parses a decompressed frame: a little-endian total_size followed by a record stream. The returned root is
// never nil. A non-nil error is always a *ParseError and only reports the first place decoding went wrong; containers
// that failed keep their already decoded children and their siblings are still decoded.
func Decode(buf []byte) (*Node, error) {
	root := &Node{Tag: TagStruct}
	d := &decoder{buf: buf}

	total, ok := d.u32(0, len(buf))
	if !ok {
		return root, &ParseError{Kind: Truncated}
	}
	end := 4 + int(total)
	if end > len(buf) {
		d.fail(Truncated, len(buf), TagStruct)
		end = len(buf)
	}
	d.records(root, 4, end)

	if d.err != nil {
		return root, d.err
	}
	return root, nil
}

// DecodeRecords parses a bare record stream with no total_size header, as found inside blobs.
func DecodeRecords(buf []byte) (*Node, error) {
	root := &Node{Tag: TagStruct}
	d := &decoder{buf: buf}
	d.records(root, 0, len(buf))
	if d.err != nil {
		return root, d.err
	}
	return root, nil
}

type decoder struct {
	buf []byte
	err *ParseError
}

func (d *decoder) fail(kind ErrorKind, offset int, tag TagID) {
	if d.err == nil {
		d.err = &ParseError{Kind: kind, Offset: offset, Tag: tag}
	}
}

// records decodes the records in buf[pos:end] into parent. It returns early on the first failure inside this
// container; callers always resume at their own boundary.
func (d *decoder) records(parent *Node, pos, end int) {
	for pos < end {
		start := pos
		tag := TagID(d.buf[pos])
		pos++

		// A zero tag ends the container only when no name follows it; a zero tag with a name is a desync.
		if tag == TagEnd && (pos >= end || d.buf[pos] == 0) {
			return
		}
		if !known(tag) {
			parent.Children = append(parent.Children, &Node{Tag: TagUnknown, Byte: byte(tag), Offset: start})
			d.fail(UnknownTag, start, tag)
			return
		}

		name, next, ok := d.name(pos, end)
		if !ok {
			d.fail(Truncated, start, tag)
			return
		}
		pos = next
		node := &Node{Tag: tag, Name: name, Offset: start}

		switch tag {
		case TagStruct, TagList:
			size, ok := d.u32(pos, end)
			if !ok {
				d.fail(Truncated, start, tag)
				return
			}
			pos += 4
			boundary := pos + int(size)
			inner := boundary
			if inner > end {
				inner = end
			}
			d.records(node, pos, inner)
			parent.Children = append(parent.Children, node)
			if boundary > end {
				d.fail(Truncated, start, tag)
				return
			}
			pos = boundary

		case TagBlob:
			size, ok := d.u32(pos, end)
			if !ok || pos+8 > end {
				d.fail(Truncated, start, tag)
				return
			}
			pos += 8
			if pos+int(size) > end {
				d.fail(Truncated, start, tag)
				return
			}
			node.Bytes = d.buf[pos : pos+int(size)]
			pos += int(size)
			parent.Children = append(parent.Children, node)

		case TagInt:
			v, ok := d.u32(pos, end)
			if !ok {
				d.fail(Truncated, start, tag)
				return
			}
			node.Int = int32(v)
			pos += 4
			parent.Children = append(parent.Children, node)

		case TagByte:
			if pos >= end {
				d.fail(Truncated, start, tag)
				return
			}
			node.Byte = d.buf[pos]
			pos++
			parent.Children = append(parent.Children, node)
		}
	}
}

func known(tag TagID) bool {
	switch tag {
	case TagStruct, TagList, TagBlob, TagInt, TagByte:
		return true
	}
	return false
}

// name reads a NUL-terminated name starting at pos. Invalid UTF-8 is replaced rather than rejected.
func (d *decoder) name(pos, end int) (string, int, bool) {
	return readName(d.buf[:end], pos)
}

func (d *decoder) u32(pos, end int) (uint32, bool) {
	return readU32(d.buf[:end], pos)
}

func readName(buf []byte, pos int) (string, int, bool) {
	for i := pos; i < len(buf); i++ {
		if buf[i] == 0 {
			return strings.ToValidUTF8(string(buf[pos:i]), "�"), i + 1, true
		}
	}
	return "", pos, false
}

func readU32(buf []byte, pos int) (uint32, bool) {
	if pos < 0 || pos+4 > len(buf) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(buf[pos:]), true
}
