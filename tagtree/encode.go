package tagtree

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// Marshal encodes root's children as a full frame payload: the little-endian total_size followed by the records.
func Marshal(root *Node) ([]byte, error) {
	var body bytes.Buffer
	enc := NewEncoder(&body)
	for _, child := range root.Children {
		if err := enc.Encode(child); err != nil {
			return nil, err
		}
	}

	out := make([]byte, 4, 4+body.Len())
	binary.LittleEndian.PutUint32(out, uint32(body.Len()))
	return append(out, body.Bytes()...), nil
}

type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes a single record for n, recursing into containers.
func (e *Encoder) Encode(n *Node) error {
	switch n.Tag {
	default:
		return errors.New("tagtree: cannot encode tag " + n.Tag.String() + " for " + n.Name)

	case TagStruct, TagList:
		var body bytes.Buffer
		inner := NewEncoder(&body)
		for _, child := range n.Children {
			if err := inner.Encode(child); err != nil {
				return err
			}
		}
		if err := e.writeTag(n.Tag, n.Name); err != nil {
			return err
		}
		if err := e.writeInt32(int32(body.Len())); err != nil {
			return err
		}
		_, err := body.WriteTo(e.w)
		return err

	case TagBlob:
		if err := e.writeTag(n.Tag, n.Name); err != nil {
			return err
		}
		if err := e.writeInt32(int32(len(n.Bytes))); err != nil {
			return err
		}
		if err := e.writeInt32(0); err != nil {
			return err
		}
		_, err := e.w.Write(n.Bytes)
		return err

	case TagInt:
		if err := e.writeTag(n.Tag, n.Name); err != nil {
			return err
		}
		return e.writeInt32(n.Int)

	case TagByte:
		if err := e.writeTag(n.Tag, n.Name); err != nil {
			return err
		}
		_, err := e.w.Write([]byte{n.Byte})
		return err
	}
}

// WriteSized writes a record whose payload is an opaque size-prefixed byte run with no reserved word, the shape the
// Palette and Data members take inside a Block blob.
func (e *Encoder) WriteSized(tag TagID, name string, payload []byte) error {
	if err := e.writeTag(tag, name); err != nil {
		return err
	}
	if err := e.writeInt32(int32(len(payload))); err != nil {
		return err
	}
	_, err := e.w.Write(payload)
	return err
}

func (e *Encoder) writeTag(tag TagID, name string) error {
	if _, err := e.w.Write([]byte{byte(tag)}); err != nil {
		return err
	}
	if _, err := io.WriteString(e.w, name); err != nil {
		return err
	}
	_, err := e.w.Write([]byte{0})
	return err
}

func (e *Encoder) writeInt32(n int32) error {
	_, err := e.w.Write([]byte{byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)})
	return err
}
