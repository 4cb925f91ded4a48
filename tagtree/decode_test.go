package tagtree

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

var ignoreOffsets = cmpopts.IgnoreFields(Node{}, "Offset")

func le32(v uint32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, v)
	return out
}

// frame prefixes body with its little-endian length.
func frame(body ...[]byte) []byte {
	joined := bytes.Join(body, nil)
	return append(le32(uint32(len(joined))), joined...)
}

func record(tag TagID, name string, payload ...[]byte) []byte {
	out := append([]byte{byte(tag)}, name...)
	out = append(out, 0)
	return append(out, bytes.Join(payload, nil)...)
}

func TestMarshalDecodeRoundTrip(t *testing.T) {
	want := NewStruct("",
		NewStruct("Components",
			NewList("Sections",
				NewStruct("Section", NewInt("Y", 0), NewBlob("Block", []byte{1, 2, 3})),
				NewStruct("Section", NewInt("Y", -1), NewBlob("Block", []byte{})),
			),
			NewByte("Version", 9),
			NewStruct("Empty"),
		),
		NewInt("Trailer", 123456),
	)

	raw, err := Marshal(want)
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got, ignoreOffsets, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("decoded tree mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeResumesAtContainerBoundary(t *testing.T) {
	inner := record(TagInt, "v", le32(7))
	garbage := []byte{0xEE, 0xEE, 0xEE}
	raw := frame(
		record(TagStruct, "A", le32(uint32(len(inner)+len(garbage))), inner, garbage),
		record(TagInt, "B", le32(42)),
	)

	root, err := Decode(raw)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, UnknownTag, perr.Kind)
	require.Equal(t, TagID(0xEE), perr.Tag)

	require.Len(t, root.Children, 2)
	a := root.Children[0]
	require.Equal(t, "A", a.Name)
	require.Len(t, a.Children, 2)
	require.Equal(t, int32(7), a.Child("v").Int)
	require.Equal(t, TagUnknown, a.Children[1].Tag)
	require.Equal(t, byte(0xEE), a.Children[1].Byte)

	b := root.Child("B")
	require.NotNil(t, b)
	require.Equal(t, TagInt, b.Tag)
	require.Equal(t, int32(42), b.Int)
}

func TestDecodeSkipsZeroPaddingInsideContainer(t *testing.T) {
	inner := record(TagByte, "flag", []byte{1})
	raw := frame(
		record(TagStruct, "A", le32(uint32(len(inner)+4)), inner, []byte{0, 0, 0, 0}),
		record(TagByte, "B", []byte{2}),
	)

	root, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, uint8(1), root.Child("A").Child("flag").Byte)
	require.Equal(t, uint8(2), root.Child("B").Byte)
}

func TestDecodeNamedZeroTagIsDesync(t *testing.T) {
	raw := frame(
		record(TagInt, "first", le32(1)),
		[]byte{0x00, 'x', 0},
		record(TagInt, "never", le32(2)),
	)

	root, err := Decode(raw)
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, UnknownTag, perr.Kind)
	require.Equal(t, TagEnd, perr.Tag)
	require.Len(t, root.Children, 2)
	require.Equal(t, TagUnknown, root.Children[1].Tag)
	require.Nil(t, root.Child("never"))
}

func TestDecodeUnknownTagKeepsEarlierSiblings(t *testing.T) {
	raw := frame(
		record(TagInt, "first", le32(1)),
		[]byte{0x42, 'x', 0},
		record(TagInt, "never", le32(2)),
	)

	root, err := Decode(raw)
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, UnknownTag, perr.Kind)
	require.Equal(t, 4+len(record(TagInt, "first", le32(1))), perr.Offset)

	require.Len(t, root.Children, 2)
	require.Equal(t, "first", root.Children[0].Name)
	require.Equal(t, TagUnknown, root.Children[1].Tag)
	require.Nil(t, root.Child("never"))
}

func TestDecodeTruncated(t *testing.T) {
	tests := map[string][]byte{
		"container past end": frame(record(TagStruct, "A", le32(100), record(TagInt, "v", le32(5)))),
		"blob past end":      frame(record(TagBlob, "Block", le32(50), le32(0), []byte{1, 2})),
		"int cut short":      frame(record(TagInt, "v", []byte{1, 2})),
		"unterminated name":  frame([]byte{byte(TagInt), 'a', 'b'}),
		"short total size":   frame()[:2],
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			root, err := Decode(raw)
			require.NotNil(t, root)
			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			require.Equal(t, Truncated, perr.Kind)
		})
	}
}

func TestDecodeContainerPastEndKeepsChildren(t *testing.T) {
	raw := frame(record(TagStruct, "A", le32(100), record(TagInt, "v", le32(5))))
	root, _ := Decode(raw)
	require.Equal(t, int32(5), root.Child("A").Child("v").Int)
}

func TestDecodeStopsAtTotalSize(t *testing.T) {
	raw := frame(record(TagByte, "in", []byte{1}))
	raw = append(raw, record(TagByte, "out", []byte{2})...)

	root, err := Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, root.Child("in"))
	require.Nil(t, root.Child("out"))
}

func TestDecodeEndPadding(t *testing.T) {
	raw := frame(record(TagInt, "v", le32(3)), []byte{0, 0, 0, 0, 0, 0})
	root, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, root.Children, 1)
}

func TestDecodeLossyNames(t *testing.T) {
	raw := frame(record(TagByte, "bad\xffname", []byte{1}))
	root, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, "bad�name", root.Children[0].Name)
}

func TestFind(t *testing.T) {
	root := NewStruct("",
		NewBlob("Sections", nil),
		NewStruct("Components", NewList("Sections", NewInt("x", 1))),
	)
	require.Equal(t, TagBlob, root.Find("Sections").Tag)
	require.Equal(t, TagList, root.FindContainer("Sections").Tag)
	require.Nil(t, root.Find("missing"))

	var names []string
	root.Walk(func(n *Node, depth int) {
		if depth > 0 {
			names = append(names, n.Name)
		}
	})
	require.Equal(t, []string{"Sections", "Components", "Sections", "x"}, names)
}
