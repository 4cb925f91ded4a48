package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/nexcore/regionmap/region"
	"github.com/nexcore/regionmap/render"
	"github.com/nexcore/regionmap/tagtree"
)

const blobPreview = 32

var dumpCommand = &cli.Command{
	Name:      "dump",
	Usage:     "print the header, sector table and decoded tag tree of a region file",
	ArgsUsage: "<region file>",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "slot", Value: -1, Usage: "grid index to decode; defaults to the first occupied slot"},
		&cli.BoolFlag{Name: "sections", Usage: "also list the extracted sections"},
	},
	Action: dumpAction,
}

func dumpAction(c *cli.Context) error {
	if err := needArgs(c, 1); err != nil {
		return err
	}
	cfg := region.DefaultConfig()
	cfg.BaseOffsets = c.Int64Slice("base-offset")
	reader, err := region.Open(c.Args().First(), cfg)
	if err != nil {
		return err
	}
	defer reader.Close()

	out := os.Stdout
	fmt.Fprintf(out, "file: %s (%s)\n", reader.Name, humanize.Bytes(uint64(reader.Size())))
	fmt.Fprintf(out, "signature: %q version: %d\n", reader.Header.Signature, reader.Header.Version)
	fmt.Fprintf(out, "table base: %d, occupied slots: %d\n", reader.Table.Base, reader.Table.Len())

	slots := reader.Table.Slots()
	if len(slots) == 0 {
		return nil
	}
	slot := slots[0]
	if idx := c.Int("slot"); idx >= 0 {
		if !reader.Table.Occupied(idx) {
			return fmt.Errorf("slot %d is empty", idx)
		}
		for _, s := range slots {
			if s.Index == idx {
				slot = s
			}
		}
	}

	raw, err := reader.ReadChunk(slot, c.Int("max-decompressed"))
	if err != nil {
		return fmt.Errorf("slot %d: %w", slot.Index, err)
	}
	fmt.Fprintf(out, "slot %d (x=%d z=%d) at offset %d: %s decompressed\n", slot.Index, slot.X(), slot.Z(), slot.Offset, humanize.Bytes(uint64(len(raw))))

	root, perr := tagtree.Decode(raw)
	printTree(out, root)
	if perr != nil {
		fmt.Fprintf(out, "decode stopped early: %v\n", perr)
	}

	if c.Bool("sections") {
		sections, _ := render.DecodeSections(raw)
		for i, section := range sections {
			fmt.Fprintf(out, "section %d: palette %v, data %d bytes\n", i, section.Palette, len(section.Data))
		}
	}
	return nil
}

func printTree(w io.Writer, root *tagtree.Node) {
	root.Walk(func(n *tagtree.Node, depth int) {
		if depth == 0 {
			return
		}
		indent := strings.Repeat("  ", depth-1)
		switch n.Tag {
		case tagtree.TagStruct, tagtree.TagList:
			fmt.Fprintf(w, "%s[%s] %s (%d children)\n", indent, n.Tag, n.Name, len(n.Children))
		case tagtree.TagBlob:
			preview := n.Bytes
			if len(preview) > blobPreview {
				preview = preview[:blobPreview]
			}
			fmt.Fprintf(w, "%s[%s] %s (%d bytes) %s\n", indent, n.Tag, n.Name, len(n.Bytes), hex.EncodeToString(preview))
		case tagtree.TagInt:
			fmt.Fprintf(w, "%s[%s] %s: %d\n", indent, n.Tag, n.Name, n.Int)
		case tagtree.TagByte:
			fmt.Fprintf(w, "%s[%s] %s: %d\n", indent, n.Tag, n.Name, n.Byte)
		case tagtree.TagUnknown:
			fmt.Fprintf(w, "%sunknown tag 0x%02x at %d\n", indent, n.Byte, n.Offset)
		}
	})
}
