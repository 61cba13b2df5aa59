package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/QuangTung97/remset"
	"github.com/QuangTung97/remset/cardtable"
	"github.com/QuangTung97/remset/chunk"
	"github.com/QuangTung97/remset/fot"
)

func dumpFlags() *cli.Command {
	return &cli.Command{
		Name:   "dump",
		Usage:  "run the mutation scenario and print the tables of every old chunk",
		Action: dump,
		Flags: append(mutationFlags(),
			&cli.IntFlag{
				Name:  "cards",
				Value: 16,
				Usage: "number of first object table entries to print per chunk",
			},
		),
	}
}

func dump(ctx *cli.Context) error {
	conf, h, err := openHeap(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = h.Close() }()

	if _, err := mutate(h, uintptr(conf.LargeObjectThreshold), mutationOptionsFrom(ctx)); err != nil {
		return err
	}

	cb, ok := h.RememberedSet().(*remset.CardTableBased)
	if !ok {
		fmt.Println("single generation heap, no remembered set")
		return nil
	}

	snapshot := h.DirtyCardSnapshot()
	maxCards := uintptr(ctx.Int("cards"))
	return h.WalkChunks(chunk.Old, func(c chunk.Chunk) bool {
		dirty := snapshot.Dirty(c.Base())
		if c.IsUnaligned() {
			fmt.Printf("unaligned chunk %#x: object %d bytes, dirty cards %s\n",
				uintptr(c.Base()), c.Top().Offset(c.ObjectsStart()), dirty.String())
			return true
		}

		a := chunk.AsAligned(c)
		used := c.Top().Offset(c.ObjectsStart())
		fmt.Printf("aligned chunk %#x: %d bytes used, %d dirty of %d cards %s\n",
			uintptr(c.Base()), used, dirty.GetCardinality(),
			cardtable.IndexLimitForMemorySize(used), dirty.String())
		dumpFirstObjectTable(cb.Aligned(), a, maxCards)
		return true
	})
}

func dumpFirstObjectTable(rs *remset.AlignedChunkRememberedSet, c chunk.Aligned, maxCards uintptr) {
	table := rs.FirstObjectTableStart(c)
	limit := cardtable.IndexLimitForMemorySize(c.Top().Offset(c.ObjectsStart()))
	if limit > maxCards {
		limit = maxCards
	}
	for index := uintptr(0); index < limit; index++ {
		first := fot.GetFirstObject(table, c.ObjectsStart(), index)
		fmt.Printf("  card %4d: %-32s first object at +%d\n",
			index, fot.Describe(table, index), first.Offset(c.ObjectsStart()))
	}
}
