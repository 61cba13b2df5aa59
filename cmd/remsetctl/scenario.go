package main

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/QuangTung97/remset/chunk"
	"github.com/QuangTung97/remset/heap"
	"github.com/QuangTung97/remset/layout"
	"github.com/QuangTung97/remset/memory"
)

func mutationFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "objects",
			Value: 2000,
			Usage: "number of objects to allocate",
		},
		&cli.IntFlag{
			Name:  "stores",
			Value: 5000,
			Usage: "number of reference stores",
		},
		&cli.Float64Flag{
			Name:  "young-ratio",
			Value: 0.5,
			Usage: "fraction of objects allocated young",
		},
		&cli.Float64Flag{
			Name:  "large-ratio",
			Value: 0.01,
			Usage: "fraction of objects above the large object threshold",
		},
		&cli.Int64Flag{
			Name:  "seed",
			Value: 1,
			Usage: "random seed",
		},
	}
}

func scenarioFlags() *cli.Command {
	return &cli.Command{
		Name:   "scenario",
		Usage:  "allocate and mutate objects, then scan the dirty cards like a young collection",
		Action: scenario,
		Flags: append(mutationFlags(),
			&cli.IntFlag{
				Name:  "rounds",
				Value: 1,
				Usage: "number of store and scan rounds",
			},
			&cli.BoolFlag{
				Name:  "promote",
				Usage: "promote every young aligned chunk after the scan",
			},
		),
	}
}

type mutationOptions struct {
	objects    int
	stores     int
	youngRatio float64
	largeRatio float64
	seed       int64
}

func mutationOptionsFrom(ctx *cli.Context) mutationOptions {
	return mutationOptions{
		objects:    ctx.Int("objects"),
		stores:     ctx.Int("stores"),
		youngRatio: ctx.Float64("young-ratio"),
		largeRatio: ctx.Float64("large-ratio"),
		seed:       ctx.Int64("seed"),
	}
}

// mutate fills h with random objects and stores random references between
// them. It returns the allocated objects.
func mutate(h *heap.Heap, largeThreshold uintptr, opts mutationOptions) ([]memory.Pointer, error) {
	rnd := rand.New(rand.NewSource(opts.seed))

	objs := make([]memory.Pointer, 0, opts.objects)
	for i := 0; i < opts.objects; i++ {
		gen := chunk.Old
		if h.Generational() && rnd.Float64() < opts.youngRatio {
			gen = chunk.Young
		}

		numRefs := rnd.Intn(8)
		size := layout.SizeFor(numRefs, uintptr(rnd.Intn(256)))
		if rnd.Float64() < opts.largeRatio {
			size = largeThreshold + uintptr(rnd.Intn(4096))
		}

		obj, err := h.Allocate(gen, size, numRefs)
		if err != nil {
			return nil, errors.Wrapf(err, "allocate object %d", i)
		}
		objs = append(objs, obj)
	}

	storeReferences(h, rnd, objs, opts.stores)
	return objs, nil
}

func storeReferences(h *heap.Heap, rnd *rand.Rand, objs []memory.Pointer, stores int) {
	if len(objs) == 0 {
		return
	}
	for i := 0; i < stores; i++ {
		holder := objs[rnd.Intn(len(objs))]
		numRefs := layout.ReadHeader(holder).NumReferences()
		if numRefs == 0 {
			continue
		}
		h.WriteReference(holder, rnd.Intn(numRefs), objs[rnd.Intn(len(objs))])
	}
}

func scenario(ctx *cli.Context) error {
	conf, h, err := openHeap(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = h.Close() }()

	objs, err := mutate(h, uintptr(conf.LargeObjectThreshold), mutationOptionsFrom(ctx))
	if err != nil {
		return err
	}
	st := h.Stats()
	fmt.Printf("allocated %d objects: young %d bytes in %d+%d chunks, old %d bytes in %d+%d chunks\n",
		len(objs), st.YoungBytes, st.YoungAlignedChunks, st.YoungUnalignedChunks,
		st.OldBytes, st.OldAlignedChunks, st.OldUnalignedChunks)

	snapshot := h.DirtyCardSnapshot()
	roots, err := h.OldToYoungRoots()
	if err != nil {
		return err
	}
	fmt.Printf("dirty cards: %d, old to young roots: %d\n", snapshot.NumDirtyCards(), len(roots))

	rnd := rand.New(rand.NewSource(ctx.Int64("seed") + 1))
	for round := 0; round < ctx.Int("rounds"); round++ {
		if round > 0 {
			storeReferences(h, rnd, objs, ctx.Int("stores"))
		}
		scanned := 0
		err = h.ScanDirtyCards(true, func(memory.Pointer) error {
			scanned++
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Printf("round %d: scanned %d objects\n", round, scanned)
	}
	fmt.Printf("dirty cards after cleaning: %d, hot cards: %d\n",
		h.DirtyCardSnapshot().NumDirtyCards(), len(h.HotCards()))
	for _, k := range h.HotCards() {
		fmt.Printf("  hot card %d of chunk %#x\n", k.Index, uintptr(k.Chunk))
	}

	if ctx.Bool("promote") && h.Generational() {
		var young []chunk.Chunk
		_ = h.WalkChunks(chunk.Young, func(c chunk.Chunk) bool {
			if !c.IsUnaligned() {
				young = append(young, c)
			}
			return true
		})
		for _, c := range young {
			if err := h.PromoteChunk(c); err != nil {
				return err
			}
		}
		fmt.Printf("promoted %d chunks, dirty cards: %d\n", len(young), h.DirtyCardSnapshot().NumDirtyCards())
	}
	return nil
}
