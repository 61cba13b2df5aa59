package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/QuangTung97/remset/memory"
)

func verifyFlags() *cli.Command {
	return &cli.Command{
		Name:   "verify",
		Usage:  "run the mutation scenario and verify the remembered set of every chunk",
		Action: verify,
		Flags: append(mutationFlags(),
			&cli.BoolFlag{
				Name:  "clean-first",
				Usage: "clean all cards before verifying, to see a failing verification",
			},
		),
	}
}

func verify(ctx *cli.Context) error {
	conf, h, err := openHeap(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = h.Close() }()

	objs, err := mutate(h, uintptr(conf.LargeObjectThreshold), mutationOptionsFrom(ctx))
	if err != nil {
		return err
	}
	if ctx.Bool("clean-first") {
		if err := h.ScanDirtyCards(true, func(_ memory.Pointer) error { return nil }); err != nil {
			return err
		}
	}

	if err := h.Verify(); err != nil {
		return errors.Wrapf(err, "verify heap of %d objects", len(objs))
	}
	fmt.Printf("remembered set of %d objects verified\n", len(objs))
	return nil
}
