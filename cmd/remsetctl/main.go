package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/QuangTung97/remset/config"
	"github.com/QuangTung97/remset/heap"
	"github.com/QuangTung97/remset/logutil"
)

var logger = logutil.GetLogger("remsetctl")

func main() {
	app := &cli.App{
		Name:  "remsetctl",
		Usage: "build a simulated generational heap and inspect its remembered set",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "TOML config file",
			},
			&cli.BoolFlag{
				Name:  "no-remembered-set",
				Usage: "use a single generation heap",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug log",
			},
		},
		Commands: []*cli.Command{
			scenarioFlags(),
			dumpFlags(),
			verifyFlags(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatalf("%+v", err)
	}
}

func loadConfig(ctx *cli.Context) (config.Config, error) {
	conf := config.Default()
	if path := ctx.String("config"); path != "" {
		var err error
		conf, err = config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
	}
	if ctx.Bool("no-remembered-set") {
		conf.UseRememberedSet = false
	}
	if ctx.Bool("verbose") {
		conf.LogLevel = "debug"
	}
	if err := conf.Apply(); err != nil {
		return config.Config{}, err
	}
	return conf, nil
}

func openHeap(ctx *cli.Context) (config.Config, *heap.Heap, error) {
	conf, err := loadConfig(ctx)
	if err != nil {
		return config.Config{}, nil, err
	}
	h, err := heap.New(conf.Heap())
	if err != nil {
		return config.Config{}, nil, errors.Wrap(err, "create heap")
	}
	return conf, h, nil
}
