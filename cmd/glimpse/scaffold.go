package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/glimpse/internal/logger"
	"github.com/samcharles93/glimpse/internal/model/linear"
)

func scaffoldCmd() *cli.Command {
	var (
		out    string
		hidden int64
		patch  int64
		seed   int64
	)
	return &cli.Command{
		Name:  "scaffold",
		Usage: "Write a small random linear model directory for trying the pipeline end to end",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output directory",
				Required:    true,
				Destination: &out,
			},
			&cli.Int64Flag{
				Name:        "hidden",
				Usage:       "hidden size",
				Value:       16,
				Destination: &hidden,
			},
			&cli.Int64Flag{
				Name:        "patch",
				Usage:       "patch size (must divide 378)",
				Value:       14,
				Destination: &patch,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "weight initialisation seed",
				Destination: &seed,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			arts, err := linear.Scaffold(out, linear.ScaffoldOptions{
				Hidden:    int(hidden),
				PatchSize: int(patch),
				Seed:      uint64(seed),
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: scaffold: %v", err), 1)
			}
			logger.FromContext(ctx).Info("model written",
				"dir", arts.Dir, "config", arts.Config, "weights", arts.Weights, "tokenizer", arts.Tokenizer)
			return nil
		},
	}
}
