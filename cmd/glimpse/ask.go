package main

import (
	"context"
	"fmt"
	"image"
	"os"
	"runtime/pprof"
	"time"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/glimpse/internal/imageproc"
	"github.com/samcharles93/glimpse/internal/inference"
)

const defaultQuestion = "Describe this image."

func askCmd() *cli.Command {
	var (
		imagePath  string
		rawPath    string
		width      int64
		height     int64
		channels   int64
		question   string
		streamMode string
		rawOutput  bool
		jsonOutput bool
		cpuProfile string
	)

	return &cli.Command{
		Name:  "ask",
		Usage: "Answer a question about an image",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "image",
				Aliases:     []string{"i"},
				Usage:       "image file (png, jpeg, gif, bmp, tiff, webp)",
				Destination: &imagePath,
			},
			&cli.StringFlag{
				Name:        "raw-rgba",
				Usage:       "raw interleaved pixel dump, as written by a screen capture",
				Destination: &rawPath,
			},
			&cli.Int64Flag{
				Name:        "width",
				Usage:       "width of --raw-rgba in pixels",
				Destination: &width,
			},
			&cli.Int64Flag{
				Name:        "height",
				Usage:       "height of --raw-rgba in pixels",
				Destination: &height,
			},
			&cli.Int64Flag{
				Name:        "channels",
				Usage:       "channels per pixel in --raw-rgba (3 or 4)",
				Value:       4,
				Destination: &channels,
			},
			&cli.StringFlag{
				Name:        "question",
				Aliases:     []string{"q"},
				Usage:       "question to ask",
				Value:       defaultQuestion,
				Destination: &question,
			},
			&cli.StringFlag{
				Name:        "stream-mode",
				Usage:       "output mode (instant, typewriter, quiet)",
				Value:       string(StreamInstant),
				Destination: &streamMode,
			},
			&cli.BoolFlag{
				Name:        "raw",
				Usage:       "escape control characters in the answer",
				Destination: &rawOutput,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the result as JSON instead of streaming text",
				Destination: &jsonOutput,
			},
			&cli.StringFlag{
				Name:        "cpuprofile",
				Usage:       "write cpu profile to file",
				Destination: &cpuProfile,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			fileCfg, err := LoadConfig(configFile)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			applyAskConfig(c, fileCfg, &streamMode)

			mode, err := parseStreamMode(streamMode)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if jsonOutput {
				mode = StreamQuiet
			}

			img, err := loadAskImage(imagePath, rawPath, int(width), int(height), int(channels))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			if cpuProfile != "" {
				f, err := os.Create(cpuProfile)
				if err != nil {
					return cli.Exit(fmt.Sprintf("could not create CPU profile: %v", err), 1)
				}
				defer func() { _ = f.Close() }()
				if err := pprof.StartCPUProfile(f); err != nil {
					return cli.Exit(fmt.Sprintf("could not start CPU profile: %v", err), 1)
				}
				defer pprof.StopCPUProfile()
			}

			cfg, err := engineConfig(ctx, c)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: resolve model: %v", err), 1)
			}
			eng, err := inference.Load(ctx, cfg)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer func() { _ = eng.Close() }()

			out := NewStreamWriter(stdout(c), mode, rawOutput)
			res, err := eng.Ask(ctx, img, question, out.Write)
			if err != nil {
				if out.Text() != "" && mode != StreamQuiet {
					out.Finish("")
				}
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			if jsonOutput {
				enc := json.NewEncoder(stdout(c))
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Question string `json:"question"`
					*inference.Result
				}{question, res})
			}
			out.Finish(res.Answer)
			_, _ = fmt.Fprintf(stderr(c), "%d tokens, stop: %s, %s, %.1f tok/s\n",
				res.Stats.TokensGenerated, res.Stats.StopReason,
				res.Stats.Duration.Round(time.Millisecond), res.Stats.TPS)
			return nil
		},
	}
}

func loadAskImage(imagePath, rawPath string, width, height, channels int) (image.Image, error) {
	switch {
	case imagePath != "" && rawPath != "":
		return nil, fmt.Errorf("--image and --raw-rgba are mutually exclusive")
	case imagePath != "":
		return imageproc.DecodeFile(imagePath)
	case rawPath != "":
		buf, err := os.ReadFile(rawPath)
		if err != nil {
			return nil, err
		}
		return imageproc.FromRaw(width, height, channels, buf)
	default:
		return nil, fmt.Errorf("--image or --raw-rgba is required")
	}
}
