package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/glimpse/internal/api"
	"github.com/samcharles93/glimpse/internal/inference"
	"github.com/samcharles93/glimpse/internal/logger"
	"github.com/samcharles93/glimpse/internal/metrics"
)

func serveCmd() *cli.Command {
	var (
		addr         string
		readTimeout  time.Duration
		writeTimeout time.Duration
		rateLimit    float64
		rateBurst    int64
		reject       bool
		maxBody      int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the answers API and web page",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.DurationFlag{
				Name:        "write-timeout",
				Usage:       "per-event write deadline for streamed answers",
				Value:       10 * time.Second,
				Destination: &writeTimeout,
			},
			&cli.Float64Flag{
				Name:        "rate-limit",
				Usage:       "answers per second admitted (0 = unlimited)",
				Destination: &rateLimit,
			},
			&cli.Int64Flag{
				Name:        "rate-burst",
				Usage:       "burst size for --rate-limit",
				Value:       1,
				Destination: &rateBurst,
			},
			&cli.BoolFlag{
				Name:        "reject-concurrent",
				Usage:       "answer 429 while a generation is running instead of queueing",
				Destination: &reject,
			},
			&cli.Int64Flag{
				Name:        "max-body",
				Usage:       "maximum request body size in bytes",
				Value:       32 << 20,
				Destination: &maxBody,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			fileCfg, err := LoadConfig(configFile)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			applyServeConfig(c, fileCfg, &addr, &rateLimit, &reject)

			cfg, err := engineConfig(ctx, c)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: resolve model: %v", err), 1)
			}
			reg := metrics.New()
			cfg.Metrics = reg
			cfg.RejectConcurrent = reject
			eng, err := inference.Load(ctx, cfg)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer func() { _ = eng.Close() }()

			server := api.NewServer(api.Config{
				Engine:       eng,
				Logger:       log,
				Metrics:      reg,
				RateLimit:    rateLimit,
				RateBurst:    int(rateBurst),
				MaxBodyBytes: maxBody,
				WriteTimeout: writeTimeout,
			})
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "reject_concurrent", reject, "rate_limit", rateLimit)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					srv.Handler = server.Instrument(srv.Handler)
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
