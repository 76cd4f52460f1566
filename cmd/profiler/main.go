// Package main is the entry point for the line-protocol profiler.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/loadgen/profiler/internal/api"
	"github.com/loadgen/profiler/internal/config"
	"github.com/loadgen/profiler/internal/pipeline"
	"github.com/loadgen/profiler/internal/recipe"
	"github.com/loadgen/profiler/internal/storage"
	"github.com/loadgen/profiler/internal/substrate"
)

func main() {
	cmd := &cli.Command{
		Name:  "profiler",
		Usage: "profile line-protocol batches into statistical recipes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			serveCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("profiler: %v", err)
	}
}

func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return cfg, err
	}

	if v := cmd.String("input"); v != "" {
		cfg.Input = v
	}
	if v := cmd.String("output"); v != "" {
		cfg.Output = v
	}
	if v := cmd.String("substrate"); v != "" {
		cfg.Substrate.Backend = v
	}
	if v := cmd.String("sqlite-path"); v != "" {
		cfg.Substrate.SQLitePath = v
	}
	if v := cmd.Int("sample-limit"); v > 0 {
		cfg.SampleLimit = int(v)
	}
	if v := cmd.String("listen"); v != "" {
		cfg.ListenAddr = v
	}
	return cfg, cfg.Validate()
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "profile one input batch and write recipes and reports",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "input batch root"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output directory"},
			&cli.StringFlag{Name: "substrate", Usage: "substrate backend (memory or sqlite)"},
			&cli.StringFlag{Name: "sqlite-path", Usage: "sqlite database file"},
			&cli.IntFlag{Name: "sample-limit", Usage: "per-family sample bound"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			store, err := substrate.New(substrate.Config{
				Backend:    cfg.Substrate.Backend,
				SQLitePath: cfg.Substrate.SQLitePath,
			})
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					log.Printf("Error closing substrate: %v", err)
				}
			}()

			writer, err := storage.NewWriter(cfg.Output)
			if err != nil {
				return err
			}

			p := pipeline.New(
				storage.NewReader(cfg.Input),
				writer,
				store,
				recipe.NewBuilder(store, recipe.Config{SampleLimit: cfg.SampleLimit, TopK: cfg.TopK}),
				pipeline.NewMetrics(prometheus.DefaultRegisterer),
			)

			summary, err := p.Run(ctx)
			if err != nil {
				return err
			}
			log.Printf("Wrote %d recipes and %d span recipes to %s (run %s)",
				summary.Processing.RecipesWritten, summary.Processing.SpanRecipes, cfg.Output, summary.RunID)
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve a completed output directory over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output directory to serve"},
			&cli.StringFlag{Name: "listen", Aliases: []string{"l"}, Usage: "listen address"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			library, err := storage.NewLibrary(cfg.Output)
			if err != nil {
				return err
			}
			if !library.Completed() {
				log.Printf("Warning: %s has no completion marker; serving anyway", cfg.Output)
			}

			server := api.NewServer(cfg.ListenAddr, library)

			errChan := make(chan error, 1)
			go func() {
				log.Printf("Serving %s on %s", cfg.Output, cfg.ListenAddr)
				errChan <- server.Start()
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errChan:
				return fmt.Errorf("API server error: %w", err)
			case sig := <-sigChan:
				log.Printf("Received signal: %v, shutting down...", sig)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}
