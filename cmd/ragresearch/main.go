package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ragresearch/internal/app"
	"ragresearch/internal/config"
	"ragresearch/internal/logging"
)

func main() {
	once := flag.Bool("once", false, "run the full pipeline once and exit")
	stage := flag.String("stage", "", "run a single stage (fetch|parse|embed|summarize) and exit")
	query := flag.String("query", "", "run a similarity search and exit")
	topK := flag.Int("k", 5, "number of search results")
	status := flag.Bool("status", false, "print corpus status and exit")
	recent := flag.Int("recent", 0, "print the N most recent papers and exit")
	summaryFor := flag.String("summary", "", "print the stored summary for a paper id and exit")
	resetCosts := flag.Bool("reset-costs", false, "clear the cumulative cost ledger and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch {
	case *resetCosts:
		exitOn(application.ResetCosts(ctx), logger)
	case *status:
		exitOn(printJSON(func() (any, error) {
			return application.Pipeline().GetStatus(ctx)
		}), logger)
	case *recent > 0:
		exitOn(printJSON(func() (any, error) {
			return application.Pipeline().GetRecentPapers(ctx, *recent)
		}), logger)
	case *summaryFor != "":
		exitOn(printJSON(func() (any, error) {
			summary, found, err := application.Pipeline().GetPaperSummary(ctx, *summaryFor)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, fmt.Errorf("no summary stored for %s", *summaryFor)
			}
			return summary, nil
		}), logger)
	case *query != "":
		exitOn(printJSON(func() (any, error) {
			return application.Pipeline().SearchPapers(ctx, *query, *topK)
		}), logger)
	case *stage != "":
		exitOn(runStage(ctx, application, *stage), logger)
	case *once:
		_, err := application.RunOnce(ctx)
		exitOn(err, logger)
	default:
		serve(ctx, cancel, application, logger)
	}
}

func runStage(ctx context.Context, application *app.Application, stage string) error {
	switch stage {
	case "fetch":
		return printJSON(func() (any, error) { return application.Pipeline().FetchRecent(ctx) })
	case "parse":
		return printJSON(func() (any, error) { return application.Pipeline().ParseAllUnprocessed(ctx) })
	case "embed":
		return printJSON(func() (any, error) { return application.Pipeline().ProcessAllPapers(ctx) })
	case "summarize":
		return printJSON(func() (any, error) { return application.Pipeline().SummarizeBatch(ctx) })
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
}

func serve(ctx context.Context, cancel context.CancelFunc, application *app.Application, logger *slog.Logger) {
	if err := application.Start(ctx); err != nil {
		logger.Error("scheduler start failed", "error", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := application.Stop(stopCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
		os.Exit(1)
	}
}

func printJSON(fn func() (any, error)) error {
	v, err := fn()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func exitOn(err error, logger *slog.Logger) {
	if err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
