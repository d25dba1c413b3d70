package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/internal/app"
	"github.com/gge-tracker/gge-tracker-sub001/internal/config"
	"github.com/gge-tracker/gge-tracker-sub001/internal/platform/logging"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

const (
	exitPassFailed = 1
	exitBadConfig  = 2
	exitForced     = 3
)

func main() {
	_ = godotenv.Load()

	cliApp := &cli.App{
		Name:  "scraper",
		Usage: "run one fetch-reconcile-persist pass for a game server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Usage: "server name from the catalog", EnvVars: []string{"GGE_SERVER"}},
			&cli.BoolFlag{Name: "dry-run", Usage: "fetch and reconcile without writing"},
			&cli.DurationFlag{Name: "force-exit-after", Usage: "kill the process if the pass runs longer than this"},
		},
		Action: run,
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if exitErr, ok := err.(cli.ExitCoder); ok {
			os.Exit(exitErr.ExitCode())
		}
		os.Exit(exitPassFailed)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return cli.Exit(fmt.Sprintf("load config: %v", err), exitBadConfig)
	}
	applyFlags(&cfg, c)

	logger := logging.New(cfg.LogLevel, cfg.LogFormat).Named("scraper")
	logging.SetDefault(logger)
	defer func() { _ = logger.Sync() }()

	catalog, err := config.LoadCatalog(cfg.ServersFile)
	if err != nil {
		return cli.Exit(err.Error(), exitBadConfig)
	}
	server, ok := catalog.Lookup(cfg.Server)
	if !ok {
		return cli.Exit(fmt.Sprintf("unknown server %q", cfg.Server), exitBadConfig)
	}
	logger = logger.With("server", server.Name)

	// Hard deadline for the whole process, independent of ctx.
	guard := time.AfterFunc(cfg.ForceExitAfter, func() {
		logger.Error("pass exceeded deadline, forcing exit", "after", cfg.ForceExitAfter)
		_ = logger.Sync()
		os.Exit(exitForced)
	})
	defer guard.Stop()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scraper, err := app.NewScraper(ctx, cfg, server, logger)
	if err != nil {
		logger.Error("build scraper", "error", err)
		return cli.Exit(err.Error(), exitPassFailed)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := scraper.Close(closeCtx); err != nil {
			logger.Warn("close scraper", "error", err)
		}
	}()

	report, err := scraper.Run(ctx)
	if err != nil {
		logger.Error("pass aborted", "error", err)
		return cli.Exit(err.Error(), exitPassFailed)
	}
	if !report.Succeeded() {
		return cli.Exit(fmt.Sprintf("pass %s finished with %d critical errors", report.PassID, report.CriticalErrors), exitPassFailed)
	}
	return nil
}

func applyFlags(cfg *config.Config, c *cli.Context) {
	if c.IsSet("server") {
		cfg.Server = c.String("server")
	}
	if c.IsSet("dry-run") {
		cfg.DryRun = c.Bool("dry-run")
	}
	if c.IsSet("force-exit-after") && c.Duration("force-exit-after") > 0 {
		cfg.ForceExitAfter = c.Duration("force-exit-after")
	}
}
