package main

import (
	"flag"
	"testing"
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/internal/config"
	"github.com/urfave/cli/v2"
)

func TestApplyFlags_OverridesOnlySetFlags(t *testing.T) {
	t.Parallel()

	set := flag.NewFlagSet("scraper", flag.ContinueOnError)
	set.String("server", "", "")
	set.Bool("dry-run", false, "")
	set.Duration("force-exit-after", 0, "")
	if err := set.Parse([]string{"--server", "fr1", "--dry-run"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	c := cli.NewContext(cli.NewApp(), set, nil)

	cfg := config.Config{Server: "de1", ForceExitAfter: 25 * time.Minute}
	applyFlags(&cfg, c)

	if cfg.Server != "fr1" || !cfg.DryRun {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.ForceExitAfter != 25*time.Minute {
		t.Fatalf("unset flag must not change force exit: %s", cfg.ForceExitAfter)
	}
}
