package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gge-tracker/gge-tracker-sub001/internal/app"
	"github.com/gge-tracker/gge-tracker-sub001/internal/config"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	_ = godotenv.Load()

	cliApp := &cli.App{
		Name:  "migration",
		Usage: "apply schema migrations to every server database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "only migrate this server's database (default: every server in the catalog)",
				EnvVars: []string{"GGE_SERVER"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply all pending migrations",
				Action: forEachServer(func(m *migrate.Migrate, _ *cli.Context) error {
					return ignoreNoChange(m.Up())
				}),
			},
			{
				Name:      "down",
				Usage:     "roll back N migrations",
				ArgsUsage: "[steps]",
				Action: forEachServer(func(m *migrate.Migrate, c *cli.Context) error {
					steps, err := parseSteps(c.Args().Slice())
					if err != nil {
						return err
					}
					return ignoreNoChange(m.Steps(-steps))
				}),
			},
			{
				Name:  "version",
				Usage: "print the current schema version",
				Action: forEachServer(func(m *migrate.Migrate, _ *cli.Context) error {
					version, dirty, err := m.Version()
					if errors.Is(err, migrate.ErrNilVersion) {
						fmt.Println("  version: none, dirty: false")
						return nil
					}
					if err != nil {
						return fmt.Errorf("read version: %w", err)
					}
					fmt.Printf("  version: %d, dirty: %t\n", version, dirty)
					return nil
				}),
			},
			{
				Name:      "force",
				Usage:     "set the schema version without running migrations",
				ArgsUsage: "<version>",
				Action: forEachServer(func(m *migrate.Migrate, c *cli.Context) error {
					if c.NArg() < 1 {
						return errors.New("force requires a version argument")
					}
					version, err := parseVersion(c.Args().First())
					if err != nil {
						return err
					}
					return m.Force(version)
				}),
			},
			{
				Name:      "goto",
				Aliases:   []string{"migrate"},
				Usage:     "migrate up or down to a target version",
				ArgsUsage: "<version>",
				Action: forEachServer(func(m *migrate.Migrate, c *cli.Context) error {
					if c.NArg() < 1 {
						return errors.New("goto requires a target version argument")
					}
					target, err := parseTarget(c.Args().First())
					if err != nil {
						return err
					}
					return ignoreNoChange(m.Migrate(target))
				}),
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type migrationFunc func(m *migrate.Migrate, c *cli.Context) error

func forEachServer(fn migrationFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		catalog, err := config.LoadCatalog(cfg.ServersFile)
		if err != nil {
			return err
		}
		servers, err := selectServers(catalog, c.String("server"))
		if err != nil {
			return err
		}

		migrationsDir, err := resolveMigrationsDir()
		if err != nil {
			return fmt.Errorf("resolve migrations dir: %w", err)
		}
		sourceURL := "file://" + filepath.ToSlash(migrationsDir)

		for _, server := range servers {
			log.Printf("server %s (database=%s)", server.Name, server.Database)
			if err := runMigration(sourceURL, app.DatabaseURL(cfg, server.Database), c, fn); err != nil {
				return fmt.Errorf("server %s: %w", server.Name, err)
			}
		}
		return nil
	}
}

func runMigration(sourceURL, dbURL string, c *cli.Context, fn migrationFunc) error {
	m, err := migrate.New(sourceURL, dbURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer closeMigrator(m)
	return fn(m, c)
}

func selectServers(catalog config.Catalog, name string) ([]config.ServerDefinition, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return catalog.Servers(), nil
	}
	server, ok := catalog.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown server %q (known: %s)", name, strings.Join(catalog.Names(), ", "))
	}
	return []config.ServerDefinition{server}, nil
}

func parseSteps(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}

	steps, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil {
		return 0, fmt.Errorf("invalid down steps %q: %w", args[0], err)
	}
	if steps <= 0 {
		return 0, fmt.Errorf("down steps must be > 0")
	}

	return steps, nil
}

func parseVersion(raw string) (int, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", raw, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("version must be >= 0")
	}
	if value > int64(^uint(0)>>1) {
		return 0, fmt.Errorf("version is too large for this platform")
	}

	return int(value), nil
}

func parseTarget(raw string) (uint, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid target version %q: %w", raw, err)
	}
	return uint(value), nil
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		log.Printf("  no migration changes")
		return nil
	}
	return err
}

func closeMigrator(m *migrate.Migrate) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		log.Printf("close migration source: %v", srcErr)
	}
	if dbErr != nil {
		log.Printf("close migration db: %v", dbErr)
	}
}

func resolveMigrationsDir() (string, error) {
	candidates := []string{
		strings.TrimSpace(os.Getenv("MIGRATIONS_DIR")),
		"./db/migrations",
		"/app/db/migrations",
	}

	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			continue
		}
		return abs, nil
	}

	return "", fmt.Errorf("migration directory not found (checked MIGRATIONS_DIR, ./db/migrations, /app/db/migrations)")
}
