package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/migrate"
)

type options struct {
	dir     string
	name    string
	version string
}

// target is the open database a command runs against.
type target struct {
	client *db.Client
	sql    *sql.DB
	sqlite bool
}

type command struct {
	needsDB bool
	run     func(ctx context.Context, opts options, t *target) error
}

var commands = map[string]command{
	"create": {run: func(_ context.Context, opts options, _ *target) error {
		if opts.name == "" {
			return errors.New("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	}},
	"validate": {run: func(_ context.Context, opts options, _ *target) error {
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return err
		}
		fmt.Println("migration validation passed")
		return nil
	}},
	"up": {needsDB: true, run: func(ctx context.Context, opts options, t *target) error {
		// local sqlite databases get the flattened schema instead of goose history
		if t.sqlite {
			return migrate.ApplySQLiteSchema(ctx, t.client.DB())
		}
		return migrate.Run(ctx, t.sql, opts.dir, "up")
	}},
	"down":   gooseOnly("down"),
	"status": gooseOnly("status"),
	"version": {needsDB: true, run: func(ctx context.Context, opts options, t *target) error {
		if t.sqlite {
			return errors.New("version is not supported on sqlite")
		}
		if opts.version == "" {
			return errors.New("missing -version for version")
		}
		return migrate.MigrateToVersion(ctx, t.sql, opts.dir, opts.version)
	}},
}

func gooseOnly(name string) command {
	return command{needsDB: true, run: func(ctx context.Context, opts options, t *target) error {
		if t.sqlite {
			return fmt.Errorf("%s is not supported on sqlite", name)
		}
		return migrate.Run(ctx, t.sql, opts.dir, name)
	}}
}

func commandNames() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	var opts options
	name := flag.String("cmd", "up", "migration command: "+commandNames())
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	cmd, ok := commands[*name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown -cmd %q, want one of %s\n", *name, commandNames())
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.App.Env,
		"cmd":    *name,
		"dir":    opts.dir,
		"driver": cfg.DB.Driver,
	})

	var t *target
	if cmd.needsDB {
		client, err := db.New(ctx, cfg.DB, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap database", err)
			os.Exit(1)
		}
		defer client.Close()

		sqlDB, err := client.DB().DB()
		if err != nil {
			logg.Error(ctx, "failed to open sql handle", err)
			os.Exit(1)
		}
		t = &target{client: client, sql: sqlDB, sqlite: cfg.DB.IsSQLite()}
	}

	if err := cmd.run(ctx, opts, t); err != nil {
		logg.Error(ctx, "migration command failed", err)
		os.Exit(1)
	}
	logg.Info(ctx, "migration command finished")
}
