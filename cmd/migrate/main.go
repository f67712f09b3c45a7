package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/foodfund-backend/pkg/config"
	"github.com/angelmondragon/foodfund-backend/pkg/db"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
	"github.com/angelmondragon/foodfund-backend/pkg/migrate"
)

func main() {
	cmd := flag.String("cmd", "up", "up|down|status|to|create|validate")
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	name := flag.String("name", "", "migration name for -cmd=create")
	target := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=to")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := logg.WithField(context.Background(), "cmd", *cmd)

	switch *cmd {
	case "create":
		if *name == "" {
			fail(ctx, logg, "missing -name", nil)
		}
		out := *dir
		if out == "" {
			out = migrate.SourceDir
		}
		path, err := migrate.Create(out, *name, time.Now())
		if err != nil {
			fail(ctx, logg, "create migration", err)
		}
		logg.Info(logg.WithField(ctx, "path", path), "migration created")
		return
	case "validate":
		if err := migrate.Validate(migrate.Source(*dir)); err != nil {
			fail(ctx, logg, "migrations are invalid", err)
		}
		logg.Info(ctx, "migrations are valid")
		return
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fail(ctx, logg, "load config", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(context.Background(), map[string]any{"cmd": *cmd, "env": cfg.App.Env})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		fail(ctx, logg, "connect database", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		fail(ctx, logg, "sql handle", err)
	}
	runner, err := migrate.NewRunner(sqlDB, migrate.Source(*dir))
	if err != nil {
		fail(ctx, logg, "build migration runner", err)
	}

	switch *cmd {
	case "up":
		applied, err := runner.Up(ctx)
		if err != nil {
			fail(ctx, logg, "migrate up", err)
		}
		logg.Info(logg.WithField(ctx, "applied", applied), "migrations applied")
	case "down":
		version, err := runner.Down(ctx)
		if err != nil {
			fail(ctx, logg, "migrate down", err)
		}
		logg.Info(logg.WithField(ctx, "version", version), "migration rolled back")
	case "to":
		v, err := strconv.ParseInt(*target, 10, 64)
		if err != nil {
			fail(ctx, logg, "-version must be YYYYMMDDHHMMSS", err)
		}
		if _, err := runner.To(ctx, v); err != nil {
			fail(ctx, logg, "migrate to version", err)
		}
		logg.Info(logg.WithField(ctx, "version", v), "schema at version")
	case "status":
		states, err := runner.Status(ctx)
		if err != nil {
			fail(ctx, logg, "migration status", err)
		}
		for _, s := range states {
			state := "pending"
			if s.Applied {
				state = "applied"
			}
			fmt.Printf("%d\t%-8s\t%s\n", s.Version, state, s.File)
		}
	default:
		fail(ctx, logg, "unknown -cmd "+*cmd, nil)
	}
}

func fail(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if err == nil {
		err = fmt.Errorf("%s", msg)
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}
