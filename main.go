package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/liadmor/AdvPro-EX5/internal/config"
	"github.com/liadmor/AdvPro-EX5/internal/database"
	"github.com/liadmor/AdvPro-EX5/internal/service"
	"github.com/liadmor/AdvPro-EX5/pkg/logger"
	"github.com/rs/zerolog"
)

func main() {
	migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)
	migrateLocation := migrateCmd.String("location", "", "database location (overrides config)")

	exercisesCmd := flag.NewFlagSet("exercises", flag.ExitOnError)
	exercisesLocation := exercisesCmd.String("location", "", "database location (overrides config)")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: smarticulous <migrate|exercises> [-location path]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewWithConfig(cfg.Logging.Level, cfg.Logging.Pretty, cfg.Logging.NoColor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "migrate":
		migrateCmd.Parse(os.Args[2:])
		runMigrations(ctx, log, locationOr(*migrateLocation, cfg), cfg)
	case "exercises":
		exercisesCmd.Parse(os.Args[2:])
		listExercises(ctx, log, locationOr(*exercisesLocation, cfg), cfg)
	default:
		log.Fatal().Str("command", os.Args[1]).Msg("Unknown command. Use 'migrate' or 'exercises'")
	}
}

func locationOr(flagValue string, cfg *config.Config) string {
	if flagValue != "" {
		return flagValue
	}
	return cfg.Database.Location
}

func runMigrations(ctx context.Context, log zerolog.Logger, location string, cfg *config.Config) {
	loc, err := database.ParseLocation(location)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid database location")
	}

	db, err := database.Open(ctx, loc, cfg.Database.PingTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	migrator, err := database.NewMigrator(ctx, db, loc.Dialect)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migrator")
	}
	defer migrator.Release()

	if err := migrator.Up(); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read schema version")
	}

	log.Info().
		Str("dialect", string(loc.Dialect)).
		Uint("version", version).
		Bool("dirty", dirty).
		Msg("Schema is up to date")
}

func listExercises(ctx context.Context, log zerolog.Logger, location string, cfg *config.Config) {
	store, err := service.Open(ctx, location,
		service.WithLogger(log),
		service.WithBcryptCost(cfg.Security.BcryptCost),
		service.WithPingTimeout(cfg.Database.PingTimeout),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open grade store")
	}
	defer store.Close()

	exercises, err := store.LoadExercises(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load exercises")
		return
	}

	for _, e := range exercises {
		log.Info().
			Int("exercise_id", e.ID).
			Str("name", e.Name).
			Time("due_date", e.DueDate).
			Int("questions", len(e.Questions)).
			Int("points", e.TotalPoints()).
			Msg("Exercise")
	}
	log.Info().Int("total", len(exercises)).Msg("Exercises loaded")
}
