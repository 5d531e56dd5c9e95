package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stemsi/lms-backend/internal/config"
	"github.com/stemsi/lms-backend/internal/logger"
)

const usage = `Usage: migrate [-path dir] <command>

Commands:
  up              apply every pending migration
  down            roll back every migration
  steps <n>       apply n migrations (negative rolls back)
  version         print the current schema version
  force <version> mark the schema as clean at version
`

func main() {
	dir := flag.String("path", "migrations", "Directory holding the SQL migrations")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := config.Load()
	log := logger.Component(logger.Setup(cfg.LogLevel, cfg.LogFormat), "migrate")

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}

	m, err := migrate.New("file://"+*dir, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("path", *dir).Msg("Failed to initialize migrations")
	}
	defer m.Close()

	switch args[0] {
	case "up":
		err = ignoreNoChange(m.Up())
	case "down":
		err = ignoreNoChange(m.Down())
	case "steps":
		var n int
		if n, err = intArg(args, "steps"); err == nil {
			err = ignoreNoChange(m.Steps(n))
		}
	case "force":
		var v int
		if v, err = intArg(args, "force"); err == nil {
			err = m.Force(v)
		}
	case "version":
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", args[0]).Msg("Migration failed")
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		log.Fatal().Err(err).Msg("Failed to read schema version")
	}
	log.Info().Str("command", args[0]).Uint("version", version).Bool("dirty", dirty).Msg("Schema ready")
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func intArg(args []string, command string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s requires a numeric argument", command)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", command, err)
	}
	return n, nil
}
