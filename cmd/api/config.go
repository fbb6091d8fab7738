package main

import (
	"time"

	"github.com/alecthomas/kingpin/v2"
)

const (
	loggerTypeText = "text"
	loggerTypeJSON = "json"

	storageMemory   = "memory"
	storagePostgres = "postgres"
)

// Config is the process configuration. Every flag can be set from the environment.
type Config struct {
	Debug      bool
	LoggerType string

	Port          string
	StorageDriver string
	DatabaseURL   string
	Migrate       bool
	SeedFile      string

	JWTSecret string
	RedisAddr string
	NATSURL   string

	PositionCapacity         int
	MaintenanceInterval      time.Duration
	MaintenanceSweepInterval time.Duration
	MaintenanceWarnWindow    time.Duration
}

func newConfig(app *kingpin.Application) *Config {
	c := &Config{}

	app.Flag("debug", "Enable debug mode.").Envar("DEBUG").BoolVar(&c.Debug)
	app.Flag("log-format", "Selects the log format.").Envar("LOG_FORMAT").Default(loggerTypeText).EnumVar(&c.LoggerType, loggerTypeText, loggerTypeJSON)

	app.Flag("port", "HTTP listen port.").Envar("APP_PORT").Default("8080").StringVar(&c.Port)
	app.Flag("storage", "Storage driver, postgres when a database URL is set.").Envar("STORAGE_DRIVER").EnumVar(&c.StorageDriver, storageMemory, storagePostgres)
	app.Flag("database-url", "Postgres connection URL.").Envar("DATABASE_URL").StringVar(&c.DatabaseURL)
	app.Flag("migrate", "Apply schema migrations on start.").Envar("DB_MIGRATE").Default("true").BoolVar(&c.Migrate)
	app.Flag("seed-file", "YAML fixture applied on start.").Envar("SEED_FILE").StringVar(&c.SeedFile)

	app.Flag("jwt-secret", "Secret used to verify bearer tokens.").Envar("JWT_SECRET").StringVar(&c.JWTSecret)
	app.Flag("redis-addr", "Redis address for the idempotency guard.").Envar("REDIS_ADDR").StringVar(&c.RedisAddr)
	app.Flag("nats-url", "NATS URL for domain events.").Envar("NATS_URL").StringVar(&c.NATSURL)

	app.Flag("position-capacity", "Units a position can hold.").Envar("POSITION_CAPACITY").Default("9").IntVar(&c.PositionCapacity)
	app.Flag("maintenance-interval", "Time between forklift maintenances.").Envar("MAINTENANCE_INTERVAL").Default("2160h").DurationVar(&c.MaintenanceInterval)
	app.Flag("maintenance-sweep-interval", "How often maintenance due forklifts are checked.").Envar("MAINTENANCE_SWEEP_INTERVAL").Default("1h").DurationVar(&c.MaintenanceSweepInterval)
	app.Flag("maintenance-warn-window", "How long before maintenance is due forklifts are reported.").Envar("MAINTENANCE_WARN_WINDOW").Default("168h").DurationVar(&c.MaintenanceWarnWindow)

	return c
}

func (c *Config) storageDriver() string {
	if c.StorageDriver != "" {
		return c.StorageDriver
	}
	if c.DatabaseURL != "" {
		return storagePostgres
	}
	return storageMemory
}
