// Package config resolves server settings from flags, environment and a TOML file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Recovery RecoveryConfig
	SMTP     SMTPConfig
	Mail     MailConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	MaxBodySize int // in MB
	CORSOrigins []string
	HealthAddr  string // gRPC health listener, empty disables it
	Reflection  bool   // gRPC server reflection, dev only
}

// Addr is the HTTP listen address.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

type DatabaseConfig struct {
	Driver string
	DSN    string
}

type JWTConfig struct {
	Secret    string
	Algorithm string
	TTL       time.Duration
}

type RecoveryConfig struct {
	FrontendURL      string
	LinkTTL          time.Duration
	HideUnknownEmail bool
}

// SMTPConfig configures the outgoing mail server. An empty Host disables SMTP.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

// Enabled reports whether emails should go through SMTP.
func (s SMTPConfig) Enabled() bool { return s.Host != "" }

type MailConfig struct {
	Workers int
	Queue   int
	Timeout time.Duration
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			MaxBodySize: int(cmd.Int("max-body-size")),
			CORSOrigins: splitList(cmd.StringSlice("cors-origins")),
			HealthAddr:  cmd.String("health-addr"),
			Reflection:  cmd.Bool("grpc-reflection"),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(cmd.String("database-driver")),
			DSN:    cmd.String("database-dsn"),
		},
		JWT: JWTConfig{
			Secret:    cmd.String("jwt-secret"),
			Algorithm: strings.ToUpper(cmd.String("jwt-algorithm")),
			TTL:       cmd.Duration("jwt-ttl"),
		},
		Recovery: RecoveryConfig{
			FrontendURL:      strings.TrimRight(cmd.String("frontend-url"), "/"),
			LinkTTL:          cmd.Duration("link-ttl"),
			HideUnknownEmail: cmd.Bool("hide-unknown-email"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		Mail: MailConfig{
			Workers: int(cmd.Int("mail-workers")),
			Queue:   int(cmd.Int("mail-queue")),
			Timeout: cmd.Duration("mail-timeout"),
		},
	}

	if len(cfg.Server.CORSOrigins) == 0 && cfg.Recovery.FrontendURL != "" {
		cfg.Server.CORSOrigins = []string{cfg.Recovery.FrontendURL}
	}
	return cfg
}

// splitList accepts both repeated flags and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, v := range in {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var problems []error
	if c.JWT.Secret == "" {
		problems = append(problems, errors.New("jwt secret is required (--jwt-secret or SECRET_KEY)"))
	}
	switch c.JWT.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		problems = append(problems, fmt.Errorf("unsupported jwt algorithm %q", c.JWT.Algorithm))
	}
	if c.JWT.TTL <= 0 {
		problems = append(problems, errors.New("jwt ttl must be positive"))
	}
	if c.Recovery.LinkTTL <= 0 {
		problems = append(problems, errors.New("link ttl must be positive"))
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		problems = append(problems, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		problems = append(problems, errors.New("database dsn is required"))
	}
	if c.SMTP.Enabled() && c.SMTP.From == "" {
		problems = append(problems, errors.New("smtp from address is required when smtp host is set"))
	}
	return errors.Join(problems...)
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.StringSliceFlag{
			Name:    "cors-origins",
			Usage:   "Allowed CORS origins (defaults to the frontend url)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("CORS_ORIGINS"), toml.TOML("server.cors_origins", configFile)),
		},
		&cli.StringFlag{
			Name:    "health-addr",
			Value:   ":9090",
			Usage:   "gRPC health listen address, empty disables it",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HEALTH_ADDR"), toml.TOML("server.health_addr", configFile)),
		},
		&cli.BoolFlag{
			Name:    "grpc-reflection",
			Usage:   "Enable gRPC server reflection on the health listener (dev only)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("GRPC_REFLECTION"), toml.TOML("server.grpc_reflection", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "json",
			Usage:   "Log format (json, console)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-driver",
			Value:   DriverSQLite,
			Usage:   "Database driver (sqlite, postgres)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DRIVER"), toml.TOML("database.driver", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/plaze.db",
			Usage:   "Database DSN",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		&cli.StringFlag{
			Name:    "jwt-secret",
			Usage:   "HMAC signing secret (required)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SECRET_KEY"), toml.TOML("jwt.secret", configFile)),
		},
		&cli.StringFlag{
			Name:    "jwt-algorithm",
			Value:   "HS256",
			Usage:   "Signing algorithm (HS256, HS384, HS512)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("ALGORITHM"), toml.TOML("jwt.algorithm", configFile)),
		},
		&cli.DurationFlag{
			Name:    "jwt-ttl",
			Value:   30 * time.Minute,
			Usage:   "Access token lifetime",
			Sources: cli.NewValueSourceChain(cli.EnvVar("ACCESS_TOKEN_TTL"), toml.TOML("jwt.ttl", configFile)),
		},
		&cli.StringFlag{
			Name:    "frontend-url",
			Value:   "http://localhost:3000",
			Usage:   "Frontend base URL used in emailed links",
			Sources: cli.NewValueSourceChain(cli.EnvVar("FRONTEND_URL"), toml.TOML("recovery.frontend_url", configFile)),
		},
		&cli.DurationFlag{
			Name:    "link-ttl",
			Value:   time.Hour,
			Usage:   "Lifetime of recovery and verification links",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LINK_TTL"), toml.TOML("recovery.link_ttl", configFile)),
		},
		&cli.BoolFlag{
			Name:    "hide-unknown-email",
			Usage:   "Answer password recovery for unknown emails with success",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HIDE_UNKNOWN_EMAIL"), toml.TOML("recovery.hide_unknown_email", configFile)),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP host, empty logs emails instead of sending them",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   465,
			Usage:   "SMTP port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_USERNAME"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PASSWORD"), toml.TOML("smtp.password", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "Plaze",
			Usage:   "Sender display name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS (implicit on 465, STARTTLS otherwise)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
		// Mail dispatch flags
		&cli.IntFlag{
			Name:    "mail-workers",
			Value:   2,
			Usage:   "Background email workers",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAIL_WORKERS"), toml.TOML("mail.workers", configFile)),
		},
		&cli.IntFlag{
			Name:    "mail-queue",
			Value:   64,
			Usage:   "Pending email queue size",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAIL_QUEUE"), toml.TOML("mail.queue", configFile)),
		},
		&cli.DurationFlag{
			Name:    "mail-timeout",
			Value:   15 * time.Second,
			Usage:   "Timeout for a single email",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAIL_TIMEOUT"), toml.TOML("mail.timeout", configFile)),
		},
	}
}
