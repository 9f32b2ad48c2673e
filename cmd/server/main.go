package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	auth "github.com/goliatone/go-session-auth"
	"github.com/goliatone/go-session-auth/activitymap"
	"github.com/goliatone/go-session-auth/mail"
	"github.com/goliatone/go-session-auth/metrics"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Println("============")
	fmt.Println(print.MaybeHighlightJSON(cfg.Redacted()))
	fmt.Println("============")

	lgr := newLogrus(cfg.Server)
	logger := auth.NewLogrusLogger(lgr, "app")

	if err := run(context.Background(), cfg, lgr); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg AppConfig, lgr *logrus.Logger) error {
	db, err := openDB(ctx, cfg.Server, auth.NewLogrusLogger(lgr, "persistence"))
	if err != nil {
		return err
	}
	defer db.Close()

	repo := auth.NewRepositoryManager(db)
	repo.MustValidate()

	sender, err := mail.NewSender(cfg.Mail, auth.NewLogrusLogger(lgr, "mail"))
	if err != nil {
		return err
	}

	sinks := auth.MultiActivitySink{
		activitymap.NewLogSink(lgr.WithField("logger", "activity")),
	}

	reg := prometheus.NewRegistry()
	if cfg.Server.Metrics {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		sink, err := metrics.NewSink(reg)
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
	}

	service, err := auth.NewService(cfg.Auth, repo.Principals())
	if err != nil {
		return err
	}

	service.
		WithLogger(auth.NewLogrusLogger(lgr, "auth")).
		WithMailer(sender).
		WithActivitySink(sinks).
		WithTransactionManager(repo)

	app := fiber.New(fiber.Config{
		AppName:               "session-auth",
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	if cfg.Server.Metrics {
		app.Get("/metrics", metrics.Handler(reg))
	}

	auth.RegisterRoutes(app,
		auth.WithControllerService(service),
		auth.WithControllerRepository(repo),
		auth.WithControllerLogger(auth.NewLogrusLogger(lgr, "http")),
	)

	errc := make(chan error, 1)
	go func() {
		lgr.WithField("addr", cfg.Server.Addr).Info("listening")
		errc <- app.Listen(cfg.Server.Addr)
	}()

	select {
	case err := <-errc:
		return err
	case sig := <-waitExitSignal():
		lgr.WithField("signal", sig.String()).Info("shutting down")
	}

	return app.ShutdownWithTimeout(10 * time.Second)
}

func openDB(ctx context.Context, cfg ServerConfig, logger auth.Logger) (*bun.DB, error) {
	var (
		sqldb   *sql.DB
		db      *bun.DB
		dialect string
		err     error
	)

	switch cfg.DBDriver {
	case driverPostgres:
		if sqldb, err = sql.Open("pgx", cfg.DSN); err != nil {
			return nil, err
		}
		db = bun.NewDB(sqldb, pgdialect.New())
		dialect = auth.DialectPostgres
	default:
		if sqldb, err = sql.Open(sqliteshim.ShimName, cfg.DSN); err != nil {
			return nil, err
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
		dialect = auth.DialectSQLite
	}

	if err := sqldb.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.DBDriver, err)
	}

	if err := auth.Migrate(ctx, sqldb, dialect, logger); err != nil {
		sqldb.Close()
		return nil, err
	}

	return db, nil
}

func newLogrus(cfg ServerConfig) *logrus.Logger {
	lgr := logrus.New()
	lgr.SetOutput(os.Stdout)

	if cfg.LogFormat == "json" {
		lgr.SetFormatter(&logrus.JSONFormatter{})
	} else {
		lgr.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	lgr.SetLevel(level)

	return lgr
}

func waitExitSignal() <-chan os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return ch
}
