package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"bizreg/internal/app"
	"bizreg/internal/importer/models"
	jwttoken "bizreg/internal/jwt_token"
	"bizreg/internal/platform/config"
	"bizreg/internal/platform/logger"
	"bizreg/pkg/platform/audit"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:  "importer",
		Usage: "import the business register dump and publish a new generation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "file",
				Usage: "read the dump from a local file (plain or gzip) instead of DUMP_URL",
			},
		},
		Action: func(c *cli.Context) error {
			return runImport(c.Context, out, c.String("file"))
		},
		Commands: []*cli.Command{
			{
				Name:  "token",
				Usage: "issue an admin bearer token for the import trigger",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "subject", Value: "operator"},
					&cli.DurationFlag{Name: "ttl", Value: time.Hour},
				},
				Action: func(c *cli.Context) error {
					return issueToken(out, c.String("subject"), c.Duration("ttl"))
				},
			},
		},
	}
}

type importOutput struct {
	Status     models.Status `json:"status"`
	JobID      string        `json:"job_id"`
	Generation int64         `json:"generation,omitempty"`
	Companies  int64         `json:"companies"`
	Skipped    int64         `json:"skipped"`
	DurationMS int64         `json:"duration_ms"`
	Error      string        `json:"error,omitempty"`
}

func runImport(ctx context.Context, out io.Writer, file string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.NewWithWriter(os.Stderr, cfg.LogLevel)
	slog.SetDefault(log)

	stores, err := app.OpenStores(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer stores.Close()
	if stores.DB == nil {
		log.Warn("in-memory stores are discarded when the importer exits; set DATABASE_URL to persist")
	}

	opener, err := app.Opener(cfg.Import, file)
	if err != nil {
		return err
	}
	pub := app.Events(ctx, cfg.Kafka, log)
	defer pub.Close()

	pipeline, err := app.NewPipeline(cfg.Import, stores, opener, pub, log, nil)
	if err != nil {
		return err
	}
	res, runErr := pipeline.Run(ctx, models.ModeFull)
	pipeline.Wait()
	recordRun(ctx, stores.Audit, res, runErr, log)

	if err := writeResult(out, res); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("import failed: %w", runErr)
	}
	return nil
}

const cliActor = "importer-cli"

func recordRun(ctx context.Context, store audit.Store, res models.Result, runErr error, log *slog.Logger) {
	action := audit.ActionImportTriggered
	switch {
	case errors.Is(runErr, models.ErrAlreadyRunning):
		action = audit.ActionImportRejected
	case runErr != nil:
		action = audit.ActionImportFailed
	}
	err := store.Append(ctx, audit.Event{
		Action:  action,
		Actor:   cliActor,
		Subject: res.JobID.String(),
		Detail:  string(res.Status),
	})
	if err != nil {
		log.Error("failed to record audit event", "error", err)
	}
}

func writeResult(out io.Writer, res models.Result) error {
	o := importOutput{
		Status:     res.Status,
		JobID:      res.JobID.String(),
		Generation: res.Generation,
		Companies:  res.Companies,
		Skipped:    res.Skipped,
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		o.Error = res.Err.Error()
	}
	return json.NewEncoder(out).Encode(o)
}

func issueToken(out io.Writer, subject string, ttl time.Duration) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if cfg.Admin.JWTKey == "" {
		return errors.New("ADMIN_JWT_KEY is not set")
	}
	token, err := jwttoken.NewJWTService(cfg.Admin.JWTKey, "bizreg").
		GenerateAdminToken(subject, []string{jwttoken.ScopeImport}, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
