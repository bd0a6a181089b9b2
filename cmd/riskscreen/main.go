package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/riskscreen/riskscreen/internal/config"
	"github.com/riskscreen/riskscreen/internal/importer"
	"github.com/riskscreen/riskscreen/internal/platform/auth"
	"github.com/riskscreen/riskscreen/internal/platform/db"
	"github.com/riskscreen/riskscreen/internal/platform/middleware"
	"github.com/riskscreen/riskscreen/internal/platform/tracker"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "riskscreen",
		Short: "HIV risk screening import service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the import API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a screening file from the command line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(args[0])
		},
	}
}

func templateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write the CSV import template",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			m, err := loadMapping("")
			if err != nil {
				return err
			}
			w := os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return importer.WriteTemplate(w, m)
		},
	}
	cmd.Flags().String("out", "", "Output file (default stdout)")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.APISecret == "" {
				return fmt.Errorf("API_SECRET is required to issue tokens")
			}
			token, err := auth.IssueToken([]byte(cfg.APISecret), subject, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("subject", "importer", "Token subject")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

// loadMapping builds the field mapping: the built-in table, optionally
// layered with a JSON override file.
func loadMapping(path string) (*importer.Mapping, error) {
	if path == "" {
		return importer.DefaultMapping(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mapping file: %w", err)
	}
	defer f.Close()
	m, err := importer.LoadMapping(f)
	if err != nil {
		return nil, fmt.Errorf("mapping file %s: %w", path, err)
	}
	return m, nil
}

// buildPipeline assembles the tracker client, mapping, and orchestrator from
// the configuration. Shared by serve and the one-shot import command.
func buildPipeline(cfg *config.Config, logger zerolog.Logger) (*importer.Orchestrator, *importer.Mapping, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	m, err := loadMapping(cfg.MappingFile)
	if err != nil {
		return nil, nil, err
	}
	m.OrgUnit = cfg.OrgUnit
	m.Program = cfg.Program
	m.ProgramStage = cfg.ProgramStage
	m.TrackedEntityType = cfg.TrackedEntityType

	client := tracker.NewClient(cfg.TrackerBaseURL, cfg.TrackerUsername, cfg.TrackerPassword,
		tracker.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.HTTPTimeoutSeconds) * time.Second}),
		tracker.WithLogger(logger),
	)

	orch := importer.NewOrchestrator(client, m, importer.WithOrchestratorLogger(logger))
	return orch, m, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runImport(path string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	orch, m, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := importer.Prepare(f, m)
	if err != nil {
		return err
	}

	res := importer.RunBatch(context.Background(), rows, orch, logger)

	for _, row := range res.Rows {
		if row.Status != "success" {
			fmt.Printf("row %d (%s): %s: %s\n", row.Row, row.Identifier, row.Status, row.Message)
		}
	}
	s := res.Summary
	fmt.Printf("%d records: %d imported, %d failed, %d skipped in %.1fs\n",
		s.TotalRecords, s.Successful, s.Failed, s.Skipped, s.ProcessingTimeSeconds)

	if s.Failed > 0 {
		return fmt.Errorf("%d of %d records failed", s.Failed, s.TotalRecords)
	}
	return nil
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	orch, m, err := buildPipeline(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build import pipeline")
	}

	// Audit log: Postgres when configured, in-memory otherwise.
	ctx := context.Background()
	var runs importer.RunStore = importer.NewInMemoryRunStore()
	if cfg.AuditLogEnabled() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()

		pg := importer.NewPGRunStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare audit tables")
		}
		runs = pg
		logger.Info().Msg("audit log backed by postgres")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	apiV1 := e.Group("/api/v1")
	if cfg.APISecret != "" {
		apiV1.Use(auth.Middleware([]byte(cfg.APISecret)))
	} else if !cfg.IsDev() {
		logger.Fatal().Msg("API_SECRET is required outside development")
	} else {
		logger.Warn().Msg("API_SECRET not set; the import API is unauthenticated")
	}

	handler := importer.NewHandler(orch, runs, m, logger)
	handler.RegisterRoutes(apiV1)

	addr := ":" + cfg.Port
	go func() {
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server start failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
