package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"controlroom/internal/app"
	"controlroom/internal/config"
	"controlroom/internal/entities"
	"controlroom/internal/export"
	"controlroom/internal/logger"
	"controlroom/internal/rbac"
	"controlroom/internal/transfer"
	"controlroom/internal/workflow"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	actor      string
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:           "controlroom",
		Short:         "Compliance control tracking service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to a YAML config file")
	root.PersistentFlags().StringVar(&flags.actor, "actor", "controlroom-cli", "Name recorded for CLI changes")

	root.AddCommand(
		newServeCmd(&flags),
		newImportCmd(&flags),
		newExportCmd(&flags),
		newScoreCmd(&flags),
		newReportCmd(&flags),
	)
	return root
}

// withRuntime loads config, wires the service graph and runs fn against it.
func withRuntime(cmd *cobra.Command, flags *rootFlags, fn func(ctx context.Context, rt *runtime) error) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cmd.ErrOrStderr()})

	ctx := cmd.Context()
	rt, err := openRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func cliActor(flags *rootFlags, role rbac.Role) workflow.Actor {
	return workflow.Actor{Name: flags.actor, Role: role}
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, flags, func(ctx context.Context, rt *runtime) error {
				return serve(ctx, rt)
			})
		},
	}
}

func serve(ctx context.Context, rt *runtime) error {
	httpServer := app.NewHTTPServer(rt.service, rt.cfg.CORSOrigins, rt.log, app.WithTelemetry(rt.telemetry))
	server := &http.Server{
		Addr:              rt.cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.log.Info().Str("addr", rt.cfg.Addr).Str("storage", rt.cfg.Storage).Str("origin", rt.store.Origin()).Msg("controlroom api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	rt.log.Info().Msg("server stopped")
	return nil
}

func newImportCmd(flags *rootFlags) *cobra.Command {
	var format, mode string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import controls from a CSV, JSON or XLSX file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			parsed, err := importFormat(format, args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd, flags, func(ctx context.Context, rt *runtime) error {
				result, err := rt.service.ImportControls(ctx, cliActor(flags, rbac.RoleClient), f, parsed, entities.ImportMode(mode))
				if err != nil {
					return err
				}
				return writeJSONTo(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "csv, json or xlsx (default: from the file extension)")
	cmd.Flags().StringVar(&mode, "mode", string(entities.ImportMerge), "merge or replace")
	return cmd
}

func importFormat(flag, filename string) (transfer.Format, error) {
	if flag != "" {
		return transfer.ParseFormat(flag)
	}
	return transfer.DetectFormat(filename, "")
}

func newExportCmd(flags *rootFlags) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all controls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := transfer.ParseFormat(format)
			if err != nil {
				return err
			}
			return withRuntime(cmd, flags, func(_ context.Context, rt *runtime) error {
				data, err := rt.service.ExportControls(cliActor(flags, rbac.RoleAuditor), parsed)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), out, data)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", string(transfer.FormatCSV), "csv, json or xlsx")
	cmd.Flags().StringVar(&out, "out", "", "Write to file instead of stdout")
	return cmd
}

func newScoreCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "score",
		Short: "Print compliance score, status counts and framework readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, flags, func(_ context.Context, rt *runtime) error {
				summary, err := rt.service.Summary(cliActor(flags, rbac.RoleAuditor))
				if err != nil {
					return err
				}
				return writeJSONTo(cmd.OutOrStdout(), summary)
			})
		},
	}
}

func newReportCmd(flags *rootFlags) *cobra.Command {
	var framework, format, out string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the audit readiness report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			return withRuntime(cmd, flags, func(ctx context.Context, rt *runtime) error {
				result, err := rt.service.Report(ctx, cliActor(flags, rbac.RoleAuditor), framework, parsed)
				if err != nil {
					return err
				}
				if out == "" {
					out = result.Filename
				}
				if err := writeOutput(cmd.OutOrStdout(), out, result.Data); err != nil {
					return err
				}
				if out != "-" {
					fmt.Fprintln(cmd.ErrOrStderr(), "wrote", out)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&framework, "framework", "", "Framework ID (default: the primary framework)")
	cmd.Flags().StringVar(&format, "format", string(export.FormatHTML), "html or pdf")
	cmd.Flags().StringVar(&out, "out", "", "Output file (default: generated name, - for stdout)")
	return cmd
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func writeJSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
