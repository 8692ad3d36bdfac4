package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"classboard/internal/app"
	"classboard/internal/auth"
	"classboard/internal/config"
	"classboard/internal/logger"
	"classboard/internal/telemetry"
	"classboard/pkg/types"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("classboard exited", "error", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string

	// token helper for local development
	issueToken bool
	user       string
	name       string
	role       string
	courses    string
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("classboard", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", os.Getenv("CLASSBOARD_CONFIG_FILE"), "path to a JSON config file")
	fs.BoolVar(&opts.issueToken, "issue-token", false, "print a bearer token and exit")
	fs.StringVar(&opts.user, "user", "", "participant id for -issue-token")
	fs.StringVar(&opts.name, "name", "", "participant display name for -issue-token")
	fs.StringVar(&opts.role, "role", types.RoleStudent, "participant role for -issue-token")
	fs.StringVar(&opts.courses, "courses", "", "memberships for -issue-token, e.g. CS101:instructor,CS202:ta,CS303")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfigWithPrecedence(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if opts.issueToken {
		return issueToken(cfg, opts, stdout)
	}

	ctx := context.Background()

	// telemetry before the logger: production logs ship through the otel provider
	tel, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	logger.Setup(cfg)
	slog.InfoContext(ctx, "classboard starting", "env", cfg.Env, "node_id", cfg.NodeID, "telemetry", cfg.Telemetry.Enabled())

	application, err := app.NewApplication(cfg)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return fmt.Errorf("failed to create application: %w", err)
	}

	shutdown := func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return errors.Join(application.Stop(shutdownCtx), tel.Shutdown(shutdownCtx))
	}

	if err := application.Start(ctx); err != nil {
		return errors.Join(fmt.Errorf("failed to start: %w", err), shutdown())
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.InfoContext(ctx, "received signal, shutting down", "signal", sig.String())

	return shutdown()
}

func issueToken(cfg *config.Config, opts *options, stdout io.Writer) error {
	memberships, err := parseCourses(opts.courses)
	if err != nil {
		return err
	}
	name := opts.name
	if name == "" {
		name = opts.user
	}

	token, err := auth.NewAuthenticator(cfg.Auth).Issue(&types.Participant{
		ID:                opts.user,
		Name:              name,
		Role:              opts.role,
		CourseMemberships: memberships,
	})
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}
	_, err = fmt.Fprintln(stdout, token)
	return err
}

// parseCourses reads "course[:standing]" pairs. Standing is student (the
// default), ta or instructor; every listed course is enrolled.
func parseCourses(s string) ([]types.CourseMembership, error) {
	var out []types.CourseMembership
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		course, standing, _ := strings.Cut(part, ":")
		m := types.CourseMembership{CourseName: course, Enrolled: true}
		switch standing {
		case "", "student":
		case "ta":
			m.IsTA = true
		case "instructor":
			m.IsInstructor = true
		default:
			return nil, fmt.Errorf("unknown standing %q for course %s", standing, course)
		}
		out = append(out, m)
	}
	return out, nil
}
