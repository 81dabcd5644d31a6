// Command seed prepares a Postgres database: it applies the schema, loads the
// YAML course catalog and creates or promotes an admin account.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/p-n-ai/pai-academy/internal/auth"
	"github.com/p-n-ai/pai-academy/internal/course"
	"github.com/p-n-ai/pai-academy/internal/platform/config"
	"github.com/p-n-ai/pai-academy/internal/platform/database"
	"github.com/p-n-ai/pai-academy/internal/user"
)

type options struct {
	catalog       string
	adminName     string
	adminEmail    string
	adminPassword string
	makeAdmin     string
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var opts options
	flag.StringVar(&opts.catalog, "catalog", cfg.CatalogPath, "YAML catalog file or directory")
	flag.StringVar(&opts.adminName, "admin-name", "Admin User", "name of the admin account to create")
	flag.StringVar(&opts.adminEmail, "admin-email", os.Getenv("LEARN_ADMIN_EMAIL"), "email of the admin account to create")
	flag.StringVar(&opts.adminPassword, "admin-password", os.Getenv("LEARN_ADMIN_PASSWORD"), "password of the admin account to create")
	flag.StringVar(&opts.makeAdmin, "make-admin", "", "promote the existing user with this email to admin and exit")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := run(ctx, cfg, opts); err != nil {
		slog.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options) error {
	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	users, err := user.NewPostgresStore(db.Pool)
	if err != nil {
		return err
	}
	courses, err := course.NewPostgresStore(db.Pool)
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL())
	if err != nil {
		return err
	}
	return seed(ctx, auth.NewService(users, tokens), courses, opts)
}

// seed applies opts against the given stores.
func seed(ctx context.Context, accounts *auth.Service, courses course.Store, opts options) error {
	if opts.makeAdmin != "" {
		u, err := accounts.SetRole(ctx, opts.makeAdmin, user.RoleAdmin)
		if err != nil {
			return fmt.Errorf("promote %s: %w", opts.makeAdmin, err)
		}
		slog.Info("user promoted to admin", "user_id", u.ID, "email", u.Email)
		return nil
	}

	if opts.catalog != "" {
		if _, err := course.Seed(ctx, courses, opts.catalog, time.Now()); err != nil {
			return err
		}
	}

	if opts.adminEmail == "" {
		return nil
	}
	_, err := accounts.Register(ctx, opts.adminName, opts.adminEmail, opts.adminPassword)
	switch {
	case errors.Is(err, user.ErrEmailTaken):
		slog.Info("admin account already exists", "email", opts.adminEmail)
	case err != nil:
		return fmt.Errorf("create admin: %w", err)
	}
	if _, err := accounts.SetRole(ctx, opts.adminEmail, user.RoleAdmin); err != nil {
		return fmt.Errorf("promote admin: %w", err)
	}
	return nil
}
