package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-mes/internal/bootstrap"
	"github.com/bitfantasy/nimo-mes/internal/config"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app 命令共用的依赖
type app struct {
	cfg      *config.Config
	repos    *repository.Repositories
	services *service.Services
	logger   *zap.Logger
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := bootstrap.InitLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := bootstrap.InitDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}
	store, err := bootstrap.InitStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	repos := repository.NewRepositories(db)
	vocab := service.VocabularyFor(cfg.Import.Locale, cfg.Import.Marker)
	// 命令行进程没有 SSE 订阅者，不发通知
	services := service.NewServices(repos, store, service.NopNotifier(), vocab, logger)
	return &app{cfg: cfg, repos: repos, services: services, logger: logger}, nil
}

func newSeedCmd() *cobra.Command {
	var (
		username  string
		name      string
		routeName string
		stages    []string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the admin user and the default route",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			user, err := a.services.User.EnsureUser(ctx, username, name, middleware.AdminRole)
			if err != nil {
				return fmt.Errorf("seed admin: %w", err)
			}
			fmt.Fprintf(out, "Admin user %s (%s)\n", user.Username, user.ID)

			route, err := a.services.Route.EnsureDefault(ctx, routeName, stages)
			if err != nil {
				return fmt.Errorf("seed default route: %w", err)
			}
			fmt.Fprintf(out, "Default route %q (id %d)\n", route.Name, route.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "admin", "admin username")
	cmd.Flags().StringVar(&name, "name", "Administrator", "admin display name")
	cmd.Flags().StringVar(&routeName, "route", "Stock", "default route name")
	cmd.Flags().StringSliceVar(&stages, "stages", []string{"Warehouse"}, "default route stages in order")
	return cmd
}

func newImportCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import parts from a CSV or Excel file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}

			user, err := a.repos.User.FindByUsername(ctx, username)
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("user %q not found, run mesctl seed first", username)
			}
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			actor := service.Actor{ID: user.ID, Name: user.DisplayName()}
			result, err := a.services.Import.Import(ctx, data, args[0], actor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Product %q: added %d, skipped %d\n", result.Product, result.Added, result.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "user", "u", "admin", "username recorded in the audit log")
	return cmd
}

func newRoutesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Route template commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List route templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			routes, err := a.services.Route.List(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range routes {
				mark := " "
				if r.IsDefault {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %4d  %-30s %s\n", mark, r.ID, r.Name, strings.Join(r.StageNames(), ", "))
			}
			return nil
		},
	})
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		username string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			if a.cfg.JWT.Secret == "" {
				return errors.New("JWT secret is not configured (JWT_SECRET)")
			}
			user, err := a.repos.User.FindByUsername(ctx, username)
			if err != nil {
				return fmt.Errorf("find user %q: %w", username, err)
			}
			token, err := middleware.GenerateToken(a.cfg.JWT.Secret, a.cfg.JWT.Issuer, user.ID, user.DisplayName(), user.Role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "user", "u", "admin", "username")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
