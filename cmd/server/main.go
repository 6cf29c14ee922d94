package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sumire/tracker/internal/authz"
	"github.com/sumire/tracker/internal/blob"
	"github.com/sumire/tracker/internal/config"
	"github.com/sumire/tracker/internal/handler"
	"github.com/sumire/tracker/internal/logging"
	"github.com/sumire/tracker/internal/repository"
	"github.com/sumire/tracker/internal/service"
	"github.com/sumire/tracker/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, cfg.Database.URL, repository.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connected")

	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	userRepo := repository.NewUserRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	memberRepo := repository.NewMemberRepository(db)
	issueRepo := repository.NewIssueRepository(db)
	commentRepo := repository.NewCommentRepository(db)

	images, err := blob.NewStore(cfg.Uploads.Dir, cfg.Uploads.MaxImageBytes)
	if err != nil {
		return fmt.Errorf("open image store: %w", err)
	}

	policy, err := authz.NewRolePolicy()
	if err != nil {
		return fmt.Errorf("build role policy: %w", err)
	}
	access := service.NewAccessService(memberRepo, policy)

	authSvc := service.NewAuthService(userRepo, service.AuthConfig{
		GoogleClientID:     cfg.Auth.GoogleClientID,
		GoogleClientSecret: cfg.Auth.GoogleClientSecret,
		GitHubClientID:     cfg.Auth.GitHubClientID,
		GitHubClientSecret: cfg.Auth.GitHubClientSecret,
		JWTSecret:          cfg.Auth.JWTSecret,
		FrontendURL:        cfg.Server.FrontendURL,
		AccessTokenTTL:     cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL:    cfg.Auth.RefreshTokenTTL,
		PasswordMode:       cfg.Auth.PasswordMode,
	})

	router := handler.NewRouter(handler.Deps{
		Auth:           authSvc,
		Users:          service.NewUserService(userRepo, authSvc),
		Projects:       service.NewProjectService(projectRepo, memberRepo, issueRepo, access),
		Members:        service.NewMemberService(projectRepo, memberRepo, userRepo, access),
		Issues:         service.NewIssueService(issueRepo, projectRepo, commentRepo, access, images),
		Comments:       service.NewCommentService(commentRepo, issueRepo, projectRepo, access, images),
		Images:         images.Handler(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AuthRateLimit:  cfg.Auth.RateLimit,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	tree := supervisor.NewTree(logger, supervisor.DefaultTreeConfig())
	tree.AddAPIService(supervisor.NewHTTPService(srv, cfg.Server.ShutdownTimeout))
	if cfg.Uploads.SweepInterval > 0 {
		tree.AddMaintenanceService(blob.NewSweeper(images, repository.NewRichTextRepository(db),
			cfg.Uploads.SweepInterval, cfg.Uploads.SweepGrace))
	}

	slog.Info("starting", "port", cfg.Server.Port, "password_mode", cfg.Auth.PasswordMode)

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}

	slog.Info("shutdown complete")
	return nil
}
