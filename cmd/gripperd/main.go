package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/omron-sinicx/robotiq-cri/internal/auth"
	"github.com/omron-sinicx/robotiq-cri/internal/config"
	"github.com/omron-sinicx/robotiq-cri/internal/system"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Config loaded successfully",
		zap.String("path", *configPath),
		zap.String("gripper", cfg.Gripper.Name),
		zap.Float64("max_gap", cfg.Gripper.Calibration.MaxGap))

	lifecycle := system.NewLifecycleManager(cfg, logger)

	startCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	if err := lifecycle.Start(startCtx); err != nil {
		cancel()
		shutdown(lifecycle, cfg, logger)
		logger.Fatal("Failed to start system", zap.Error(err))
	}
	cancel()

	logger.Info("gripperd started successfully")

	// Graceful shutdown on signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutdown signal received")

	if err := shutdown(lifecycle, cfg, logger); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("gripperd stopped successfully")
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func shutdown(lifecycle *system.LifecycleManager, cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return lifecycle.Shutdown(ctx)
}

// runToken prints an access token signed with the configured secret.
func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	configPath := fs.String("config", "configs/config.yaml", "path to the YAML config file")
	subject := fs.String("subject", "", "token subject, e.g. the client application")
	role := fs.String("role", string(auth.RoleOperator), "viewer, operator or admin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return fmt.Errorf("-subject is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if !cfg.Auth.IsProductionReady() {
		fmt.Fprintf(os.Stderr, "warning: %s is unset or shorter than 32 characters, using the development secret\n", cfg.Auth.JWTSecretEnv)
	}

	token, err := auth.NewJWTHandler(cfg.Auth.GetJWTSecret(), cfg.Auth.AccessTokenTTL).
		GenerateAccessToken(*subject, auth.Role(*role))
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
