package system

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/omron-sinicx/robotiq-cri/internal/action"
	"github.com/omron-sinicx/robotiq-cri/internal/api/rest"
	"github.com/omron-sinicx/robotiq-cri/internal/api/rpc"
	"github.com/omron-sinicx/robotiq-cri/internal/api/websocket"
	"github.com/omron-sinicx/robotiq-cri/internal/auth"
	"github.com/omron-sinicx/robotiq-cri/internal/cache"
	"github.com/omron-sinicx/robotiq-cri/internal/config"
	"github.com/omron-sinicx/robotiq-cri/internal/gripper"
	"github.com/omron-sinicx/robotiq-cri/internal/interfaces"
	"github.com/omron-sinicx/robotiq-cri/internal/storage"
	"github.com/omron-sinicx/robotiq-cri/internal/telemetry"
)

// LifecycleManager builds the gripper daemon from its configuration and
// owns the start and stop order of every component.
type LifecycleManager struct {
	config *config.Config
	logger *zap.Logger
	clock  gripper.Clock

	transport Transport
	driver    *gripper.Driver
	actions   *action.Server
	fanout    *telemetry.Fanout
	wsHub     *websocket.Hub
	cache     *cache.StatusCache
	storage   *storage.PostgresClient
	jwt       *auth.JWTHandler

	restServer *rest.Server
	grpcServer *grpc.Server

	hubCancel     context.CancelFunc
	startupCancel context.CancelFunc

	stateMu      sync.RWMutex
	currentState SystemState
	startedAt    time.Time

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewLifecycleManager(cfg *config.Config, logger *zap.Logger) *LifecycleManager {
	return &LifecycleManager{
		config:       cfg,
		logger:       logger,
		clock:        gripper.RealClock(),
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}
}

var _ interfaces.LifecycleManager = (*LifecycleManager)(nil)

// Start builds and starts the system. Redis and PostgreSQL failures are
// logged and the daemon runs without them; a transport or server failure
// is returned.
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.logger.Info("Starting gripper daemon",
		zap.String("gripper", lm.config.Gripper.Name),
		zap.String("transport", lm.config.Transport.Kind))

	if lm.config.Auth.Enabled {
		if !lm.config.Auth.IsProductionReady() {
			lm.logger.Warn("JWT secret is not production ready",
				zap.String("env", lm.config.Auth.JWTSecretEnv))
		}
		lm.jwt = auth.NewJWTHandler(lm.config.Auth.GetJWTSecret(), lm.config.Auth.AccessTokenTTL)
	}

	var tokens websocket.TokenValidator
	if lm.jwt != nil {
		tokens = lm.jwt
	}
	lm.wsHub = websocket.NewHub(lm.logger, tokens)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	lm.hubCancel = hubCancel
	go lm.wsHub.Run(hubCtx)

	lm.fanout = telemetry.NewFanout(lm.logger)
	lm.fanout.Add("websocket", lm.wsHub)

	lm.connectCache(ctx)
	lm.connectStorage(ctx)

	transport, err := newTransport(lm.config.Transport, lm.fanout, lm.logger)
	if err != nil {
		return lm.fail(err)
	}
	lm.transport = transport

	driver, err := gripper.NewDriver(lm.config.Gripper.DriverConfig(), transport, lm.fanout, lm.clock, lm.logger)
	if err != nil {
		return lm.fail(fmt.Errorf("failed to create driver: %w", err))
	}
	lm.driver = driver
	driver.Activator().SetStateListener(lm.wsHub.ActivationChanged)
	transport.OnStatus(driver.HandleStatus)

	lm.actions = action.NewServer(driver, action.Config{
		Calibration: lm.config.Gripper.Calibration,
		Full:        lm.config.Gripper.ExecConfig(lm.config.Actions.Full),
		Minimal:     lm.config.Gripper.ExecConfig(lm.config.Actions.Minimal),
	}, lm.logger)
	lm.actions.SetObserver(lm.wsHub)
	if lm.storage != nil {
		lm.actions.SetRecorder(lm.storage)
	}

	if err := transport.Start(ctx); err != nil {
		return lm.fail(fmt.Errorf("failed to start %s transport: %w", lm.config.Transport.Kind, err))
	}

	if err := lm.startGRPCServer(); err != nil {
		return lm.fail(fmt.Errorf("failed to start gRPC: %w", err))
	}

	if err := lm.startRESTServer(); err != nil {
		return lm.fail(fmt.Errorf("failed to start REST API: %w", err))
	}

	startupCtx, startupCancel := context.WithCancel(context.Background())
	lm.startupCancel = startupCancel
	go func() {
		if err := driver.Startup(startupCtx, lm.config.Gripper.StartupConfig()); err != nil && !errors.Is(err, context.Canceled) {
			lm.logger.Warn("Gripper startup sequence failed", zap.Error(err))
		}
	}()

	lm.setState(StateRunning)
	lm.stateMu.Lock()
	lm.startedAt = time.Now()
	lm.stateMu.Unlock()

	lm.logger.Info("System started successfully",
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Strings("telemetry_sinks", lm.fanout.Names()),
		zap.Bool("history_enabled", lm.storage != nil),
		zap.Bool("auth_enabled", lm.jwt != nil))

	return nil
}

func (lm *LifecycleManager) connectCache(ctx context.Context) {
	if !lm.config.Redis.Enabled {
		return
	}

	c, err := cache.NewStatusCache(ctx, lm.config.Redis)
	if err != nil {
		lm.logger.Warn("Redis status mirror disabled", zap.Error(err))
		return
	}
	lm.cache = c
	lm.fanout.Add("redis", c)
}

func (lm *LifecycleManager) connectStorage(ctx context.Context) {
	if !lm.config.Database.Enabled {
		return
	}

	db, err := storage.NewPostgresClient(ctx, lm.config.Database, lm.config.Gripper.Name)
	if err != nil {
		lm.logger.Warn("Goal history disabled", zap.Error(err))
		return
	}
	if err := db.EnsureSchema(ctx); err != nil {
		lm.logger.Warn("Goal history disabled", zap.Error(err))
		db.Close()
		return
	}

	lm.logger.Info("Database connected successfully")
	lm.storage = db
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	svc, err := rpc.NewService(lm.driver, lm.actions, lm.logger)
	if err != nil {
		lis.Close()
		return err
	}
	lm.grpcServer = rpc.NewServer(svc, lm.logger)

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.Int("port", lm.config.Server.GRPCPort),
			zap.String("services", rpc.ServiceName))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	deps := rest.Deps{
		Gripper: lm.driver,
		Actions: lm.actions,
		Hub:     lm.wsHub,
		JWT:     lm.jwt,
		System:  lm,
	}
	if lm.storage != nil {
		deps.History = lm.storage
	}

	srv, err := rest.NewServer(lm.config, deps, lm.logger)
	if err != nil {
		return err
	}
	lm.restServer = srv
	return lm.restServer.Start()
}

// Shutdown stops the servers, cancels a running goal and closes every
// connection. It is safe to call more than once.
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		close(lm.shutdownChan)
	})

	return shutdownErr
}

// Done is closed once Shutdown has completed.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	if lm.startupCancel != nil {
		lm.startupCancel()
	}
	if lm.driver != nil && lm.driver.Cancel() {
		lm.logger.Info("Running goal preempted by shutdown")
	}

	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	// 1. REST API Server graceful shutdown
	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := lm.restServer.Shutdown(ctx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	// 2. gRPC Server graceful stop
	if lm.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.logger.Info("Stopping gRPC server")
			lm.grpcServer.GracefulStop()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		if lm.grpcServer != nil {
			lm.grpcServer.Stop()
		}
		err = fmt.Errorf("shutdown timeout exceeded")
	}

	// 3. Device and telemetry connections
	if lm.transport != nil {
		lm.transport.Stop()
	}
	if lm.hubCancel != nil {
		lm.hubCancel()
	}
	if lm.cache != nil {
		if cerr := lm.cache.Close(); cerr != nil {
			lm.logger.Warn("Failed to close Redis client", zap.Error(cerr))
		}
	}
	if lm.storage != nil {
		lm.storage.Close()
	}

	close(errChan)
	for e := range errChan {
		err = errors.Join(err, e)
	}
	if err == nil {
		lm.logger.Info("Graceful shutdown completed")
	}
	return err
}

func (lm *LifecycleManager) fail(err error) error {
	lm.logger.Error("System start failed", zap.Error(err))
	lm.setState(StateError)
	return err
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()

	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Unexpected system state change", zap.Error(err))
	}
	lm.currentState = state
}

func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	status := interfaces.SystemStatus{
		State:          lm.currentState.String(),
		Gripper:        lm.config.Gripper.Name,
		Transport:      lm.config.Transport.Kind,
		HistoryEnabled: lm.storage != nil,
	}
	if !lm.startedAt.IsZero() {
		status.StartedAt = lm.startedAt.Unix()
	}
	lm.stateMu.RUnlock()

	if lm.fanout != nil {
		status.TelemetrySinks = lm.fanout.Names()
	}
	if lm.driver != nil {
		snap := lm.driver.Snapshot()
		status.Activation = snap.Activation.String()
		status.HasStatus = snap.HasStatus
		status.GoalActive = snap.GoalActive
	}
	return status
}
