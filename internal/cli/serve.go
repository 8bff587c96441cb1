// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mpc.
//
// go-mpc is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-mpc/internal/config"
	"github.com/jeremyhahn/go-mpc/internal/rest"
	"github.com/jeremyhahn/go-mpc/pkg/adapters/audit"
	"github.com/jeremyhahn/go-mpc/pkg/enclave"
	"github.com/jeremyhahn/go-mpc/pkg/health"
	"github.com/jeremyhahn/go-mpc/pkg/keymanager"
	"github.com/jeremyhahn/go-mpc/pkg/logging"
	"github.com/jeremyhahn/go-mpc/pkg/metrics"
	"github.com/jeremyhahn/go-mpc/pkg/ratelimit"
)

const resourceCollectInterval = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signing daemon",
	Long: `Start the REST API. Configuration is read from --config (YAML) and
MPC_* environment variables. The daemon shuts down gracefully on SIGINT
or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(globalOptions.ConfigFile)
		if err != nil {
			return err
		}
		if globalOptions.Verbose {
			cfg.Logging.Level = "debug"
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		d, err := newDaemon(ctx, cfg)
		if err != nil {
			return err
		}
		return d.run(ctx)
	},
}

// daemon owns every component started by serve.
type daemon struct {
	cfg       *config.Config
	logger    logging.Logger
	vault     enclave.Vault
	manager   *keymanager.KeyManager
	limiter   *ratelimit.Limiter
	rotator   *keymanager.Rotator
	collector *metrics.ResourceCollector
	checker   *health.Checker
	server    *rest.Server
}

// newDaemon wires the configured components. On error everything already
// opened is closed again.
func newDaemon(ctx context.Context, cfg *config.Config) (d *daemon, err error) {
	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		return nil, err
	}
	d = &daemon{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			d.close()
			d = nil
		}
	}()

	vaultConfig, err := cfg.Security.EnclaveConfig(logger)
	if err != nil {
		return nil, err
	}
	if d.vault, err = enclave.New(ctx, vaultConfig); err != nil {
		return nil, fmt.Errorf("failed to open vault: %w", err)
	}
	logger.Info("vault ready", logging.String("kind", string(d.vault.Kind())))

	backend, err := cfg.Storage.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	var auditor audit.Auditor = audit.NoOp{}
	if cfg.Audit.Enabled {
		auditor = audit.NewMemory(cfg.Audit.Capacity)
	}

	protocolConfig, defaultProtocol := cfg.Protocol.ProtocolConfig()
	d.manager, err = keymanager.New(ctx, &keymanager.Config{
		Vault:           d.vault,
		Storage:         backend,
		DefaultProtocol: defaultProtocol,
		Protocol:        protocolConfig,
		Logger:          logger,
		Auditor:         auditor,
	})
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	authenticator, err := cfg.Auth.CreateAuthenticator()
	if err != nil {
		return nil, err
	}
	tlsConfig, err := cfg.TLS.Load()
	if err != nil {
		return nil, err
	}
	if cfg.RateLimit.Enabled {
		d.limiter = ratelimit.New(&cfg.RateLimit)
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metrics.Enable()
		metricsPath = cfg.Metrics.Path
	} else {
		metrics.Disable()
	}

	hardware := cfg.Security.EnableHSM || cfg.Security.EnableHardwareEnclave
	d.checker = health.NewChecker()
	d.checker.RegisterCheck("vault", health.VaultCheck(d.vault, hardware))
	d.checker.RegisterCheck("storage", health.StorageCheck(backend))

	d.server, err = rest.NewServer(&rest.Config{
		Addr:          cfg.Server.Addr(),
		Manager:       d.manager,
		Health:        d.checker,
		Authenticator: authenticator,
		RateLimiter:   d.limiter,
		MetricsPath:   metricsPath,
		TLSConfig:     tlsConfig,
		Logger:        logger,
		Version:       Version,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
		IdleTimeout:   cfg.Server.IdleTimeout,
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// run serves until ctx is cancelled or the listener fails, then shuts
// down within the configured timeout.
func (d *daemon) run(ctx context.Context) error {
	defer d.close()

	if interval := d.cfg.Security.KeyRotationInterval; interval > 0 {
		d.rotator = keymanager.NewRotator(ctx, d.manager, interval, d.logger)
		d.rotator.Start()
	}
	if d.cfg.Metrics.Enabled {
		d.collector = metrics.StartResourceCollector(ctx, resourceCollectInterval,
			func() { metrics.SetVaultAvailable(string(d.vault.Kind()), d.vault.Available()) },
			func() { metrics.SetSessionsTotal(len(d.manager.Sessions())) })
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.server.Start()
	}()
	d.checker.MarkStarted()
	d.logger.Info("mpcd started",
		logging.String("addr", d.cfg.Server.Addr()),
		logging.String("version", Version),
		logging.Bool("tls", d.cfg.TLS.Enabled))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	d.checker.MarkNotStarted()
	d.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := d.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func (d *daemon) close() {
	if d.rotator != nil {
		d.rotator.Stop()
	}
	if d.collector != nil {
		d.collector.Stop()
	}
	if d.limiter != nil {
		d.limiter.Stop()
	}
	if d.manager != nil {
		if err := d.manager.Close(); err != nil {
			d.logger.Warn("failed to close key manager", logging.Error(err))
		}
	}
	if d.vault != nil {
		if err := d.vault.Close(); err != nil {
			d.logger.Warn("failed to close vault", logging.Error(err))
		}
	}
}
