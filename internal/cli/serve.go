package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harun/fieldrec/pkg/capture"
	"github.com/harun/fieldrec/pkg/gateway"
	"github.com/harun/fieldrec/pkg/permission"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the JSON-RPC gateway",
	Long: `Run the JSON-RPC gateway in the foreground.
Clients call startRecording, stopRecording, concatAudioAcc and friends over
WebSocket (/ws) or HTTP (/rpc) and receive recordDuration events.
The server runs until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cfg.Gateway.Validate(); err != nil {
		return fmt.Errorf("%w; run fieldrec configure", err)
	}

	lock := a.serverLock()
	if err := lock.Acquire(); err != nil {
		if errors.Is(err, capture.ErrDeviceBusy) {
			return fmt.Errorf("server is already running (PID file: %s)", lock.Path())
		}
		return err
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, a)
}

// serve wires the components, runs the gateway and tears everything down
// once ctx is done
func serve(ctx context.Context, a *app) error {
	perms, err := a.newPermissions(false)
	if err != nil {
		return err
	}

	watcher, err := permission.NewWatcher(perms, 0, a.logger)
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()

	pipeline, err := a.newPipeline()
	if err != nil {
		return err
	}

	sweeper, err := a.newSweeper()
	if err != nil {
		return err
	}
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sweeper.Stop(stopCtx)
	}()

	store, err := a.openCatalog()
	if err != nil {
		return err
	}
	defer store.Close()

	clients := gateway.NewClientRegistry()
	broadcaster := gateway.NewEventBroadcaster(clients, a.logger)

	session, err := a.newSession(perms, broadcaster)
	if err != nil {
		return err
	}
	defer session.Close()

	server, err := gateway.NewServer(gateway.Config{
		Addr:              a.cfg.Gateway.Addr(),
		SharedSecret:      a.cfg.Gateway.SharedSecret,
		Session:           session,
		Pipeline:          pipeline,
		Permissions:       perms,
		Catalog:           store,
		Clients:           clients,
		Broadcaster:       broadcaster,
		RequestsPerMinute: a.cfg.Gateway.RequestsPerMinute,
		MaxConcurrent:     a.cfg.Gateway.MaxConcurrent,
		StartTimeout:      a.cfg.Gateway.StartTimeout(),
		Metrics:           a.metrics,
		Logger:            a.logger,
	})
	if err != nil {
		return err
	}

	if err := server.Start(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Listening on %s\n", server.Addr())

	<-ctx.Done()
	a.logger.Info().Msg("Shutdown signal received")

	if err := server.Stop(context.Background()); err != nil {
		a.logger.Error().Err(err).Msg("Gateway shutdown failed")
		return err
	}
	return nil
}
