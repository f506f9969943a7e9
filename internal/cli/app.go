package cli

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"

	"github.com/harun/fieldrec/internal/config"
	"github.com/harun/fieldrec/internal/logger"
	"github.com/harun/fieldrec/internal/metrics"
	"github.com/harun/fieldrec/pkg/capture"
	"github.com/harun/fieldrec/pkg/catalog"
	"github.com/harun/fieldrec/pkg/concat"
	"github.com/harun/fieldrec/pkg/permission"
	"github.com/harun/fieldrec/pkg/recording"
	"github.com/harun/fieldrec/pkg/transcoder"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app holds what every command needs: the loaded config, the logger and
// the terminal streams
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	logger  zerolog.Logger
	metrics *metrics.Metrics

	// in is shared by the permission prompt and interactive commands
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		cfg.Logging.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		Console:    cfg.Logging.Console,
		Pretty:     true,
		Redaction:  cfg.Logging.Redaction,
		MaxSize:    cfg.Logging.MaxSize,
		MaxAge:     cfg.Logging.MaxAge,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
		Secrets:    []string{cfg.Gateway.SharedSecret},
		ConsoleOut: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return &app{
		cfg:     cfg,
		log:     log,
		logger:  log.GetZerolog(),
		metrics: metrics.NewMetrics(),
		in:      bufio.NewReader(cmd.InOrStdin()),
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
	}, nil
}

func (a *app) Close() error {
	return a.log.Close()
}

func (a *app) newTranscoder() (*transcoder.FFmpeg, error) {
	return transcoder.NewFFmpeg(transcoder.Config{
		Binary:  a.cfg.Transcoder.Binary,
		Timeout: a.cfg.Transcoder.Timeout(),
	}, a.logger)
}

func (a *app) newPipeline() (*concat.Pipeline, error) {
	tc, err := a.newTranscoder()
	if err != nil {
		return nil, err
	}
	return concat.NewPipeline(concat.Config{
		Transcoder: tc,
		ScratchDir: a.cfg.Scratch.Dir,
		EncodeArgs: a.cfg.Transcoder.EncodeArgs,
		Metrics:    a.metrics,
		Logger:     a.logger,
	})
}

func (a *app) newSweeper() (*concat.Sweeper, error) {
	return concat.NewSweeper(concat.SweeperConfig{
		ScratchDir: a.cfg.Scratch.Dir,
		Schedule:   a.cfg.Scratch.SweepSchedule,
		MaxAge:     a.cfg.Scratch.MaxAge(),
		Metrics:    a.metrics,
		Logger:     a.logger,
	})
}

// newPermissions opens the grants file. With prompt set and prompting
// enabled in the config, missing grants are asked for on the terminal.
func (a *app) newPermissions(prompt bool) (*permission.Manager, error) {
	var prompter permission.Prompter
	if prompt && a.cfg.Permissions.Prompt {
		prompter = permission.NewCLIPrompter(a.in, a.errOut, a.logger)
	}
	return permission.NewManager(permission.ManagerConfig{
		Path:     a.cfg.Permissions.Path,
		Prompter: prompter,
		Logger:   a.logger,
	})
}

func (a *app) newSession(perms recording.PermissionGate, listener recording.Listener) (*recording.Session, error) {
	lock := capture.NewDeviceLock(filepath.Join(a.cfg.DataDir, "capture.lock"))

	factory, err := capture.NewFFmpegFactory(capture.FactoryConfig{
		Binary:      a.cfg.Transcoder.Binary,
		InputFormat: a.cfg.Recorder.InputFormat,
		Device:      a.cfg.Recorder.Device,
		Lock:        lock,
		StopTimeout: a.cfg.Recorder.StopTimeout(),
		Logger:      a.logger,
	})
	if err != nil {
		return nil, err
	}

	return recording.NewSession(recording.Config{
		Permissions:  perms,
		Probe:        capture.NewLockProbe(a.cfg.Transcoder.Binary, lock, a.logger),
		Factory:      factory,
		Listener:     listener,
		Metrics:      a.metrics,
		Logger:       a.logger,
		SampleRate:   a.cfg.Recorder.SampleRate,
		Bitrate:      a.cfg.Recorder.Bitrate,
		Codec:        a.cfg.Recorder.Codec,
		TickInterval: a.cfg.Recorder.TickInterval(),
		JoinTimeout:  a.cfg.Recorder.JoinTimeout(),
	})
}

func (a *app) openCatalog() (*catalog.Store, error) {
	return catalog.Open(a.cfg.Catalog.Path, a.logger)
}

func (a *app) serverLock() *capture.DeviceLock {
	return capture.NewDeviceLock(filepath.Join(a.cfg.DataDir, "fieldrec.pid"))
}
