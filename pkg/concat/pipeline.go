// Package concat assembles recorded segments into one output file by driving
// an external transcoder through trim, join and re-encode stages.
package concat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harun/fieldrec/internal/metrics"
	"github.com/harun/fieldrec/pkg/recording"
	"github.com/rs/zerolog"
)

// Scratch file name prefixes. The sweeper matches on TempPrefix.
const (
	TempPrefix        = "concat-"
	segmentTempPrefix = TempPrefix + "segment-"
	tempExt           = ".ts"
)

// Pipeline stage names used in logs and metrics
const (
	StageTrim   = "trim"
	StageConcat = "concat"
	StageEncode = "encode"
)

// Config configures a Pipeline
type Config struct {
	Transcoder Transcoder
	// ScratchDir holds intermediate files; created if missing
	ScratchDir string
	// EncodeArgs are inserted before the destination in the final stage
	EncodeArgs []string
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
	// NewRunID is injectable for testing; defaults to a random UUID
	NewRunID func() string
}

// Pipeline runs concatenations. Runs are independent and each owns its
// scratch files, so one Pipeline may serve concurrent callers.
type Pipeline struct {
	transcoder Transcoder
	scratchDir string
	encodeArgs []string
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	newRunID   func() string
}

// NewPipeline creates a pipeline and provisions its scratch directory
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Transcoder == nil {
		return nil, fmt.Errorf("transcoder is required")
	}
	if cfg.ScratchDir == "" {
		return nil, fmt.Errorf("scratch directory is required")
	}
	if err := os.MkdirAll(cfg.ScratchDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	if cfg.NewRunID == nil {
		cfg.NewRunID = uuid.NewString
	}

	return &Pipeline{
		transcoder: cfg.Transcoder,
		scratchDir: cfg.ScratchDir,
		encodeArgs: append([]string(nil), cfg.EncodeArgs...),
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.With().Str("component", "concat").Logger(),
		newRunID:   cfg.NewRunID,
	}, nil
}

// ScratchDir returns the scratch directory
func (p *Pipeline) ScratchDir() string {
	return p.scratchDir
}

// run is the bookkeeping of one Concatenate call
type run struct {
	id        string
	tempFiles []string
}

func (r *run) track(path string) {
	r.tempFiles = append(r.tempFiles, path)
}

// Concatenate trims every segment in order, joins the results and re-encodes
// them into dest. It stops at the first failure. Scratch files are removed
// before it returns, whatever the outcome.
func (p *Pipeline) Concatenate(ctx context.Context, segments []Segment, dest string) (err error) {
	if len(segments) == 0 || dest == "" {
		return p.finish(nil, newError(ErrInvalidOptions, -1, nil))
	}
	sources := make([]string, len(segments))
	for i, seg := range segments {
		if seg.Path == "" {
			return p.finish(nil, newError(ErrInvalidOptions, -1, fmt.Errorf("segment %d has no path", i)))
		}
		if !finite(seg.From) || !finite(seg.To) {
			return p.finish(nil, newError(ErrInvalidOptions, -1, fmt.Errorf("segment %d has a non-finite bound", i)))
		}
		sources[i] = recording.StripFileScheme(seg.Path)
	}
	dest = recording.StripFileScheme(dest)

	r := &run{id: p.newRunID()}
	logger := p.logger.With().Str("run", r.id).Logger()
	logger.Info().Int("segments", len(segments)).Str("dest", dest).Msg("Concatenation started")

	defer func() {
		p.cleanup(r, logger)
		err = p.finish(r, err)
	}()

	trimmed := make([]string, 0, len(segments))
	for i, seg := range segments {
		if !isFile(sources[i]) {
			return newError(ErrSegmentNotFound, i, nil)
		}

		out := filepath.Join(p.scratchDir, fmt.Sprintf("%s%s-%d%s", segmentTempPrefix, r.id, i, tempExt))
		r.track(out)

		if err := p.invoke(ctx, StageTrim, trimArgs(sources[i], seg, out)); err != nil {
			logger.Warn().Err(err).Int("index", i).Str("source", sources[i]).Msg("Segment trim failed")
			return newError(ErrSegmentFailed, i, err)
		}
		trimmed = append(trimmed, out)
	}

	joined := filepath.Join(p.scratchDir, TempPrefix+r.id+tempExt)
	r.track(joined)

	if err := p.invoke(ctx, StageConcat, concatArgs(trimmed, joined)); err != nil {
		logger.Warn().Err(err).Msg("Segment join failed")
		return newError(ErrConcatFailed, -1, err)
	}

	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Str("dest", dest).Msg("Failed to remove existing destination")
	}

	args := make([]string, 0, len(p.encodeArgs)+3)
	args = append(args, "-i", joined)
	args = append(args, p.encodeArgs...)
	args = append(args, dest)

	if err := p.invoke(ctx, StageEncode, args); err != nil {
		logger.Warn().Err(err).Str("dest", dest).Msg("Final encoding failed")
		return newError(ErrFinalEncodingFailed, -1, err)
	}

	logger.Info().Str("dest", dest).Msg("Concatenation done")
	return nil
}

func (p *Pipeline) invoke(ctx context.Context, stage string, args []string) error {
	start := time.Now()
	err := p.transcoder.Invoke(ctx, args)
	p.metrics.RecordPipelineStage(stage, time.Since(start), err == nil)
	return err
}

// cleanup removes every scratch file the run recorded
func (p *Pipeline) cleanup(r *run, logger zerolog.Logger) {
	removed := 0
	for _, path := range r.tempFiles {
		err := os.Remove(path)
		switch {
		case err == nil:
			removed++
		case os.IsNotExist(err):
		default:
			logger.Warn().Err(err).Str("path", path).Msg("Failed to remove scratch file")
		}
	}
	p.metrics.RecordTempFilesRemoved(removed)
	logger.Debug().Int("removed", removed).Msg("Scratch files cleaned up")
}

func (p *Pipeline) finish(r *run, err error) error {
	outcome := "ok"
	if err != nil {
		var pe *Error
		if errors.As(err, &pe) {
			outcome = pe.Kind.Error()
		} else {
			outcome = "error"
		}
	}
	p.metrics.RecordPipelineRun(outcome)
	if err != nil && r == nil {
		p.logger.Warn().Err(err).Msg("Concatenation rejected")
	}
	return err
}

// trimArgs remuxes src into out, cutting only the sides that are bounded
func trimArgs(src string, seg Segment, out string) []string {
	args := []string{"-i", src}
	if seg.HasFrom() {
		args = append(args, "-ss", formatSeconds(seg.From))
	}
	if seg.HasTo() {
		args = append(args, "-to", formatSeconds(seg.To))
	}
	return append(args, "-c", "copy", out)
}

func concatArgs(inputs []string, out string) []string {
	return []string{"-i", "concat:" + strings.Join(inputs, "|"), "-c", "copy", out}
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
