package concat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTranscoder records every invocation and writes the output file
// (the last argument) unless the call is configured to fail.
type fakeTranscoder struct {
	calls  [][]string
	failAt map[int]error
}

func (f *fakeTranscoder) Invoke(_ context.Context, args []string) error {
	n := len(f.calls)
	f.calls = append(f.calls, append([]string(nil), args...))

	out := args[len(args)-1]
	if err, ok := f.failAt[n]; ok {
		// a failing transcoder may leave a partial output behind
		_ = os.WriteFile(out, []byte("partial"), 0644)
		return err
	}
	return os.WriteFile(out, []byte("data"), 0644)
}

type pipelineHarness struct {
	pipeline   *Pipeline
	transcoder *fakeTranscoder
	scratch    string
	dir        string
}

func newPipelineHarness(t *testing.T) *pipelineHarness {
	t.Helper()

	h := &pipelineHarness{
		transcoder: &fakeTranscoder{failAt: map[int]error{}},
		scratch:    filepath.Join(t.TempDir(), "scratch"),
		dir:        t.TempDir(),
	}

	p, err := NewPipeline(Config{
		Transcoder: h.transcoder,
		ScratchDir: h.scratch,
		Logger:     zerolog.Nop(),
		NewRunID:   func() string { return "run1" },
	})
	require.NoError(t, err)
	h.pipeline = p
	return h
}

func (h *pipelineHarness) source(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(path, []byte("aac"), 0644))
	return path
}

func (h *pipelineHarness) assertScratchEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directory must hold no pipeline files")
}

func TestNewPipeline_Validation(t *testing.T) {
	_, err := NewPipeline(Config{ScratchDir: t.TempDir()})
	assert.Error(t, err)

	_, err = NewPipeline(Config{Transcoder: &fakeTranscoder{}})
	assert.Error(t, err)
}

func TestNewPipeline_CreatesScratchDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	p, err := NewPipeline(Config{Transcoder: &fakeTranscoder{}, ScratchDir: dir})
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, dir, p.ScratchDir())
}

func TestConcatenate_TrimJoinEncode(t *testing.T) {
	h := newPipelineHarness(t)
	s0 := h.source(t, "s0.aac")
	s1 := h.source(t, "s1.aac")
	out := filepath.Join(h.dir, "out.aac")

	err := h.pipeline.Concatenate(context.Background(), []Segment{
		{Path: s0, From: 1.0, To: 3.0},
		{Path: s1},
	}, out)
	require.NoError(t, err)

	seg0 := filepath.Join(h.scratch, "concat-segment-run1-0.ts")
	seg1 := filepath.Join(h.scratch, "concat-segment-run1-1.ts")
	joined := filepath.Join(h.scratch, "concat-run1.ts")

	require.Len(t, h.transcoder.calls, 4)
	assert.Equal(t, []string{"-i", s0, "-ss", "1", "-to", "3", "-c", "copy", seg0}, h.transcoder.calls[0])
	assert.Equal(t, []string{"-i", s1, "-c", "copy", seg1}, h.transcoder.calls[1])
	assert.Equal(t, []string{"-i", "concat:" + seg0 + "|" + seg1, "-c", "copy", joined}, h.transcoder.calls[2])
	assert.Equal(t, []string{"-i", joined, out}, h.transcoder.calls[3])

	_, err = os.Stat(out)
	assert.NoError(t, err)
	h.assertScratchEmpty(t)
}

func TestConcatenate_PreservesSegmentOrder(t *testing.T) {
	h := newPipelineHarness(t)
	var segments []Segment
	for i := 0; i < 5; i++ {
		segments = append(segments, Segment{Path: h.source(t, fmt.Sprintf("take%d.aac", i))})
	}

	require.NoError(t, h.pipeline.Concatenate(context.Background(), segments, filepath.Join(h.dir, "out.aac")))

	require.Len(t, h.transcoder.calls, len(segments)+2)
	for i, seg := range segments {
		assert.Equal(t, seg.Path, h.transcoder.calls[i][1], "trim %d out of order", i)
	}

	concatInput := h.transcoder.calls[len(segments)][1]
	parts := strings.Split(strings.TrimPrefix(concatInput, "concat:"), "|")
	require.Len(t, parts, len(segments))
	for i, part := range parts {
		assert.Equal(t, fmt.Sprintf("concat-segment-run1-%d.ts", i), filepath.Base(part))
	}
}

func TestConcatenate_TrimBoundsAreIndependent(t *testing.T) {
	h := newPipelineHarness(t)
	src := h.source(t, "s.aac")

	require.NoError(t, h.pipeline.Concatenate(context.Background(), []Segment{
		{Path: src, From: 2.5},
		{Path: src, To: 4.25},
		{Path: src, From: -1, To: 0},
	}, filepath.Join(h.dir, "out.aac")))

	assert.Equal(t, []string{"-ss", "2.5"}, h.transcoder.calls[0][2:4])
	assert.NotContains(t, h.transcoder.calls[0], "-to")

	assert.Equal(t, []string{"-to", "4.25"}, h.transcoder.calls[1][2:4])
	assert.NotContains(t, h.transcoder.calls[1], "-ss")

	assert.NotContains(t, h.transcoder.calls[2], "-ss")
	assert.NotContains(t, h.transcoder.calls[2], "-to")
}

func TestConcatenate_StripsFileScheme(t *testing.T) {
	h := newPipelineHarness(t)
	src := h.source(t, "s.aac")
	out := filepath.Join(h.dir, "out.aac")

	require.NoError(t, h.pipeline.Concatenate(context.Background(), []Segment{{Path: "file://" + src}}, "file://"+out))

	assert.Equal(t, src, h.transcoder.calls[0][1])
	assert.Equal(t, out, h.transcoder.calls[2][len(h.transcoder.calls[2])-1])
}

func TestConcatenate_EncodeArgs(t *testing.T) {
	h := newPipelineHarness(t)
	p, err := NewPipeline(Config{
		Transcoder: h.transcoder,
		ScratchDir: h.scratch,
		EncodeArgs: []string{"-c:a", "aac", "-b:a", "32k"},
		NewRunID:   func() string { return "run2" },
	})
	require.NoError(t, err)

	out := filepath.Join(h.dir, "out.m4a")
	require.NoError(t, p.Concatenate(context.Background(), []Segment{{Path: h.source(t, "s.aac")}}, out))

	last := h.transcoder.calls[len(h.transcoder.calls)-1]
	assert.Equal(t, []string{"-i", filepath.Join(h.scratch, "concat-run2.ts"), "-c:a", "aac", "-b:a", "32k", out}, last)
}

func TestConcatenate_InvalidOptions(t *testing.T) {
	h := newPipelineHarness(t)
	src := h.source(t, "s.aac")

	cases := []struct {
		name     string
		segments []Segment
		dest     string
	}{
		{"no segments", nil, "out.aac"},
		{"no destination", []Segment{{Path: src}}, ""},
		{"segment without path", []Segment{{Path: src}, {From: 1}}, "out.aac"},
		{"infinite bound", []Segment{{Path: src, From: math.Inf(1)}}, "out.aac"},
		{"NaN bound", []Segment{{Path: src, To: math.NaN()}}, "out.aac"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := h.pipeline.Concatenate(context.Background(), tc.segments, tc.dest)
			assert.ErrorIs(t, err, ErrInvalidOptions)
			assert.Equal(t, "invalid_options", Reason(err))
		})
	}

	assert.Empty(t, h.transcoder.calls)
	h.assertScratchEmpty(t)
}

func TestConcatenate_SegmentNotFound(t *testing.T) {
	h := newPipelineHarness(t)
	out := filepath.Join(h.dir, "out.aac")

	err := h.pipeline.Concatenate(context.Background(), []Segment{
		{Path: h.source(t, "s0.aac")},
		{Path: filepath.Join(h.dir, "missing.aac")},
		{Path: h.source(t, "s2.aac")},
	}, out)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSegmentNotFound)
	assert.Equal(t, "segment_file_not_found_1", err.Error())

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 1, pe.Index)

	assert.Len(t, h.transcoder.calls, 1, "segments after the failure are never processed")
	h.assertScratchEmpty(t)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "destination must not be created")
}

func TestConcatenate_SegmentNotFoundLeavesExistingDestination(t *testing.T) {
	h := newPipelineHarness(t)
	out := h.source(t, "out.aac")

	err := h.pipeline.Concatenate(context.Background(), []Segment{{Path: filepath.Join(h.dir, "missing.aac")}}, out)
	assert.Equal(t, "segment_file_not_found_0", Reason(err))

	data, readErr := os.ReadFile(out)
	require.NoError(t, readErr)
	assert.Equal(t, "aac", string(data))
}

func TestConcatenate_DirectoryIsNotASegment(t *testing.T) {
	h := newPipelineHarness(t)

	err := h.pipeline.Concatenate(context.Background(), []Segment{{Path: h.dir}}, filepath.Join(h.dir, "out.aac"))
	assert.Equal(t, "segment_file_not_found_0", Reason(err))
}

func TestConcatenate_SegmentFailed(t *testing.T) {
	h := newPipelineHarness(t)
	cause := errors.New("exit code 1")
	h.transcoder.failAt[1] = cause

	err := h.pipeline.Concatenate(context.Background(), []Segment{
		{Path: h.source(t, "s0.aac")},
		{Path: h.source(t, "s1.aac")},
		{Path: h.source(t, "s2.aac")},
	}, filepath.Join(h.dir, "out.aac"))

	assert.Equal(t, "segment_file_failed_1", Reason(err))
	assert.ErrorIs(t, err, ErrSegmentFailed)
	assert.ErrorIs(t, err, cause)
	assert.Len(t, h.transcoder.calls, 2)
	h.assertScratchEmpty(t)
}

func TestConcatenate_ConcatFailed(t *testing.T) {
	h := newPipelineHarness(t)
	h.transcoder.failAt[2] = errors.New("exit code 1")
	out := h.source(t, "out.aac")

	err := h.pipeline.Concatenate(context.Background(), []Segment{
		{Path: h.source(t, "s0.aac")},
		{Path: h.source(t, "s1.aac")},
	}, out)

	assert.Equal(t, "concat_failed", Reason(err))
	assert.Len(t, h.transcoder.calls, 3)
	h.assertScratchEmpty(t)

	_, statErr := os.Stat(out)
	assert.NoError(t, statErr, "destination is only removed once the join succeeds")
}

func TestConcatenate_FinalEncodingFailed(t *testing.T) {
	h := newPipelineHarness(t)
	h.transcoder.failAt[1] = errors.New("exit code 1")

	err := h.pipeline.Concatenate(context.Background(), []Segment{{Path: h.source(t, "s0.aac")}}, filepath.Join(h.dir, "out.aac"))

	assert.Equal(t, "final_encoding_failed", Reason(err))
	assert.ErrorIs(t, err, ErrFinalEncodingFailed)
	h.assertScratchEmpty(t)
}

func TestConcatenate_ReplacesExistingDestination(t *testing.T) {
	h := newPipelineHarness(t)
	out := h.source(t, "out.aac")

	require.NoError(t, h.pipeline.Concatenate(context.Background(), []Segment{{Path: h.source(t, "s0.aac")}}, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestConcatenate_UniqueRunIDs(t *testing.T) {
	tr := &fakeTranscoder{failAt: map[int]error{}}
	dir := t.TempDir()
	p, err := NewPipeline(Config{Transcoder: tr, ScratchDir: filepath.Join(dir, "scratch")})
	require.NoError(t, err)

	src := filepath.Join(dir, "s.aac")
	require.NoError(t, os.WriteFile(src, []byte("aac"), 0644))

	require.NoError(t, p.Concatenate(context.Background(), []Segment{{Path: src}}, filepath.Join(dir, "a.aac")))
	require.NoError(t, p.Concatenate(context.Background(), []Segment{{Path: src}}, filepath.Join(dir, "b.aac")))

	assert.NotEqual(t, tr.calls[0][len(tr.calls[0])-1], tr.calls[3][len(tr.calls[3])-1])
}

func TestReason(t *testing.T) {
	assert.Equal(t, "", Reason(nil))
	assert.Equal(t, "boom", Reason(errors.New("boom")))
	assert.Equal(t, "segment_file_failed_3", Reason(fmt.Errorf("wrapped: %w", newError(ErrSegmentFailed, 3, nil))))
	assert.Equal(t, "concat_failed", newError(ErrConcatFailed, -1, nil).Error())
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "1", formatSeconds(1.0))
	assert.Equal(t, "0.125", formatSeconds(0.125))
	assert.Equal(t, "90.5", formatSeconds(90.5))
}
