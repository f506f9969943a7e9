package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/harun/fieldrec/pkg/catalog"
	"github.com/harun/fieldrec/pkg/recording"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCommand(t *testing.T) {
	t.Run("prompt grant and interactive commands", func(t *testing.T) {
		env := newTestEnv(t)
		take := env.path("take.aac")

		res := env.run(t, "y\nd\np\nr\nbogus\ns\n", "record", take)
		require.NoError(t, res.err, res.errOut)

		assert.Contains(t, res.errOut, "Permission required")
		assert.Contains(t, res.out, "Recording to "+take)
		assert.Contains(t, res.out, "Duration: ")
		assert.Contains(t, res.out, "Paused")
		assert.Contains(t, res.out, "Resumed")
		assert.Contains(t, res.out, `Unknown command "bogus"`)
		assert.Contains(t, res.out, "Saved "+take)

		data, err := os.ReadFile(take)
		require.NoError(t, err)
		assert.Contains(t, string(data), "started")

		res = env.run(t, "", "list", "--json")
		require.NoError(t, res.err)

		var entries []catalog.Entry
		require.NoError(t, json.Unmarshal([]byte(res.out), &entries))
		require.Len(t, entries, 1)
		assert.Equal(t, catalog.KindTake, entries[0].Kind)
		assert.Equal(t, take, entries[0].Path)
	})

	t.Run("grant is remembered", func(t *testing.T) {
		env := newTestEnv(t)

		res := env.run(t, "", "permission", "grant")
		require.NoError(t, res.err)

		// no prompt answer needed, end of input stops the recording
		res = env.run(t, "", "record", "file://"+env.path("take.aac"))
		require.NoError(t, res.err, res.errOut)
		assert.NotContains(t, res.errOut, "Permission required")
		assert.Contains(t, res.out, "Saved "+env.path("take.aac"))
	})

	t.Run("denied", func(t *testing.T) {
		env := newTestEnv(t)

		res := env.run(t, "n\n", "record", env.path("take.aac"))
		require.Error(t, res.err)
		assert.Equal(t, "failed to start recording: MISSING_PERMISSION", res.err.Error())
		assert.NoFileExists(t, env.path("take.aac"))
	})

	t.Run("no cancel-last flag", func(t *testing.T) {
		env := newTestEnv(t)
		res := env.run(t, "", "record", "--cancel-last", env.path("take.aac"))
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "unknown flag")
		assert.NoFileExists(t, env.path("take.aac"))
	})

	t.Run("requires a path", func(t *testing.T) {
		env := newTestEnv(t)
		res := env.run(t, "", "record")
		require.Error(t, res.err)
	})
}

func TestHandleRecordCommand(t *testing.T) {
	session, err := recording.NewSession(recording.Config{Factory: nopFactory{}})
	require.NoError(t, err)

	out := &bytes.Buffer{}

	t.Run("idle session", func(t *testing.T) {
		done, err := handleRecordCommand(out, session, "p\n")
		assert.False(t, done)
		assert.ErrorIs(t, err, recording.ErrNotRecording)

		done, err = handleRecordCommand(out, session, "duration")
		assert.False(t, done)
		assert.ErrorIs(t, err, recording.ErrNotRecording)
	})

	t.Run("blank and stop", func(t *testing.T) {
		done, err := handleRecordCommand(out, session, "  \n")
		assert.False(t, done)
		assert.NoError(t, err)

		for _, line := range []string{"s", "STOP\n", "q", "quit"} {
			done, err := handleRecordCommand(out, session, line)
			assert.True(t, done, line)
			assert.NoError(t, err)
		}
	})
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		sec  int
		want string
	}{
		{0, "00:00"},
		{59, "00:59"},
		{61, "01:01"},
		{3599, "59:59"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatClock(tt.sec))
	}
}

func TestDurationPrinter(t *testing.T) {
	out := &bytes.Buffer{}
	p := newDurationPrinter(out)

	p.Notify(recording.EventRecordDuration, recording.DurationEvent{Duration: 0.1})
	p.Notify(recording.EventRecordDuration, recording.DurationEvent{Duration: 0.5})
	p.Notify(recording.EventRecordDuration, recording.DurationEvent{Duration: 1.2})

	assert.Equal(t, "\r00:00 \r00:01 ", out.String())
}

type nopFactory struct{}

func (nopFactory) Open(recording.CaptureSpec) (recording.Capture, error) {
	return nil, os.ErrInvalid
}
