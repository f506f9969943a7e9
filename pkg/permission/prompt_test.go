package permission

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/harun/fieldrec/pkg/recording"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLIPrompter_Answers(t *testing.T) {
	cases := map[string]bool{
		"y\n":     true,
		"YES\n":   true,
		"  yes  ": true,
		"n\n":     false,
		"\n":      false,
		"maybe\n": false,
		"":        false,
	}

	for input, want := range cases {
		var out bytes.Buffer
		p := NewCLIPrompter(strings.NewReader(input), &out, zerolog.Nop())

		granted, err := p.Prompt(context.Background(), recording.CapabilityRecording)
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, want, granted, "input %q", input)
		assert.Contains(t, out.String(), "Allow microphone recording")
	}
}

func TestCLIPrompter_Timeout(t *testing.T) {
	r, w := io.Pipe()
	defer func() { _ = w.Close() }()

	var out bytes.Buffer
	p := NewCLIPrompter(r, &out, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	granted, err := p.Prompt(ctx, recording.CapabilityRecording)
	assert.False(t, granted)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCLIPrompter_SharedReader(t *testing.T) {
	// the rest of the input stays readable by the caller
	in := strings.NewReader("y\ns\n")
	var out bytes.Buffer
	p := NewCLIPrompter(in, &out, zerolog.Nop())

	granted, err := p.Prompt(context.Background(), recording.CapabilityRecording)
	require.NoError(t, err)
	assert.True(t, granted)

	line, err := p.reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "s\n", line)
}
