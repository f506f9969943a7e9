package permission

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/harun/fieldrec/pkg/recording"
	"github.com/rs/zerolog"
)

var capabilityPrompts = map[recording.Capability]string{
	recording.CapabilityRecording: "Allow microphone recording and writing audio files?",
}

// CLIPrompter asks for a capability on a terminal
type CLIPrompter struct {
	reader *bufio.Reader
	writer io.Writer
	logger zerolog.Logger
}

// NewCLIPrompter creates a prompter. Pass the same *bufio.Reader used
// elsewhere for the terminal so buffered input is not lost.
func NewCLIPrompter(reader io.Reader, writer io.Writer, logger zerolog.Logger) *CLIPrompter {
	br, ok := reader.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(reader)
	}
	return &CLIPrompter{
		reader: br,
		writer: writer,
		logger: logger.With().Str("component", "permission-prompt").Logger(),
	}
}

// Prompt implements Prompter. EOF and anything but y/yes deny.
func (p *CLIPrompter) Prompt(ctx context.Context, c recording.Capability) (bool, error) {
	p.display(c)

	type answer struct {
		line string
		err  error
	}
	answerCh := make(chan answer, 1)

	go func() {
		line, err := p.reader.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		answerCh <- answer{line: line, err: err}
	}()

	select {
	case a := <-answerCh:
		if a.err == io.EOF {
			fmt.Fprintln(p.writer, "")
			p.logger.Info().Str("capability", string(c)).Msg("No input, permission denied")
			return false, nil
		}
		if a.err != nil {
			return false, fmt.Errorf("failed to read input: %w", a.err)
		}
		return p.parse(c, a.line), nil

	case <-ctx.Done():
		fmt.Fprintln(p.writer, "\n  Permission request timed out")
		return false, ctx.Err()
	}
}

func (p *CLIPrompter) display(c recording.Capability) {
	question, ok := capabilityPrompts[c]
	if !ok {
		question = fmt.Sprintf("Allow %s?", c)
	}

	fmt.Fprintln(p.writer, "")
	fmt.Fprintln(p.writer, "  Permission required")
	fmt.Fprintf(p.writer, "  Capability: %s\n", c)
	fmt.Fprintln(p.writer, "")
	fmt.Fprintf(p.writer, "  %s [y/N]: ", question)
}

func (p *CLIPrompter) parse(c recording.Capability, line string) bool {
	input := strings.TrimSpace(strings.ToLower(line))

	switch input {
	case "y", "yes":
		fmt.Fprintln(p.writer, "  Granted")
		p.logger.Info().Str("capability", string(c)).Msg("Permission granted via CLI")
		return true
	case "n", "no", "":
		fmt.Fprintln(p.writer, "  Denied")
	default:
		fmt.Fprintf(p.writer, "  Invalid input %q, denied\n", input)
		p.logger.Warn().Str("capability", string(c)).Str("input", input).Msg("Invalid permission input")
	}
	return false
}
