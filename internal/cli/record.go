package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/harun/fieldrec/pkg/catalog"
	"github.com/harun/fieldrec/pkg/recording"
	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record <path>",
	Short: "Record the microphone into a file",
	Long: `Record the microphone into an AAC file.
While recording, type a command and press Enter:
  p  pause
  r  resume
  d  print the active duration
  s  stop and save
End of input, Ctrl-C and SIGTERM also stop and save.

Each invocation owns its own session. To replace a take that is still
recording, call startRecording with cancelLast through fieldrec serve.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	perms, err := a.newPermissions(true)
	if err != nil {
		return err
	}

	store, err := a.openCatalog()
	if err != nil {
		return err
	}
	defer store.Close()

	session, err := a.newSession(perms, newDurationPrinter(a.errOut))
	if err != nil {
		return err
	}
	defer session.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.StartWait(ctx, recording.StartOptions{Path: args[0]}); err != nil {
		return fmt.Errorf("failed to start recording: %s", recording.Code(err))
	}

	fmt.Fprintf(a.out, "Recording to %s\n", session.Path())
	fmt.Fprintln(a.out, "Commands: p=pause r=resume d=duration s=stop")

	lines := readLines(a.in, ctx.Done())
	for {
		select {
		case <-ctx.Done():
			return finishRecording(ctx, a.out, session, store)

		case line, ok := <-lines:
			if !ok {
				return finishRecording(ctx, a.out, session, store)
			}
			done, err := handleRecordCommand(a.out, session, line)
			if err != nil {
				fmt.Fprintf(a.out, "Error: %s\n", recording.Code(err))
			}
			if done {
				return finishRecording(ctx, a.out, session, store)
			}
		}
	}
}

// handleRecordCommand runs one interactive command. It reports whether
// the recording should be stopped.
func handleRecordCommand(out io.Writer, session *recording.Session, line string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return false, nil
	case "p", "pause":
		if err := session.Pause(); err != nil {
			return false, err
		}
		fmt.Fprintln(out, "Paused")
	case "r", "resume":
		if err := session.Resume(); err != nil {
			return false, err
		}
		fmt.Fprintln(out, "Resumed")
	case "d", "duration":
		d, err := session.Duration()
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "Duration: %.1fs\n", d)
	case "s", "stop", "q", "quit":
		return true, nil
	default:
		fmt.Fprintf(out, "Unknown command %q\n", strings.TrimSpace(line))
	}
	return false, nil
}

func finishRecording(ctx context.Context, out io.Writer, session *recording.Session, store *catalog.Store) error {
	res, err := session.Stop()
	if err != nil {
		return fmt.Errorf("failed to stop recording: %s", recording.Code(err))
	}

	// the take is on disk even when the signal context is already done
	entry, err := store.AddTake(context.WithoutCancel(ctx), res.Path, res.Duration)
	if err != nil {
		fmt.Fprintf(out, "Saved %s (%.1fs), not catalogued: %v\n", res.Path, res.Duration, err)
		return nil
	}

	fmt.Fprintf(out, "Saved %s (%.1fs) as %s\n", res.Path, res.Duration, entry.ID)
	return nil
}

// readLines delivers input lines until EOF or until done is closed
func readLines(r interface{ ReadString(byte) (string, error) }, done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := r.ReadString('\n')
			if line != "" {
				select {
				case lines <- line:
				case <-done:
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return lines
}

// durationPrinter shows the running duration on one terminal line
type durationPrinter struct {
	mu   sync.Mutex
	out  io.Writer
	last int
}

func newDurationPrinter(out io.Writer) *durationPrinter {
	return &durationPrinter{out: out, last: -1}
}

// Notify implements recording.Listener. Only whole-second changes are drawn.
func (p *durationPrinter) Notify(_ string, payload recording.DurationEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sec := int(payload.Duration)
	if sec == p.last {
		return
	}
	p.last = sec
	fmt.Fprintf(p.out, "\r%s ", formatClock(sec))
}

// formatClock renders seconds as mm:ss or h:mm:ss
func formatClock(sec int) string {
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
