package cli

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/harun/fieldrec/pkg/recording"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and grant status",
	Long:  `Show whether fieldrec serve is running and which capabilities are granted.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	lock := a.serverLock()
	if !lock.Held() {
		fmt.Fprintln(a.out, "Server: stopped")
	} else {
		pid, _ := readPID(lock.Path())
		fmt.Fprintln(a.out, "Server: running")
		fmt.Fprintf(a.out, "PID: %d\n", pid)
		fmt.Fprintf(a.out, "Address: %s\n", a.cfg.Gateway.Addr())

		// Get PID file modification time for uptime calculation
		if info, err := os.Stat(lock.Path()); err == nil {
			fmt.Fprintf(a.out, "Uptime: %s\n", formatDuration(time.Since(info.ModTime())))
		}
	}

	perms, err := a.newPermissions(false)
	if err != nil {
		return err
	}
	var granted []string
	for c, ok := range perms.Status() {
		if ok {
			granted = append(granted, string(c))
		}
	}
	sort.Strings(granted)
	if len(granted) == 0 {
		fmt.Fprintf(a.out, "Granted: none (run fieldrec permission grant %s)\n", recording.CapabilityRecording)
	} else {
		fmt.Fprintf(a.out, "Granted: %s\n", strings.Join(granted, ", "))
	}

	return nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}
	return pid, nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
