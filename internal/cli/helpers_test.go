package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

const testSecret = "cli-test-secret-0123"

// fakeFFmpeg records until interrupted when given an input format and
// otherwise writes its last argument and exits
const fakeFFmpeg = `#!/bin/sh
for a in "$@"; do out="$a"; done
case " $* " in
*" -f "*)
  trap 'echo done >> "$out"; exit 255' INT TERM
  echo started > "$out"
  while true; do sleep 0.02; done
  ;;
esac
echo data > "$out"
`

// syncBuffer is a bytes.Buffer safe for concurrent writers
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testEnv struct {
	dir        string
	configPath string
}

// newTestEnv writes a config that keeps every file under a temp dir and
// points the capture and transcoder binary at a fake
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	dir := t.TempDir()
	binary := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(binary, []byte(fakeFFmpeg), 0755))

	cfg := map[string]interface{}{
		"data_dir": dir,
		"transcoder": map[string]interface{}{
			"binary": binary,
		},
		"recorder": map[string]interface{}{
			"input_format":     "lavfi",
			"device":           "anullsrc",
			"tick_interval_ms": 20,
		},
		"logging": map[string]interface{}{
			"level":   "debug",
			"console": false,
			"file":    filepath.Join(dir, "fieldrec.log"),
		},
		"gateway": map[string]interface{}{
			"host":          "127.0.0.1",
			"port":          0,
			"shared_secret": testSecret,
		},
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	configPath := filepath.Join(dir, "fieldrec.json")
	require.NoError(t, os.WriteFile(configPath, data, 0600))

	return &testEnv{dir: dir, configPath: configPath}
}

func (e *testEnv) path(name string) string {
	return filepath.Join(e.dir, name)
}

// resetFlags restores every flag to its default so that executions of the
// shared root command do not leak into each other
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

type result struct {
	out    string
	errOut string
	err    error
}

func executeCommand(ctx context.Context, stdin string, out *syncBuffer, args ...string) result {
	cmd := GetRootCmd()
	resetFlags(cmd)

	if out == nil {
		out = &syncBuffer{}
	}
	errOut := &syncBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	return result{out: out.String(), errOut: errOut.String(), err: err}
}

func (e *testEnv) run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	return executeCommand(context.Background(), stdin, nil, append(args, "--config", e.configPath)...)
}
