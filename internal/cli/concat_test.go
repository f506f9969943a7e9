package cli

import (
	"os"
	"testing"

	"github.com/harun/fieldrec/pkg/concat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSegmentFlag(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    concat.Segment
		wantErr bool
	}{
		{name: "path only", spec: "a.aac", want: concat.Segment{Path: "a.aac"}},
		{name: "from", spec: "a.aac,2.5", want: concat.Segment{Path: "a.aac", From: 2.5}},
		{name: "to only", spec: "a.aac,,10", want: concat.Segment{Path: "a.aac", To: 10}},
		{name: "both with spaces", spec: " a.aac , 1 , 3 ", want: concat.Segment{Path: "a.aac", From: 1, To: 3}},
		{name: "too many parts", spec: "a,1,2,3", wantErr: true},
		{name: "bad bound", spec: "a.aac,x", wantErr: true},
		{name: "infinite bound", spec: "a.aac,+Inf", wantErr: true},
		{name: "NaN bound", spec: "a.aac,,NaN", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSegmentFlag(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConcatCommand(t *testing.T) {
	t.Run("flag segments", func(t *testing.T) {
		env := newTestEnv(t)
		a, b := env.path("a.aac"), env.path("b.aac")
		require.NoError(t, os.WriteFile(a, []byte("a"), 0644))
		require.NoError(t, os.WriteFile(b, []byte("b"), 0644))
		dest := env.path("joined.aac")

		res := env.run(t, "", "concat", "--segment", a+",1.5", "--segment", b+",,3", "--out", dest)
		require.NoError(t, res.err, res.errOut)
		assert.Equal(t, dest+"\n", res.out)
		assert.FileExists(t, dest)

		res = env.run(t, "", "list", "--kind", "assembled")
		require.NoError(t, res.err)
		assert.Contains(t, res.out, "2 segments")
		assert.Contains(t, res.out, dest)
	})

	t.Run("json segments from stdin", func(t *testing.T) {
		env := newTestEnv(t)
		a := env.path("a.aac")
		require.NoError(t, os.WriteFile(a, []byte("a"), 0644))
		dest := env.path("joined.aac")

		stdin := `[{"path":"` + a + `","from":0,"to":2}]`
		res := env.run(t, stdin, "concat", "--segments-json", "-", "-o", dest)
		require.NoError(t, res.err, res.errOut)
		assert.FileExists(t, dest)
	})

	t.Run("missing segment", func(t *testing.T) {
		env := newTestEnv(t)
		a := env.path("a.aac")
		require.NoError(t, os.WriteFile(a, []byte("a"), 0644))

		res := env.run(t, "", "concat", "--segment", a, "--segment", env.path("gone.aac"), "--out", env.path("joined.aac"))
		require.Error(t, res.err)
		assert.Equal(t, "concatenation failed: segment_file_not_found_1", res.err.Error())
		assert.NoFileExists(t, env.path("joined.aac"))
	})

	t.Run("malformed json", func(t *testing.T) {
		env := newTestEnv(t)
		res := env.run(t, "{", "concat", "--segments-json", "-", "--out", env.path("joined.aac"))
		require.Error(t, res.err)
		assert.Equal(t, "concatenation failed: invalid_options", res.err.Error())
	})

	t.Run("non-finite bound", func(t *testing.T) {
		env := newTestEnv(t)
		a := env.path("a.aac")
		require.NoError(t, os.WriteFile(a, []byte("a"), 0644))

		res := env.run(t, "", "concat", "--segment", a+",+Inf", "--out", env.path("joined.aac"))
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "concatenation failed: invalid_options")
		assert.NoFileExists(t, env.path("joined.aac"))
	})

	t.Run("exclusive flags", func(t *testing.T) {
		env := newTestEnv(t)
		res := env.run(t, "", "concat", "--segment", "a", "--segments-json", "-", "--out", "x")
		require.Error(t, res.err)
	})
}
