package cli

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/harun/fieldrec/pkg/concat"
	"github.com/harun/fieldrec/pkg/recording"
	"github.com/spf13/cobra"
)

var (
	concatSegments     []string
	concatSegmentsJSON string
	concatOut          string
)

var concatCmd = &cobra.Command{
	Use:   "concat",
	Short: "Assemble trimmed segments into one file",
	Long: `Trim each segment, join them in order and re-encode the result.
Segments are given as --segment path[,from[,to]] (seconds; an empty or
non-positive bound leaves that side untrimmed) or as a JSON array with
--segments-json file ("-" reads standard input).

On failure the command prints the reason, e.g. segment_file_not_found_1.`,
	Example: `  fieldrec concat --segment a.aac,2.5 --segment b.aac,,10 --out joined.aac
  fieldrec concat --segments-json segments.json --out joined.aac`,
	Args: cobra.NoArgs,
	RunE: runConcat,
}

func init() {
	concatCmd.Flags().StringArrayVar(&concatSegments, "segment", nil, "segment as path[,from[,to]] (repeatable)")
	concatCmd.Flags().StringVar(&concatSegmentsJSON, "segments-json", "", "JSON segment list file, - for stdin")
	concatCmd.Flags().StringVarP(&concatOut, "out", "o", "", "destination file")
	concatCmd.MarkFlagsMutuallyExclusive("segment", "segments-json")
	rootCmd.AddCommand(concatCmd)
}

func runConcat(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	segments, err := collectSegments(cmd.InOrStdin())
	if err != nil {
		return err
	}

	pipeline, err := a.newPipeline()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := pipeline.Concatenate(ctx, segments, concatOut); err != nil {
		return fmt.Errorf("concatenation failed: %s", concat.Reason(err))
	}

	dest := recording.StripFileScheme(concatOut)
	store, err := a.openCatalog()
	if err != nil {
		a.logger.Warn().Err(err).Msg("Catalog unavailable, assembled file not recorded")
	} else {
		defer store.Close()
		if _, err := store.AddAssembled(context.WithoutCancel(ctx), dest, len(segments)); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to catalog assembled file")
		}
	}

	fmt.Fprintln(a.out, dest)
	return nil
}

// collectSegments builds the segment list from --segment or --segments-json
func collectSegments(stdin io.Reader) ([]concat.Segment, error) {
	if concatSegmentsJSON != "" {
		var raw []byte
		var err error
		if concatSegmentsJSON == "-" {
			raw, err = io.ReadAll(stdin)
		} else {
			raw, err = os.ReadFile(concatSegmentsJSON)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read segments: %w", err)
		}
		segments, err := concat.ParseSegments(raw)
		if err != nil {
			return nil, fmt.Errorf("concatenation failed: %s", concat.Reason(err))
		}
		return segments, nil
	}

	segments := make([]concat.Segment, 0, len(concatSegments))
	for _, spec := range concatSegments {
		seg, err := parseSegmentFlag(spec)
		if err != nil {
			return nil, fmt.Errorf("concatenation failed: %s: %w", concat.ErrInvalidOptions, err)
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// parseSegmentFlag parses path[,from[,to]]
func parseSegmentFlag(spec string) (concat.Segment, error) {
	parts := strings.Split(spec, ",")
	if len(parts) > 3 {
		return concat.Segment{}, fmt.Errorf("invalid segment %q: want path[,from[,to]]", spec)
	}

	seg := concat.Segment{Path: strings.TrimSpace(parts[0])}

	bound := func(s string) (float64, error) {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("invalid segment %q: bad bound %q", spec, s)
		}
		return v, nil
	}

	var err error
	if len(parts) > 1 {
		if seg.From, err = bound(parts[1]); err != nil {
			return concat.Segment{}, err
		}
	}
	if len(parts) > 2 {
		if seg.To, err = bound(parts[2]); err != nil {
			return concat.Segment{}, err
		}
	}
	return seg, nil
}
