package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/harun/fieldrec/pkg/catalog"
	"github.com/spf13/cobra"
)

var (
	listKind  string
	listLimit int
	listJSON  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded and assembled files",
	Long:  `List catalogued recordings, newest first.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listKind, "kind", "", "filter by kind (take, assembled)")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum entries, 0 for all")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "print JSON")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	var f catalog.Filter
	switch catalog.Kind(listKind) {
	case "":
	case catalog.KindTake, catalog.KindAssembled:
		f.Kind = catalog.Kind(listKind)
	default:
		return fmt.Errorf("unknown kind %q (must be take or assembled)", listKind)
	}
	if listLimit < 0 {
		return fmt.Errorf("limit must be >= 0")
	}
	f.Limit = listLimit

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	store, err := a.openCatalog()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(cmd.Context(), f)
	if err != nil {
		return err
	}

	if listJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(a.out, "No recordings")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tCREATED\tDETAIL\tPATH")
	for _, e := range entries {
		detail := fmt.Sprintf("%.1fs", e.Duration)
		if e.Kind == catalog.KindAssembled {
			detail = fmt.Sprintf("%d segments", e.Segments)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Kind, e.CreatedAt.Local().Format(time.DateTime), detail, e.Path)
	}
	return w.Flush()
}
