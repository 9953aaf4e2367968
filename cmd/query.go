package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outlet-cli/internal/config"
	"github.com/sells-group/outlet-cli/internal/model"
	"github.com/sells-group/outlet-cli/internal/pipeline"
)

var (
	queryURL      string
	queryLocality string
	queryJSON     bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Scrape and enrich outlets without writing to the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		applyFetchOverrides(queryURL, queryLocality)

		env, err := initPipeline(ctx, cfg, config.ModeQuery)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.RunQuery(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline query")
		}
		return printRunResult(os.Stdout, result, queryJSON)
	},
}

// printOutlets renders one row per outlet. Absent values print as N/A.
func printOutlets(w io.Writer, outlets []model.Outlet) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tPHONE\tLINK\tLATITUDE\tLONGITUDE\tSERVICES")
	for i := range outlets {
		o := &outlets[i]
		lat, lng := model.Absent, model.Absent
		if o.Coordinates != nil {
			lat = fmt.Sprintf("%.6f", o.Coordinates.Latitude)
			lng = fmt.Sprintf("%.6f", o.Coordinates.Longitude)
		}
		services := model.Absent
		if len(o.Services) > 0 {
			services = strings.Join(o.Services, ", ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.Name, o.DisplayAddress(), o.DisplayPhone(), o.DisplayLink(), lat, lng, services)
	}
	return tw.Flush()
}

func printSummary(w io.Writer, res *pipeline.Result) error {
	_, err := fmt.Fprintf(w,
		"\nrun %s: extracted=%d matched=%d geocoded=%d/%d skipped=%d reused=%d persisted=%d source=%s\n",
		res.RunID, res.Extracted, res.Matched,
		res.Enrich.Resolved, res.Enrich.Attempted, res.Enrich.Skipped, res.Enrich.Reused,
		res.Persisted, res.Source,
	)
	return err
}

func init() {
	queryCmd.Flags().StringVar(&queryURL, "url", "", "directory page URL (default from config)")
	queryCmd.Flags().StringVar(&queryLocality, "locality", "", "locality filter (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(queryCmd)
}
