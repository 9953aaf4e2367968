package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outlet-cli/internal/config"
	"github.com/sells-group/outlet-cli/internal/pipeline"
)

var (
	runURL      string
	runLocality string
	runJSON     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scrape, enrich and upsert outlets",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		applyFetchOverrides(runURL, runLocality)

		env, err := initPipeline(ctx, cfg, config.ModeRun)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.RunPersisted(ctx)
		if result != nil {
			if perr := printRunResult(os.Stdout, result, runJSON); perr != nil {
				zap.L().Warn("print result", zap.Error(perr))
			}
		}
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("run complete",
			zap.String("run_id", result.RunID),
			zap.Int("extracted", result.Extracted),
			zap.Int("matched", result.Matched),
			zap.Int64("persisted", result.Persisted),
			zap.Duration("duration", result.Duration),
		)
		return nil
	},
}

// applyFetchOverrides lets flags replace the configured URL and locality.
func applyFetchOverrides(url, locality string) {
	if url != "" {
		cfg.Fetch.URL = url
	}
	if locality != "" {
		cfg.Fetch.Locality = locality
	}
}

// printRunResult writes the result as indented JSON or as an outlet table
// followed by the enrichment counts.
func printRunResult(w io.Writer, res *pipeline.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	if err := printOutlets(w, res.Outlets); err != nil {
		return err
	}
	return printSummary(w, res)
}

func init() {
	runCmd.Flags().StringVar(&runURL, "url", "", "directory page URL (default from config)")
	runCmd.Flags().StringVar(&runLocality, "locality", "", "locality filter (default from config)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the run result as JSON")
	rootCmd.AddCommand(runCmd)
}
