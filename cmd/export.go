package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outlet-cli/internal/config"
	"github.com/sells-group/outlet-cli/internal/model"
)

var (
	exportPath string
	exportLive bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the outlets spreadsheet",
	Long: `Writes stored outlets to the XLSX snapshot used by chat. With --live the
page is scraped and enriched first and the fresh outlets are written
instead; nothing is persisted in that case.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if exportPath != "" {
			cfg.Export.Path = exportPath
		}

		env, err := initPipeline(ctx, cfg, config.ModeExport)
		if err != nil {
			return err
		}
		defer env.Close()

		var outlets []model.Outlet
		if exportLive {
			res, err := env.Pipeline.RunQuery(ctx)
			if err != nil {
				return eris.Wrap(err, "pipeline query")
			}
			outlets = res.Outlets
		} else {
			if env.Store == nil {
				return eris.New("export: store unavailable")
			}
			stored, err := env.Store.ListOutlets(ctx)
			if err != nil {
				return eris.Wrap(err, "export: list outlets")
			}
			outlets = make([]model.Outlet, 0, len(stored))
			for i := range stored {
				outlets = append(outlets, stored[i].Outlet())
			}
		}

		exp, err := initExporter(ctx, cfg, true)
		if err != nil {
			return err
		}
		res, err := exp.Export(ctx, outlets)
		if err != nil {
			return eris.Wrap(err, "export")
		}

		zap.L().Info("export complete",
			zap.String("path", res.Path),
			zap.String("location", res.Location),
			zap.Int("rows", res.Rows),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportPath, "path", "", "output file (default from config)")
	exportCmd.Flags().BoolVar(&exportLive, "live", false, "scrape instead of reading the store")
	rootCmd.AddCommand(exportCmd)
}
