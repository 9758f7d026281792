package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/campaign-cli/internal/export"
	"github.com/sells-group/campaign-cli/internal/model"
	"github.com/sells-group/campaign-cli/internal/store"
)

var (
	exportOut   string
	exportStage string
	exportFTP   bool
)

var exportCmd = &cobra.Command{
	Use:   "export <campaign-id>",
	Short: "Write campaign results to an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		c, err := st.GetCampaign(ctx, args[0])
		if err != nil {
			return err
		}

		var leads []model.Lead
		offset := 0
		const page = 500
		for {
			batch, err := st.ListLeads(ctx, c.ID, store.LeadFilter{
				Stage:  model.LeadStage(exportStage),
				Limit:  page,
				Offset: offset,
			})
			if err != nil {
				return err
			}
			leads = append(leads, batch...)
			if len(batch) < page {
				break
			}
			offset += len(batch)
		}

		out := exportOut
		if out == "" {
			out = fmt.Sprintf("%s.xlsx", c.Name)
		}
		if err := export.WriteWorkbook(out, c, leads); err != nil {
			return err
		}
		fmt.Printf("wrote %d leads to %s\n", len(leads), out)

		if exportFTP {
			up := export.NewUploader(export.FTPConfig{
				Addr: cfg.Export.FTPAddr,
				User: cfg.Export.FTPUser,
				Pass: cfg.Export.FTPPass,
				Dir:  cfg.Export.FTPDir,
			})
			if err := up.Upload(ctx, out); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default <campaign-name>.xlsx)")
	exportCmd.Flags().StringVar(&exportStage, "stage", "", "only export leads at this stage")
	exportCmd.Flags().BoolVar(&exportFTP, "ftp", false, "upload the workbook to the configured FTP drop")
	rootCmd.AddCommand(exportCmd)
}
