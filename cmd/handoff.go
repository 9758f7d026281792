package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/campaign-cli/internal/handoff"
	"github.com/sells-group/campaign-cli/pkg/notion"
)

var handoffCmd = &cobra.Command{
	Use:   "handoff",
	Short: "Push finished leads to review and CRM surfaces",
}

var handoffNotionCmd = &cobra.Command{
	Use:   "notion <campaign-id>",
	Short: "Push summarized leads to the Notion review database",
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

		if cfg.Notion.Token == "" || cfg.Notion.LeadDB == "" {
			return fmt.Errorf("notion token and lead database must be configured")
		}

		pusher := handoff.NewNotionPusher(notion.NewClient(cfg.Notion.Token), cfg.Notion.LeadDB)
		res, err := pusher.PushCampaign(ctx, st, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("pushed %d, skipped %d, failed %d\n", res.Pushed, res.Skipped, res.Failed)
		return nil
	},
}

var handoffSalesforceCmd = &cobra.Command{
	Use:   "salesforce <campaign-id>",
	Short: "Sync verified leads into Salesforce",
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

		sfClient, err := initSalesforce()
		if err != nil {
			return err
		}

		syncer := handoff.NewSalesforceSyncer(sfClient)
		res, err := syncer.SyncCampaign(ctx, st, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("synced %d, skipped %d, failed %d\n", res.Pushed, res.Skipped, res.Failed)
		return nil
	},
}

func init() {
	handoffCmd.AddCommand(handoffNotionCmd, handoffSalesforceCmd)
	rootCmd.AddCommand(handoffCmd)
}
