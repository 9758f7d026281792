package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/campaign-cli/internal/campaign"
	"github.com/sells-group/campaign-cli/internal/model"
	"github.com/sells-group/campaign-cli/internal/store"
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Create and drive lead-generation campaigns",
}

var (
	createName    string
	createRegion  string
	createKeyword []string
	createCeiling float64
)

var campaignCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Plan a new campaign and persist it in pending state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		c, err := eng.Create(ctx, campaign.CreateRequest{
			Name:           createName,
			Location:       createRegion,
			Keywords:       createKeyword,
			CostCeilingUSD: createCeiling,
		})
		if err != nil {
			return err
		}

		fmt.Printf("campaign %s created: %d units planned\n", c.ID, c.UnitsPlanned)
		return nil
	},
}

var campaignStartCmd = &cobra.Command{
	Use:   "start <campaign-id>",
	Short: "Execute a pending campaign to completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		return eng.Start(ctx, args[0])
	},
}

var campaignResumeCmd = &cobra.Command{
	Use:   "resume <campaign-id>",
	Short: "Continue a paused campaign from its checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		return eng.Resume(ctx, args[0])
	},
}

var campaignPauseCmd = &cobra.Command{
	Use:   "pause <campaign-id>",
	Short: "Mark a running campaign paused",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		return eng.Pause(ctx, args[0])
	},
}

var campaignCancelCmd = &cobra.Command{
	Use:   "cancel <campaign-id>",
	Short: "Stop a campaign permanently, keeping everything processed so far",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		return eng.Cancel(ctx, args[0])
	},
}

var campaignStatusCmd = &cobra.Command{
	Use:   "status <campaign-id>",
	Short: "Show a campaign's progress, checkpoint, and cost ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		report, err := eng.Status(ctx, args[0])
		if err != nil {
			return err
		}

		c := report.Campaign
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "name:\t%s\n", c.Name)
		fmt.Fprintf(w, "status:\t%s\n", c.Status)
		if c.CompletionReason != "" {
			fmt.Fprintf(w, "reason:\t%s\n", c.CompletionReason)
		}
		fmt.Fprintf(w, "units:\t%d/%d\n", c.UnitsProcessed, c.UnitsPlanned)
		fmt.Fprintf(w, "leads:\t%d\n", c.LeadsFound)
		if c.CostCeilingUSD > 0 {
			fmt.Fprintf(w, "spend:\t$%.2f of $%.2f\n", c.CostSpentUSD, c.CostCeilingUSD)
		} else {
			fmt.Fprintf(w, "spend:\t$%.2f\n", c.CostSpentUSD)
		}
		if c.HeartbeatAt != nil {
			fmt.Fprintf(w, "heartbeat:\t%s\n", c.HeartbeatAt.Format("2006-01-02 15:04:05"))
		}
		for _, e := range report.Ledger {
			fmt.Fprintf(w, "ledger %s:\t%d calls, $%.4f\n", e.Capability, e.Calls, e.CostUSD)
		}
		return w.Flush()
	},
}

var (
	resultsStage  string
	resultsLimit  int
	resultsOffset int
)

var campaignResultsCmd = &cobra.Command{
	Use:   "results <campaign-id>",
	Short: "Print a page of campaign leads as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, st, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		leads, err := eng.Results(ctx, args[0], store.LeadFilter{
			Stage:  model.LeadStage(resultsStage),
			Limit:  resultsLimit,
			Offset: resultsOffset,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(leads)
	},
}

var campaignListCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns",
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

		campaigns, err := st.ListCampaigns(ctx, store.CampaignFilter{})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tUNITS\tLEADS\tSPEND")
		for _, c := range campaigns {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t$%.2f\n",
				c.ID, c.Name, c.Status, c.UnitsProcessed, c.UnitsPlanned, c.LeadsFound, c.CostSpentUSD)
		}
		return w.Flush()
	},
}

func init() {
	campaignCreateCmd.Flags().StringVar(&createName, "name", "", "campaign name")
	campaignCreateCmd.Flags().StringVar(&createRegion, "region", "", "target region, e.g. \"Los Angeles\"")
	campaignCreateCmd.Flags().StringSliceVar(&createKeyword, "keyword", nil, "search keyword (repeatable)")
	campaignCreateCmd.Flags().Float64Var(&createCeiling, "ceiling", 0, "cost ceiling in USD (0 = unlimited)")
	_ = campaignCreateCmd.MarkFlagRequired("name")
	_ = campaignCreateCmd.MarkFlagRequired("region")
	_ = campaignCreateCmd.MarkFlagRequired("keyword")

	campaignResultsCmd.Flags().StringVar(&resultsStage, "stage", "", "filter by stage (discovered|researched|summarized|verified|failed)")
	campaignResultsCmd.Flags().IntVar(&resultsLimit, "limit", 0, "page size (default from config)")
	campaignResultsCmd.Flags().IntVar(&resultsOffset, "offset", 0, "page offset")

	campaignCmd.AddCommand(
		campaignCreateCmd,
		campaignStartCmd,
		campaignResumeCmd,
		campaignPauseCmd,
		campaignCancelCmd,
		campaignStatusCmd,
		campaignResultsCmd,
		campaignListCmd,
	)
	rootCmd.AddCommand(campaignCmd)
}
