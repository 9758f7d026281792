package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/campaign-cli/internal/coverage"
)

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Inspect and build coverage density tables",
}

var (
	planRegion   string
	planKeywords []string
	planSpacing  float64
)

var coveragePlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the ranked coverage plan for a region",
	RunE: func(cmd *cobra.Command, args []string) error {
		tables := fileTables{path: cfg.Coverage.TablePath}
		table, err := tables.TableFor(planRegion)
		if err != nil {
			return err
		}

		var plan *coverage.Plan
		if table == nil {
			plan = coverage.FallbackPlan(planRegion, planKeywords)
		} else {
			plan, err = coverage.NewPlan(planRegion, planKeywords, table)
			if err != nil {
				return err
			}
		}
		if planSpacing > 0 || cfg.Coverage.ThinBySpacing {
			plan.ThinBySpacing(planSpacing)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RANK\tUNIT\tNEIGHBORHOOD\tDENSITY\tEXPECTED")
		for _, u := range plan.Units() {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n",
				u.Rank, u.UnitID, u.Neighborhood, u.Density, u.ExpectedBusinesses)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%d units, %d expected businesses\n", plan.Len(), plan.ExpectedTotal())
		return nil
	},
}

var (
	importShapefile string
	importRegion    string
	importOut       string
	importMerge     string
)

var coverageImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Build a density table skeleton from a ZCTA shapefile",
	Long:  "Reads postal-code polygons from a Census ZCTA shapefile and writes a density table with unknown density classes, optionally merging a curated table over it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := coverage.ImportZCTA(importShapefile, importRegion)
		if err != nil {
			return err
		}

		if importMerge != "" {
			curated, err := coverage.LoadTable(importMerge)
			if err != nil {
				return err
			}
			table = coverage.MergeCurated(table, curated)
		}

		if err := coverage.SaveTable(importOut, table); err != nil {
			return err
		}

		zap.L().Info("density table written",
			zap.String("path", importOut),
			zap.Int("units", len(table.Units)),
		)
		return nil
	},
}

func init() {
	coveragePlanCmd.Flags().StringVar(&planRegion, "region", "", "region name")
	coveragePlanCmd.Flags().StringSliceVar(&planKeywords, "keyword", []string{"business"}, "search keyword (repeatable)")
	coveragePlanCmd.Flags().Float64Var(&planSpacing, "spacing", 0, "thin units closer than this many km (0 = config default)")
	_ = coveragePlanCmd.MarkFlagRequired("region")

	coverageImportCmd.Flags().StringVar(&importShapefile, "shapefile", "", "path to ZCTA .shp file")
	coverageImportCmd.Flags().StringVar(&importRegion, "region", "", "region name for the table")
	coverageImportCmd.Flags().StringVar(&importOut, "out", "coverage.yaml", "output table path")
	coverageImportCmd.Flags().StringVar(&importMerge, "merge", "", "curated table to merge over the import")
	_ = coverageImportCmd.MarkFlagRequired("shapefile")
	_ = coverageImportCmd.MarkFlagRequired("region")

	coverageCmd.AddCommand(coveragePlanCmd, coverageImportCmd)
	rootCmd.AddCommand(coverageCmd)
}
