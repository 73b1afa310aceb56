package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/internal/app"
	"github.com/Ramsey-B/clover/pkg/models"
)

var scanFlags struct {
	threshold   int
	lastName    string
	dateOfBirth string
	limit       int
	autoMerge   bool
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Print duplicate groups, optionally auto-merging them",
	RunE: func(cmd *cobra.Command, _ []string) error {
		threshold := cfg.MatchThreshold
		if cmd.Flags().Changed("threshold") {
			threshold = scanFlags.threshold
		}

		return withApp(cmd.Context(), func(a *app.App) error {
			ctx := cmd.Context()
			pool, err := a.People.FetchPool(ctx, models.PoolFilter{
				LastName:    scanFlags.lastName,
				DateOfBirth: scanFlags.dateOfBirth,
				Limit:       scanFlags.limit,
			})
			if err != nil {
				return err
			}
			groups := a.Scorer.BuildGroups(pool, threshold)

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			if !scanFlags.autoMerge {
				return enc.Encode(groups)
			}
			if a.Provider == nil {
				return errNoProvider
			}
			return enc.Encode(a.Orchestrator.AutoMerge(ctx, groups, a.Provider))
		})
	},
}

func init() {
	scanCmd.Flags().IntVar(&scanFlags.threshold, "threshold", 40, "minimum score (0-100) for two records to be grouped")
	scanCmd.Flags().StringVar(&scanFlags.lastName, "last-name", "", "only scan records with this last name")
	scanCmd.Flags().StringVar(&scanFlags.dateOfBirth, "dob", "", "only scan records with this date of birth")
	scanCmd.Flags().IntVar(&scanFlags.limit, "limit", 0, "maximum records to load (0 for all)")
	scanCmd.Flags().BoolVar(&scanFlags.autoMerge, "auto-merge", false, "suggest and apply every group that needs no review")
}
