package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/internal/app"
	"github.com/Ramsey-B/clover/pkg/models"
)

type scoreOutput struct {
	Reference string               `json:"reference"`
	Other     string               `json:"other"`
	Score     int                  `json:"score"`
	Reasons   []models.MatchReason `json:"reasons"`
}

var scoreCmd = &cobra.Command{
	Use:   "score <reference-id> <other-id>",
	Short: "Score how likely two records are the same person",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			records, err := a.People.GetMany(cmd.Context(), args)
			if err != nil {
				return err
			}
			if len(records) != 2 {
				return fmt.Errorf("expected records %s and %s, found %d", args[0], args[1], len(records))
			}

			score, reasons := a.Scorer.Score(records[0], records[1])
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(scoreOutput{
				Reference: records[0].ID,
				Other:     records[1].ID,
				Score:     score,
				Reasons:   reasons,
			})
		})
	},
}
