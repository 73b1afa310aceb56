package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/internal/app"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/utils"
)

var importCmd = &cobra.Command{
	Use:   "import <records.json>",
	Short: "Upsert person records from a JSON array",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var records []models.PersonRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("failed to parse %s: %w", args[0], err)
		}
		for i, r := range records {
			if err := utils.Validate(r); err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
		}
		if cfg.Store == "memory" {
			return fmt.Errorf("import needs a persistent STORE, got memory")
		}

		return withApp(cmd.Context(), func(a *app.App) error {
			if err := a.People.Upsert(cmd.Context(), records...); err != nil {
				return err
			}
			logger.WithFields(map[string]any{"records": len(records)}).Info("Imported records")
			return nil
		})
	},
}
