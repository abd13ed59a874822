package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sneaker-hunter/pkg/api"
)

var pricesCmd = &cobra.Command{
	Use:   "prices <sku>",
	Short: "Show the per-size price sheet of one style code on every source that has it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sku, err := api.ValidateQuery(args[0])
		if err != nil {
			return fmt.Errorf("invalid sku: %w", err)
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		res := core.Orchestrator.Pricing(ctx, sku)
		if err := res.Err(); err != nil {
			renderErrors(cmd.ErrOrStderr(), res.Errors)
			return err
		}
		renderPrices(cmd.OutOrStdout(), res, core.Converter.Display())
		return nil
	},
}
