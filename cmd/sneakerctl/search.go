package main

import (
	"strings"

	"github.com/spf13/cobra"

	"sneaker-hunter/pkg/api"
)

var refresh bool

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search every enabled source and print the grouped results.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := api.ValidateQuery(strings.Join(args, " "))
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		res := core.Orchestrator.Lookup(ctx, q, refresh)
		renderSearch(cmd.OutOrStdout(), res, core.Converter.Display())
		return nil
	},
}

func init() {
	searchCmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the cache read")
}
