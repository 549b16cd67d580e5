package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"lunchmind/engine"
)

func newDiscoverCmd(a *app) *cobra.Command {
	var (
		location string
		limit    int
		text     bool
	)
	cmd := &cobra.Command{
		Use:   "discover [KEYWORD...]",
		Short: "Run one discovery and print the result as JSON",
		Example: `  lunchmind discover 拉麵 --location 台北車站
  lunchmind discover --location 台北車站
  lunchmind discover --text "我想在西門町附近吃牛肉麵"`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := engine.Open(a.cfg.Engine, a.logger, nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			input := strings.Join(args, " ")
			var res engine.Result
			if text {
				res, err = eng.DiscoverText(cmd.Context(), input, location, limit)
			} else {
				res, err = eng.Discover(cmd.Context(), input, location, limit)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVarP(&location, "location", "l", "", "origin to measure distances from")
	cmd.Flags().IntVarP(&limit, "limit", "n", engine.DefaultLimit, "maximum number of places to return")
	cmd.Flags().BoolVar(&text, "text", false, "treat the arguments as a free-text request")
	return cmd
}
