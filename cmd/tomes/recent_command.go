package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newRecentCommand(ctx *commandContext) *cobra.Command {
	var clearList bool

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show recently viewed items",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.prefsStore()
			if err != nil {
				return fmt.Errorf("open preferences: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if clearList {
				if err := store.ClearRecentlyViewed(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(out, "Recently viewed list cleared")
				return nil
			}

			items, err := store.RecentlyViewed(cmd.Context())
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "Nothing viewed yet")
				return nil
			}
			rows := make([][]string, 0, len(items))
			for i, it := range items {
				rows = append(rows, []string{strconv.Itoa(i + 1), it.Identifier, it.Title})
			}
			fmt.Fprintln(out, renderTable([]string{"#", "Identifier", "Title"}, rows,
				[]columnAlignment{alignRight}, shouldColorize(out) && !ctx.colorDisabled()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearList, "clear", false, "Forget every recently viewed item")
	return cmd
}
