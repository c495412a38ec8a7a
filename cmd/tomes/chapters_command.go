package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/tomes/tomes/internal/catalog"
)

func newChaptersCommand(ctx *commandContext) *cobra.Command {
	var showURLs bool

	cmd := &cobra.Command{
		Use:   "chapters <identifier>",
		Short: "List the playable chapters of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.catalogClient()
			item, err := client.Item(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			chapters := client.Chapters(item)
			if len(chapters) == 0 {
				return fmt.Errorf("%s: %w", item.Identifier, catalog.ErrEmptyCatalog)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, item.Title())
			if c := item.Metadata.Creator.String(); c != "" {
				fmt.Fprintln(out, "by "+c)
			}
			if r := item.Metadata.ReadBy(); r != "" {
				fmt.Fprintln(out, "read by "+r)
			}

			headers := []string{"#", "Chapter"}
			if showURLs {
				headers = append(headers, "URL")
			}
			rows := make([][]string, 0, len(chapters))
			for i, ch := range chapters {
				row := []string{strconv.Itoa(i + 1), ch.Title}
				if showURLs {
					row = append(row, ch.URL)
				}
				rows = append(rows, row)
			}
			fmt.Fprintln(out, renderTable(headers, rows, []columnAlignment{alignRight}, shouldColorize(out) && !ctx.colorDisabled()))
			fmt.Fprintf(out, "Play with: tomes --id %s --track <n>\n", item.Identifier)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showURLs, "urls", false, "Include download URLs")
	return cmd
}
