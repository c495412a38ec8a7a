package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tomes/tomes/internal/search"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var category string
	var from, to, page int
	var filters []string

	cmd := &cobra.Command{
		Use:   "search [text...]",
		Short: "Search the catalog and print one page of results",
		RunE: func(cmd *cobra.Command, args []string) error {
			ss := ctx.searchSession(ctx.catalogClient(), nil)
			if category == "" {
				category = search.DefaultCategory
			}
			preset, ok := ss.Builder().Preset(category)
			if !ok {
				return fmt.Errorf("unknown category %q (known: %s)", category, strings.Join(presetNames(ss.Builder().Presets()), ", "))
			}
			enabled := map[string]bool{}
			for _, f := range filters {
				if !knownFilter(f) {
					return fmt.Errorf("unknown filter %q", f)
				}
				enabled[f] = true
			}

			params := search.Params{
				Text:     strings.Join(args, " "),
				Category: preset.Name,
				YearFrom: from,
				YearTo:   to,
				Filters:  enabled,
				Page:     page,
			}
			result, err := ss.Search(cmd.Context(), params)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(result.Docs) == 0 {
				fmt.Fprintln(out, "No results")
				return nil
			}
			rows := make([][]string, 0, len(result.Docs))
			for i, d := range result.Docs {
				year := ""
				if y := d.Year.Int(); y > 0 {
					year = strconv.Itoa(y)
				}
				rows = append(rows, []string{
					strconv.Itoa((result.Page-1)*search.PageSize + i + 1),
					d.Identifier,
					d.Title.String(),
					d.Creator.String(),
					year,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Identifier", "Title", "Creator", "Year"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight},
				shouldColorize(out) && !ctx.colorDisabled(),
			))
			more := ""
			if result.HasMore() {
				more = fmt.Sprintf(" (next: --page %d)", result.Page+1)
			}
			fmt.Fprintf(out, "Page %d, %d results%s\n", result.Page, result.NumFound, more)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Category preset (default All)")
	cmd.Flags().IntVar(&from, "from", 0, "Earliest year")
	cmd.Flags().IntVar(&to, "to", 0, "Latest year")
	cmd.Flags().IntVar(&page, "page", 1, "Result page")
	cmd.Flags().StringSliceVar(&filters, "filter", nil, "Enable a filter (english, solo, dramatic)")
	return cmd
}

func presetNames(presets []search.Preset) []string {
	names := make([]string, 0, len(presets))
	for _, p := range presets {
		names = append(names, p.Name)
	}
	return names
}

func knownFilter(key string) bool {
	for _, f := range search.Filters {
		if f.Key == key {
			return true
		}
	}
	return false
}
