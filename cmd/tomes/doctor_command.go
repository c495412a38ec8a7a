package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tomes/tomes/internal/catalog"
	"github.com/tomes/tomes/internal/config"
	"github.com/tomes/tomes/internal/logging"
	"github.com/tomes/tomes/internal/ui"
)

type doctorCheck struct {
	name   string
	ok     bool
	detail string
}

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			checks := runDoctor(cmd.Context(), ctx, offline)
			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(checks))
			failed := 0
			for _, c := range checks {
				status := "OK"
				if !c.ok {
					status = "FAIL"
					failed++
				}
				rows = append(rows, []string{c.name, status, c.detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "Status", "Detail"}, rows, nil, shouldColorize(out) && !ctx.colorDisabled()))
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the catalog reachability check")
	return cmd
}

func runDoctor(ctx context.Context, c *commandContext, offline bool) []doctorCheck {
	cfg := c.config
	var checks []doctorCheck

	cfgDetail := c.configPath
	if _, err := os.Stat(c.configPath); err != nil {
		cfgDetail += " (not present, using defaults)"
	}
	checks = append(checks, doctorCheck{name: "config", ok: true, detail: cfgDetail})

	if path, err := config.CheckMPV(*cfg); err != nil {
		checks = append(checks, doctorCheck{name: "mpv", detail: err.Error()})
	} else {
		checks = append(checks, doctorCheck{name: "mpv", ok: true, detail: path})
	}

	checks = append(checks, doctorCheck{
		name:   "theme",
		ok:     ui.ValidTheme(cfg.UI.Theme),
		detail: fmt.Sprintf("%s (colour: %s)", cfg.UI.Theme, yesNo(!c.colorDisabled())),
	})

	if dir, err := logging.StateDir(); err != nil {
		checks = append(checks, doctorCheck{name: "log dir", detail: err.Error()})
	} else {
		checks = append(checks, doctorCheck{name: "log dir", ok: true, detail: dir})
	}

	if store, err := c.prefsStore(); err != nil {
		checks = append(checks, doctorCheck{name: "preferences", detail: err.Error()})
	} else {
		store.Close()
		detail := cfg.Prefs.Path
		if detail == "" {
			detail = "default location"
		}
		checks = append(checks, doctorCheck{name: "preferences", ok: true, detail: detail})
	}

	if !offline {
		reqCtx, cancel := context.WithTimeout(ctx, cfg.Catalog.Timeout())
		defer cancel()
		start := time.Now()
		_, err := c.catalogClient().Search(reqCtx, catalog.Query{Q: "collection:(" + cfg.Catalog.Collection + ")", PageSize: 1})
		if err != nil {
			checks = append(checks, doctorCheck{name: "catalog", detail: err.Error()})
		} else {
			checks = append(checks, doctorCheck{name: "catalog", ok: true, detail: fmt.Sprintf("%s (%s)", cfg.Catalog.BaseURL, time.Since(start).Round(time.Millisecond))})
		}
	}
	return checks
}
