package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/tomes/tomes/internal/app"
	"github.com/tomes/tomes/internal/artwork"
	"github.com/tomes/tomes/internal/config"
	"github.com/tomes/tomes/internal/player"
	"github.com/tomes/tomes/internal/session"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var noColor bool
	var id, resume string
	var track int
	var showVersion bool

	ctx := newCommandContext(&configFlag, &noColor)

	rootCmd := &cobra.Command{
		Use:           "tomes",
		Short:         "Search and listen to public-domain audiobooks",
		Long:          "tomes searches the LibriVox collection on archive.org and plays audiobooks chapter by chapter through mpv.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintln(cmd.OutOrStdout(), "tomes", version)
				return nil
			}
			loc, err := locationValues(id, track, resume)
			if err != nil {
				return err
			}
			return runTUI(cmd, ctx, loc)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colour output")
	rootCmd.Flags().StringVar(&id, "id", "", "Open this item identifier at start")
	rootCmd.Flags().IntVar(&track, "track", 0, "Chapter number to open (1-based, with --id)")
	rootCmd.Flags().StringVar(&resume, "resume", "", `Resume a location such as "id=moby_dick_librivox&track=3"`)
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Print version and exit")

	rootCmd.AddCommand(newSearchCommand(ctx))
	rootCmd.AddCommand(newChaptersCommand(ctx))
	rootCmd.AddCommand(newRecentCommand(ctx))
	rootCmd.AddCommand(newDoctorCommand(ctx))

	return rootCmd
}

// locationValues turns the start flags into location query values.
func locationValues(id string, track int, resume string) (url.Values, error) {
	if resume = strings.TrimSpace(resume); resume != "" {
		v, err := url.ParseQuery(strings.TrimPrefix(resume, "?"))
		if err != nil {
			return nil, fmt.Errorf("parse --resume: %w", err)
		}
		return v, nil
	}
	v := url.Values{}
	if id = strings.TrimSpace(id); id != "" {
		v.Set("id", id)
	}
	if track > 0 {
		v.Set("track", strconv.Itoa(track))
	}
	return v, nil
}

func runTUI(cmd *cobra.Command, ctx *commandContext, loc url.Values) error {
	cfg := ctx.config
	logger := ctx.loggerFor()
	logger.Info("starting tomes", slog.String("version", version), slog.String("config", ctx.configPath))

	if _, err := config.CheckMPV(*cfg); err != nil {
		return fmt.Errorf("%w (run `tomes doctor` for details)", err)
	}

	store, err := ctx.prefsStore()
	if err != nil {
		return fmt.Errorf("open preferences: %w", err)
	}
	defer store.Close()

	client := ctx.catalogClient()

	ctrl := player.New(player.Options{
		MPVPath: cfg.Player.MPVPath,
		IPCPath: cfg.Player.IPC,
		Logger:  logger,
	})
	if err := ctrl.Start(cmd.Context()); err != nil {
		logger.Error("start player", slog.Any("err", err))
		if errors.Is(err, player.ErrInstanceRunning) {
			return errors.New("another tomes instance is already playing; close it first")
		}
		return fmt.Errorf("start player: %w", err)
	}
	defer ctrl.Stop()

	var loader *artwork.Loader
	if !cfg.Artwork.Disabled {
		loader = artwork.NewLoader(client, 32, logger)
	}

	startID, startTrack := session.ParseLocation(loc)
	model := app.New(app.Deps{
		Config:     cfg,
		Catalog:    client,
		Search:     ctx.searchSession(client, store),
		Player:     ctrl,
		Prefs:      store,
		Artwork:    loader,
		Logger:     logger,
		NoColor:    ctx.colorDisabled(),
		StartID:    startID,
		StartTrack: startTrack,
	})
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		logger.Error("run tui", slog.Any("err", err))
		return fmt.Errorf("tui: %w", err)
	}
	logger.Info("tomes exited")
	return nil
}
