package main

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/freewebtopdf/logfilters/internal/config"
	"github.com/freewebtopdf/logfilters/internal/conflict"
	"github.com/freewebtopdf/logfilters/internal/storage"
	"github.com/freewebtopdf/logfilters/internal/workingset"
)

const policyAsk = "ask"

// options holds the persistent flags shared by every command
type options struct {
	settingsPath string
	autoDir      string
	policy       string
	verbosity    int
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "filterctl",
		Short: "Edit and apply log line filters",
		Long: `filterctl edits the ordered list of log line filters shared with the
filter service and highlights text read from standard input with it.

Filters can be imported from filter files. Imported filters remember where
they came from, so local edits can be saved back to the file or undone.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogger(cmd.ErrOrStderr(), opts.verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
			return opts.resolve()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.settingsPath, "settings", "", "Settings file holding the filters (default $SETTINGS_PATH or ./data/filters.conf)")
	flags.StringVar(&opts.autoDir, "auto-dir", "", "Directory whose filter files are always loaded (default $AUTO_DIR or the XDG data dir)")
	flags.StringVar(&opts.policy, "reload", policyAsk, "What to do with filter files changed on disk: ask, accept or keep")
	flags.CountVarP(&opts.verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG)")

	rootCmd.AddCommand(
		newListCmd(opts),
		newSourcesCmd(opts),
		newAddCmd(opts),
		newRemoveCmd(opts),
		newMoveCmd(opts),
		newImportCmd(opts),
		newExportCmd(opts),
		newColorsCmd(),
		newMatchCmd(opts),
	)
	return rootCmd
}

func setupLogger(out io.Writer, verbosity int) {
	zerolog.TimeFieldFormat = time.RFC3339

	switch {
	case verbosity >= 2:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case verbosity == 1:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, NoColor: true})
}

// resolve fills unset paths from the service configuration
func (o *options) resolve() error {
	if o.policy != policyAsk {
		if _, err := conflict.ParsePolicy(o.policy); err != nil {
			return err
		}
	}
	if o.settingsPath != "" && o.autoDir != "" {
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if o.settingsPath == "" {
		o.settingsPath = cfg.Storage.SettingsPath
	}
	if o.autoDir == "" {
		o.autoDir = cfg.Storage.AutoDir
	}
	return nil
}

func (o *options) decider(cmd *cobra.Command) conflict.Decider {
	if o.policy == policyAsk {
		return conflict.NewPrompt(cmd.InOrStdin(), cmd.ErrOrStderr())
	}
	policy, _ := conflict.ParsePolicy(o.policy)
	return policy
}

func (o *options) store(cmd *cobra.Command) *storage.Store {
	return storage.NewStore(storage.StoreConfig{
		SettingsPath: o.settingsPath,
		AutoDir:      o.autoDir,
	}, o.decider(cmd))
}

// edit runs fn in one editing session and commits it
func (o *options) edit(cmd *cobra.Command, fn func(set *workingset.WorkingSet) error) error {
	ctx := cmd.Context()
	session, err := o.store(cmd).Begin(ctx)
	if err != nil {
		return err
	}
	if err := session.Do(fn); err != nil {
		session.Cancel()
		return err
	}
	if err := session.Commit(ctx); err != nil {
		session.Cancel()
		return err
	}
	return nil
}

// view runs fn in a session that is discarded afterwards
func (o *options) view(cmd *cobra.Command, fn func(set *workingset.WorkingSet) error) error {
	session, err := o.store(cmd).Begin(cmd.Context())
	if err != nil {
		return err
	}
	defer session.Cancel()
	return session.Do(fn)
}
