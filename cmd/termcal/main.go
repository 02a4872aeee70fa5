package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"termcal/internal/config"
	"termcal/internal/ics"
	appLog "termcal/internal/log"
	"termcal/internal/rollover"
	"termcal/internal/terms"
	"termcal/internal/timetable"
	"termcal/internal/web"
)

const version = "0.1.0"

// app carries global flag values and the environment loaded from them.
type app struct {
	configPath string
	debug      bool

	cfg *config.Config
	cal *terms.Calendar
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "termcal",
		Short: "Academic term calendar: recurrence patterns and year rollover",
		Long: `termcal maps timestamps onto an academic year of three 8-week terms
(Michaelmas, Lent, Easter).

It condenses ICS timetables into compact patterns such as "Mi1-4 Th 9" and
rolls timestamps over from one academic year's term dates to another's.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			appLog.Sync()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to YAML config file (defaults when empty)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")

	root.AddCommand(a.patternsCmd())
	root.AddCommand(a.rolloverCmd())
	root.AddCommand(a.termsCmd())
	root.AddCommand(a.serveCmd())

	return root
}

// load reads the config and the term table.
func (a *app) load() error {
	cfg := config.DefaultConfig()
	if a.configPath != "" {
		loaded, err := config.Load(a.configPath)
		if err != nil {
			appLog.Error("failed to load config", err, "config_path", a.configPath)
			return err
		}
		cfg = loaded
	}

	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	if a.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	var cal *terms.Calendar
	if cfg.TermsFile != "" {
		cal, err = terms.LoadFile(cfg.TermsFile, loc)
	} else {
		cal, err = terms.Default(loc)
	}
	if err != nil {
		return fmt.Errorf("load term table: %w", err)
	}

	appLog.Debug("effective config",
		"timezone", cfg.Timezone,
		"terms_file", cfg.TermsFile,
		"years", len(cal.Years()),
		"ics_count", len(cfg.ICS),
	)

	a.cfg = cfg
	a.cal = cal
	return nil
}

// sources returns the single --input source, or the configured ones.
func (a *app) sources(input string) []ics.Source {
	if input != "" {
		return []ics.Source{{ID: input, URL: input}}
	}
	return ics.SourcesFromConfig(a.cfg.ICS)
}

func (a *app) expandConfig() ics.ExpandConfig {
	return ics.ExpandConfig{
		DisplayLocation:        a.cal.Location(),
		MaxOccurrencesPerEvent: a.cfg.MaxOccurrences,
	}
}

func (a *app) patternsCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Print the condensed pattern of every series in an ICS timetable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sources := a.sources(input)
			if len(sources) == 0 {
				return fmt.Errorf("no ICS input: pass --input or configure ics sources")
			}

			expanded, err := ics.Collect(cmd.Context(), ics.NewFetcher(""), sources, a.expandConfig())
			if err != nil {
				return err
			}
			series, err := timetable.Build(a.cal, expanded.Occurrences)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), timetable.Report(series))
			return err
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "ICS file path or http(s) URL (default: configured sources)")
	return cmd
}

func (a *app) rolloverCmd() *cobra.Command {
	var (
		at       string
		input    string
		output   string
		from, to int
	)

	cmd := &cobra.Command{
		Use:   "rollover",
		Short: "Move a timestamp or an ICS timetable from one academic year to another",
		Long: `Move a timestamp (--at) or every event of an ICS timetable (--input) to the
same weekday of the same week of the same term in another academic year.`,
		Example: `  termcal rollover --at 2015-10-08T09:00:00+01:00 --from 2015 --to 2016
  termcal rollover --input lectures.ics --output lectures-2016.ics --from 2015 --to 2016`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if from == 0 {
				from = a.cfg.FromYear
			}
			if to == 0 {
				to = a.cfg.ToYear
			}
			if from == 0 || to == 0 {
				return fmt.Errorf("--from and --to are required (or set from_year/to_year in config)")
			}
			if (at == "") == (input == "") {
				return fmt.Errorf("pass exactly one of --at or --input")
			}

			roller := rollover.New(a.cal)
			if at != "" {
				source, err := parseTimestamp(at, a.cal.Location())
				if err != nil {
					return err
				}
				result, err := roller.RollString(source, from, to)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), result)
				return err
			}

			return a.rolloverFile(cmd.Context(), roller, input, output, from, to, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Timestamp to roll over (RFC 3339, or local time in the configured zone)")
	cmd.Flags().StringVarP(&input, "input", "i", "", "ICS file path or http(s) URL to roll over")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Where to write the rolled-over ICS (default: stdout)")
	cmd.Flags().IntVar(&from, "from", 0, "Source academic year (default: config from_year)")
	cmd.Flags().IntVar(&to, "to", 0, "Target academic year (default: config to_year)")
	return cmd
}

func (a *app) rolloverFile(ctx context.Context, roller *rollover.Roller, input, output string, from, to int, stdout io.Writer) error {
	src := ics.Source{ID: input, URL: input}
	events, err := ics.LoadSource(ctx, ics.NewFetcher(""), src, a.cal.Location())
	if err != nil {
		return err
	}
	expanded, err := ics.ExpandOccurrences(events, a.expandConfig())
	if err != nil {
		return err
	}
	rolled, err := timetable.Rollover(roller, expanded.Occurrences, from, to)
	if err != nil {
		return err
	}

	if output == "" {
		return ics.WriteRolledOver(stdout, rolled, time.Now())
	}

	f, err := os.Create(output)
	if err != nil {
		return err
	}
	if err := ics.WriteRolledOver(f, rolled, time.Now()); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	appLog.Info("rolled-over timetable written",
		"input", input,
		"output", output,
		"from", from,
		"to", to,
		"occurrences", len(rolled),
	)
	return nil
}

// parseTimestamp accepts RFC 3339, or a zone-less "2006-01-02T15:04:05"
// read in loc. The result is always in loc, so rollover copies the civil
// clock time of the calendar zone.
func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: expected RFC 3339", s)
	}
	return t, nil
}

func (a *app) termsCmd() *cobra.Command {
	var year int

	cmd := &cobra.Command{
		Use:   "terms",
		Short: "List the term table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if year != 0 {
				if _, err := a.cal.TermsFor(year); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for _, t := range a.cal.AllTerms() {
				if year != 0 && t.Year != year {
					continue
				}
				if _, err := fmt.Fprintf(out, "%d %s %s %s\n",
					t.Year, t.Name(),
					t.Start.Format("2006-01-02"), t.End.Format("2006-01-02"),
				); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "Academic year to list (default: all)")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the term table, timetable patterns and rollover over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				a.cfg.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			appLog.Info("termcal starting",
				"version", version,
				"listen", a.cfg.Listen,
				"timezone", a.cfg.Timezone,
				"refresh", a.cfg.RefreshCron,
				"ics_count", len(a.cfg.ICS),
			)

			s := web.NewServer(a.cfg, a.cal, ics.NewFetcher(""))
			if err := s.Run(ctx); err != nil {
				appLog.Error("server stopped", err)
				return err
			}
			appLog.Info("termcal exiting")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}
