// Command participationctl runs transcript analysis and grading offline,
// from files, without a server or database.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mind-engage/mindengage-participation/internal/config"
	"github.com/mind-engage/mindengage-participation/internal/grading"
	"github.com/mind-engage/mindengage-participation/internal/participation"
	"github.com/mind-engage/mindengage-participation/internal/speaker"
	"github.com/mind-engage/mindengage-participation/internal/timecode"
)

// exitUnresolved is the status when analysis is blocked on speaker aliases.
const exitUnresolved = 2

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var un *participation.UnresolvedError
		if errors.As(err, &un) {
			os.Exit(exitUnresolved)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:          "participationctl",
		Short:        "Offline participation analysis and grading",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")
	logger := func() logrus.FieldLogger {
		l, err := config.NewLogger(logLevel, false)
		if err != nil {
			l = logrus.New()
		}
		l.SetOutput(os.Stderr)
		return l
	}
	root.AddCommand(newAnalyzeCmd(logger), newGradeCmd())
	return root
}

func newAnalyzeCmd(logger func() logrus.FieldLogger) *cobra.Command {
	var (
		transcriptPath, rosterPath, aliasesPath string
		week                                    int
		asJSON                                  bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Total speaking time and instances per student for one transcript",
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := os.ReadFile(transcriptPath)
			if err != nil {
				return err
			}
			roster, err := withFile(rosterPath, parseRoster)
			if err != nil {
				return err
			}
			var aliases []speaker.AliasRule
			if aliasesPath != "" {
				if aliases, err = withFile(aliasesPath, parseAliases); err != nil {
					return err
				}
			}
			out, err := participation.NewAnalyzer(logger()).Analyze(participation.Input{
				Week:       week,
				Transcript: string(text),
				Roster:     rosterEntries(roster),
				Aliases:    aliases,
			})
			if err != nil {
				return err
			}
			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
			} else {
				printOutcome(cmd.OutOrStdout(), roster, out)
			}
			if out.NeedsAliases() {
				return &participation.UnresolvedError{Labels: out.Unresolved}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&transcriptPath, "transcript", "", "transcript file (WebVTT)")
	cmd.Flags().StringVar(&rosterPath, "roster", "", "roster file: label[,id[,manual_adjustment]] per line")
	cmd.Flags().StringVar(&aliasesPath, "aliases", "", "YAML mapping of speaker alias to roster label, PROFESSOR or IGNORE")
	cmd.Flags().IntVar(&week, "week", 1, "week number")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("transcript")
	_ = cmd.MarkFlagRequired("roster")
	return cmd
}

func newGradeCmd() *cobra.Command {
	var (
		rosterPath, settingsPath, factsPath string
		asJSON                              bool
	)
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Compute final grades from weekly facts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			roster, err := withFile(rosterPath, parseRoster)
			if err != nil {
				return err
			}
			settings := grading.DefaultSettings()
			if settingsPath != "" {
				if settings, err = withFile(settingsPath, parseSettings); err != nil {
					return err
				}
			}
			facts, err := withFile(factsPath, parseFacts)
			if err != nil {
				return err
			}
			rep, err := grading.Compute(gradingStudents(roster), facts, &settings)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), rep)
			}
			printReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}
	cmd.Flags().StringVar(&rosterPath, "roster", "", "roster file: label[,id[,manual_adjustment]] per line")
	cmd.Flags().StringVar(&settingsPath, "settings", "", "YAML settings (defaults for missing fields)")
	cmd.Flags().StringVar(&factsPath, "facts", "", "YAML list of weekly facts")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("roster")
	_ = cmd.MarkFlagRequired("facts")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printOutcome(w io.Writer, roster []rosterLine, out participation.Outcome) {
	if out.NeedsAliases() {
		fmt.Fprintln(w, "unresolved speakers (add aliases and rerun):")
		for _, l := range out.Unresolved {
			fmt.Fprintf(w, "  %s\n", l)
		}
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STUDENT\tINSTANCES\tTIME")
	for _, r := range roster {
		st := out.Stats[r.ID]
		fmt.Fprintf(tw, "%s\t%d\t%s\n", r.Label, st.Instances, timecode.Format(st.TotalSeconds))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "%d cues, %d skipped\n", out.Cues, out.Skipped)
}

func printReport(w io.Writer, rep grading.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STUDENT\tABS\tVIDEO OFF\tASYNC MISS\tINSTANCES\tTIME\tRAW\tADJ\tGRADE")
	for _, r := range rep.Results {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%g\t%s\t%.2f\t%g\t%.2f\n",
			r.Name, r.Absences, r.VideoOff, r.AsyncMisses, r.CappedInstances,
			r.TotalTimeDisplay, r.RawPoints, r.ManualAdjustment, r.FinalGrade)
	}
	if a := rep.Averages; a != nil {
		fmt.Fprintf(tw, "AVERAGE\t%.1f\t%.1f\t%.1f\t%.1f\t%s\t\t\t%.2f\n",
			a.Absences, a.VideoOff, a.AsyncMisses, a.CappedInstances, a.TotalTime, a.FinalGrade)
	}
	_ = tw.Flush()
}
