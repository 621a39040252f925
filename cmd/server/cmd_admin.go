package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aangel-sama/CyDRegistroHHMineria/config"
	"github.com/aangel-sama/CyDRegistroHHMineria/factory"
	"github.com/aangel-sama/CyDRegistroHHMineria/generic"
	"github.com/aangel-sama/CyDRegistroHHMineria/timesheet"
)

var (
	weekOffset    int
	weekPrincipal string
)

var weekCmd = &cobra.Command{
	Use:   "week",
	Short: "Print a principal's week grid",
	Long: `Print the hours grid of one week for a principal.

Examples:
  timesheet week --principal ana@example.com
  timesheet week --principal ana@example.com --offset -1`,
	Args: cobra.NoArgs,
	RunE: runWeek,
}

var holidaysCmd = &cobra.Command{
	Use:   "holidays [YEAR]",
	Short: "List the holidays of a year (current year by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHolidays,
}

var holidaysAddCmd = &cobra.Command{
	Use:   "add DATE NAME",
	Short: "Store a one-off holiday (YYYY-MM-DD); applies on next start",
	Args:  cobra.ExactArgs(2),
	RunE:  runHolidaysAdd,
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage project codes and assignments",
}

var projectsAddCmd = &cobra.Command{
	Use:   "add CODE NAME",
	Short: "Create or rename a project",
	Args:  cobra.ExactArgs(2),
	RunE:  runProjectsAdd,
}

var projectsAssignCmd = &cobra.Command{
	Use:   "assign EMAIL CODE",
	Short: "Assign a project to a principal",
	Args:  cobra.ExactArgs(2),
	RunE:  runProjectsAssign,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective timesheet configuration as YAML",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	weekCmd.Flags().IntVar(&weekOffset, "offset", 0, "Week offset relative to the current week")
	weekCmd.Flags().StringVar(&weekPrincipal, "principal", "", "Principal email")
	weekCmd.MarkFlagRequired("principal")

	holidaysCmd.AddCommand(holidaysAddCmd)
	projectsCmd.AddCommand(projectsAddCmd, projectsAssignCmd)
	rootCmd.AddCommand(weekCmd, holidaysCmd, projectsCmd, configCmd)
}

func runWeek(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)

	b, err := openBackend(cmd.Context(), cfg.DB)
	if err != nil {
		return err
	}
	defer b.close()

	principal := generic.PrincipalID(strings.ToLower(strings.TrimSpace(weekPrincipal)))
	svc, err := newService(cmd.Context(), cfg, b, logger, timesheet.WithPrincipalProvider(timesheet.StaticPrincipal(principal)))
	if err != nil {
		return err
	}

	view, err := svc.WeekView(cmd.Context(), weekOffset)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  [%s]\n\n", view.Label, view.State)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := []string{"PROJECT"}
	for _, d := range view.Days {
		label := d.Label
		if d.Holiday {
			label += "*"
		}
		header = append(header, label)
	}
	fmt.Fprintln(w, strings.Join(append(header, "TOTAL"), "\t"))

	for _, p := range view.Projects {
		cols := []string{string(p.Code)}
		for _, h := range p.Hours {
			cols = append(cols, h.String())
		}
		fmt.Fprintln(w, strings.Join(append(cols, p.Total.String()), "\t"))
	}

	caps := []string{"CAP"}
	for _, d := range view.Days {
		caps = append(caps, d.Cap.String())
	}
	fmt.Fprintln(w, strings.Join(append(caps, view.Expected.String()), "\t"))
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nTotal %s of %s (* holiday)\n", view.Total, view.Expected)
	return nil
}

func runHolidays(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	newLogger(cfg.Log)

	b, err := openBackend(cmd.Context(), cfg.DB)
	if err != nil {
		return err
	}
	defer b.close()

	tc, err := engineConfig(cmd.Context(), cfg, b)
	if err != nil {
		return err
	}

	year := generic.DateOf(nowIn(cfg)).Year()
	if len(args) == 1 {
		if year, err = strconv.Atoi(args[0]); err != nil {
			return fmt.Errorf("invalid year %q", args[0])
		}
	}

	for _, d := range timesheet.NewHolidayCalendar(tc).HolidaysForYear(year) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", d, d.Weekday())
	}
	return nil
}

func runHolidaysAdd(cmd *cobra.Command, args []string) error {
	d, err := generic.ParseDate(args[0])
	if err != nil {
		return err
	}
	return withAdmin(cmd, func(b *backend) error {
		if err := b.admin.SaveManualHoliday(cmd.Context(), d, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "holiday %s stored; restart the server to apply it\n", d)
		return nil
	})
}

func runProjectsAdd(cmd *cobra.Command, args []string) error {
	return withAdmin(cmd, func(b *backend) error {
		return b.admin.SaveProject(cmd.Context(), generic.ProjectCode(args[0]), args[1])
	})
}

func runProjectsAssign(cmd *cobra.Command, args []string) error {
	principal := generic.PrincipalID(strings.ToLower(strings.TrimSpace(args[0])))
	return withAdmin(cmd, func(b *backend) error {
		return b.admin.AssignProject(cmd.Context(), principal, generic.ProjectCode(args[1]))
	})
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	f := factory.NewEngineFactory()
	tc, err := f.FromConfig(cfg.Timesheet)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(map[string]any{"timesheet": f.ToConfig(tc)})
}

// withAdmin opens a persistent store and runs fn against it.
func withAdmin(cmd *cobra.Command, fn func(b *backend) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	newLogger(cfg.Log)

	b, err := openBackend(cmd.Context(), cfg.DB)
	if err != nil {
		return err
	}
	defer b.close()
	if b.admin == nil {
		return fmt.Errorf("driver %q keeps no projects or holidays; use sqlite or postgres", cfg.DB.Driver)
	}
	return fn(b)
}

func nowIn(cfg config.Config) time.Time {
	return time.Now().In(cfg.Location())
}
