package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/opengov/internal/app"
	"github.com/jmerrifield20/opengov/internal/config"
	"github.com/jmerrifield20/opengov/internal/feed"
	"github.com/jmerrifield20/opengov/internal/model"
	"github.com/jmerrifield20/opengov/internal/scoring"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile string
	asEmail string
	verbose bool

	application *app.App
)

func main() {
	err := rootCmd.Execute()
	closeApp()
	if err != nil {
		os.Exit(1)
	}
}

func closeApp() {
	if application != nil {
		application.Close()
		application = nil
	}
}

var rootCmd = &cobra.Command{
	Use:   "opengov",
	Short: "OpenGov report administration CLI",
	Long: `opengov inspects the report and user collections held in the configured
store: list and filter reports, print dashboard counts and leaderboards,
export CSV and verify the activity log.

Reads are performed as the user named by --as; without it only public
reports are visible.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		logger := zap.NewNop()
		if verbose {
			if logger, err = zap.NewDevelopment(); err != nil {
				return err
			}
		}
		application, err = app.Build(cmd.Context(), cfg, logger)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default configs/opengov.yaml)")
	rootCmd.PersistentFlags().StringVar(&asEmail, "as", "", "e-mail address of the user to act as")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log backend activity to stderr")

	rootCmd.AddCommand(reportsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(leaderboardCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(activityCmd)
	rootCmd.AddCommand(versionCmd)
}

// viewer resolves --as to a stored user, or nil when unset.
func viewer(ctx context.Context) (*model.User, error) {
	if asEmail == "" {
		return nil, nil
	}
	u, err := application.Users.GetByEmail(ctx, asEmail)
	if err != nil {
		return nil, fmt.Errorf("--as %s: %w", asEmail, err)
	}
	return u, nil
}

// ── reports ──────────────────────────────────────────────────────────────────

var (
	listStatus   string
	listCategory string
	listQuery    string
	listOwner    string
	listPublic   bool
	listFormat   string
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect reports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reports visible to the --as user",
	Long: `List prints the reports the acting user may see, filtered by status,
category, owner and a case-insensitive text query:

  opengov reports list --as works@city.gov --status pending --q pothole`,
	Args: cobra.NoArgs,
	RunE: runReportsList,
}

func init() {
	f := reportsListCmd.Flags()
	f.StringVar(&listStatus, "status", "", "pending, in_progress, resolved or rejected")
	f.StringVar(&listCategory, "category", "", "infrastructure, safety, environment, utilities or other")
	f.StringVar(&listQuery, "q", "", "text to match in title, description or location")
	f.StringVar(&listOwner, "owner", "", "only reports by this user id")
	f.BoolVar(&listPublic, "public", false, "only public reports")
	f.StringVar(&listFormat, "format", "text", "Output format: text or json")
	reportsCmd.AddCommand(reportsListCmd)
}

func listCriteria() (feed.Criteria, error) {
	c := feed.Criteria{
		Status:     model.Status(listStatus),
		Category:   model.Category(listCategory),
		Query:      listQuery,
		OwnerID:    listOwner,
		PublicOnly: listPublic,
	}
	if c.Status != "" && !c.Status.Valid() {
		return c, fmt.Errorf("unknown status %q", listStatus)
	}
	if c.Category != "" && !c.Category.Valid() {
		return c, fmt.Errorf("unknown category %q", listCategory)
	}
	return c, nil
}

func runReportsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	crit, err := listCriteria()
	if err != nil {
		return err
	}
	u, err := viewer(ctx)
	if err != nil {
		return err
	}
	reports, err := application.Reports.List(ctx, u, crit)
	if err != nil {
		return err
	}
	if listFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), reports)
	}
	return printReports(cmd.OutOrStdout(), reports)
}

func printReports(out io.Writer, reports []*model.Report) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tCATEGORY\tVOTES\tCITIZEN\tASSIGNED\tTITLE")
	for _, r := range reports {
		assignee := "-"
		if r.Assignment != nil {
			assignee = r.Assignment.AuthorityName
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%+d\t%s\t%s\t%s\n",
			r.ID, r.Status, r.Category, r.Upvotes-r.Downvotes, r.CitizenName, assignee, r.Title)
	}
	return w.Flush()
}

// ── stats ────────────────────────────────────────────────────────────────────

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print report counts per status for the --as user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		u, err := viewer(ctx)
		if err != nil {
			return err
		}
		s, err := application.Reports.Stats(ctx, u)
		if errors.Is(err, model.ErrUnauthenticated) {
			return errors.New("stats requires --as")
		}
		if err != nil {
			return err
		}
		return printStats(cmd.OutOrStdout(), s)
	},
}

func printStats(out io.Writer, s feed.Stats) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "total\t%d\n", s.Total)
	fmt.Fprintf(w, "pending\t%d\n", s.Pending)
	fmt.Fprintf(w, "in_progress\t%d\n", s.InProgress)
	fmt.Fprintf(w, "resolved\t%d\n", s.Resolved)
	fmt.Fprintf(w, "rejected\t%d\n", s.Rejected)
	return w.Flush()
}

// ── leaderboard ──────────────────────────────────────────────────────────────

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Print the citizen or authority leaderboard",
}

var leaderboardCitizensCmd = &cobra.Command{
	Use:   "citizens",
	Short: "Top citizens by impact points (10 per resolved report + 1 per report)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		u, err := viewer(ctx)
		if err != nil {
			return err
		}
		var current string
		if u != nil {
			current = u.ID
		}
		rows, err := application.Reports.CitizenLeaderboard(ctx, current)
		if err != nil {
			return err
		}
		return printCitizens(cmd.OutOrStdout(), rows)
	},
}

var leaderboardAuthoritiesCmd = &cobra.Command{
	Use:   "authorities",
	Short: "Authorities ranked by resolved reports and average resolution time",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		rows, err := application.Reports.AuthorityLeaderboard(cmd.Context())
		if err != nil {
			return err
		}
		return printAuthorities(cmd.OutOrStdout(), rows)
	},
}

func init() {
	leaderboardCmd.AddCommand(leaderboardCitizensCmd)
	leaderboardCmd.AddCommand(leaderboardAuthoritiesCmd)
}

func printCitizens(out io.Writer, rows []scoring.CitizenRow) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tNAME\tPOINTS\t")
	for _, r := range rows {
		me := ""
		if r.IsCurrentUser {
			me = "(you)"
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", r.Rank, r.Username, r.Points, me)
	}
	return w.Flush()
}

func printAuthorities(out io.Writer, rows []scoring.AuthorityRow) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tNAME\tPOINTS\tRESOLVED\tAVG RESOLUTION")
	for _, r := range rows {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n", r.Rank, r.Username, r.Points, r.ResolvedCount, r.AvgResolution)
	}
	return w.Flush()
}

// ── export ───────────────────────────────────────────────────────────────────

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write reports as CSV (requires an authority --as)",
	Long: `Export writes every report matching the reports list filters as CSV:

  opengov export --as works@city.gov --status resolved --out resolved.csv`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		crit, err := listCriteria()
		if err != nil {
			return err
		}
		u, err := viewer(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if exportOut != "" && exportOut != "-" {
			f, err := os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("create %s: %w", exportOut, err)
			}
			defer f.Close()
			out = f
		}
		return application.Reports.Export(ctx, u, crit, out)
	},
}

func init() {
	f := exportCmd.Flags()
	f.StringVarP(&exportOut, "out", "o", "-", "output file, - for stdout")
	f.StringVar(&listStatus, "status", "", "pending, in_progress, resolved or rejected")
	f.StringVar(&listCategory, "category", "", "infrastructure, safety, environment, utilities or other")
	f.StringVar(&listQuery, "q", "", "text to match in title, description or location")
	f.StringVar(&listOwner, "owner", "", "only reports by this user id")
	f.BoolVar(&listPublic, "public", false, "only public reports")
}

// ── activity ─────────────────────────────────────────────────────────────────

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Inspect the activity log",
}

var activityVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Walk the activity hash chain and report the first broken link",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := application.Reports.VerifyActivity(ctx); err != nil {
			return fmt.Errorf("activity log INVALID: %w", err)
		}
		n, err := application.Ledger.Len(ctx)
		if err != nil {
			return err
		}
		root, err := application.Ledger.Root(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "activity log valid: %d entries, root %s\n", n, root)
		return nil
	},
}

var activityShowCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Print the activity entries of one report (requires --as)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		u, err := viewer(ctx)
		if err != nil {
			return err
		}
		entries, err := application.Reports.Activity(ctx, u, args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "IDX\tTIME\tUSER\tACTION\tDESCRIPTION")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				strconv.Itoa(e.Index), e.Timestamp.Format(time.RFC3339), e.UserName, e.Action, e.Description)
		}
		return w.Flush()
	},
}

func init() {
	activityCmd.AddCommand(activityVerifyCmd)
	activityCmd.AddCommand(activityShowCmd)
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the opengov CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "opengov %s\n", version)
	},
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
