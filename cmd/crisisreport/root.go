package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Afrawles/crisisreport/internal/config"
	"github.com/Afrawles/crisisreport/internal/country"
	"github.com/Afrawles/crisisreport/internal/crisisreport"
	"github.com/Afrawles/crisisreport/internal/hdx"
	"github.com/Afrawles/crisisreport/internal/report"
	"github.com/Afrawles/crisisreport/internal/store"
)

var (
	configPath  string
	logLevel    string
	hdxKey      string
	userAgent   string
	preprefix   string
	hdxSite     string
	spreadsheet string
	sheetName   string
	output      string
	formats     string
	csvOutput   bool
	jsonOutput  bool
	htmlOutput  bool
	archivePath string
	pushgateway string
	workers     int
	dryRun      bool

	historyLimit int
	historyRun   string
)

var rootCmd = &cobra.Command{
	Use:   "crisisreport",
	Short: "Report new and updated HDX datasets for configured crises",
	Long: `crisisreport searches HDX for the datasets of every crisis in the project
configuration, classifies each one as new or updated within the crisis window,
and writes the result to a spreadsheet.`,
	SilenceUsage: true,
	RunE:         generateReport,
}

var queryCmd = &cobra.Command{
	Use:          "query",
	Short:        "Print the HDX filter query of every crisis",
	SilenceUsage: true,
	RunE:         printQueries,
}

var historyCmd = &cobra.Command{
	Use:          "history",
	Short:        "List archived report runs",
	SilenceUsage: true,
	RunE:         listHistory,
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(queryCmd, historyCmd)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultProjectFile, "Project configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	// hdx
	rootCmd.Flags().StringVar(&hdxKey, "hdx-key", "", "HDX API key (env HDX_KEY)")
	rootCmd.Flags().StringVar(&userAgent, "user-agent", "", "User agent (env USER_AGENT, default "+config.DefaultUserAgent+")")
	rootCmd.Flags().StringVar(&preprefix, "preprefix", "", "User agent prefix (env PREPREFIX)")
	rootCmd.Flags().StringVar(&hdxSite, "hdx-site", "", "HDX site name or base URL (env HDX_SITE, default "+config.DefaultSite+")")

	// output
	rootCmd.Flags().StringVar(&spreadsheet, "spreadsheet", "", "Workbook to publish to, overrides the project file")
	rootCmd.Flags().StringVar(&sheetName, "sheet", "", "Sheet to publish to, overrides the project file")
	rootCmd.Flags().StringVarP(&output, "output", "o", "", "Export directory (env OUTPUT_DIR, default reports)")
	rootCmd.Flags().StringVar(&formats, "formats", "", "Comma-separated export formats (env OUTPUT_FORMAT)")
	rootCmd.Flags().BoolVar(&csvOutput, "csv", false, "Also export the table as CSV")
	rootCmd.Flags().BoolVar(&jsonOutput, "json", false, "Also export the table as JSON")
	rootCmd.Flags().BoolVar(&htmlOutput, "html", false, "Also export an HTML summary")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Classify without writing the spreadsheet")

	rootCmd.Flags().StringVar(&archivePath, "archive", "", "SQLite archive to record the run in (env ARCHIVE_PATH)")
	rootCmd.Flags().StringVar(&pushgateway, "pushgateway", "", "Prometheus Pushgateway URL (env PUSHGATEWAY_URL)")
	rootCmd.Flags().IntVar(&workers, "workers", 1, "Datasets classified concurrently")

	historyCmd.Flags().StringVar(&archivePath, "archive", "", "SQLite archive to read (env ARCHIVE_PATH)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of runs to list")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "Print the rows of this run instead")
}

func loadConfig() (*config.Config, error) {
	cfg := config.LoadFromEnv()

	project, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load project configuration: %w", err)
	}
	cfg.Project = project

	if hdxKey != "" {
		cfg.HDX.APIKey = hdxKey
	}
	if userAgent != "" {
		cfg.HDX.UserAgent = userAgent
	}
	if preprefix != "" {
		cfg.HDX.Preprefix = preprefix
	}
	if hdxSite != "" {
		cfg.HDX.Site = hdxSite
	}
	if spreadsheet != "" {
		cfg.Project.Spreadsheet = spreadsheet
	}
	if sheetName != "" {
		cfg.Project.SheetName = sheetName
	}
	if output != "" {
		cfg.Output.Directory = output
	}
	if pushgateway != "" {
		cfg.PushgatewayURL = pushgateway
	}

	if formats != "" {
		cfg.Output.Format = parseCommaList(formats)
	}
	if csvOutput {
		cfg.Output.Format = appendUnique(cfg.Output.Format, "csv")
	}
	if jsonOutput {
		cfg.Output.Format = appendUnique(cfg.Output.Format, "json")
	}
	if htmlOutput {
		cfg.Output.Format = appendUnique(cfg.Output.Format, "html")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func generateReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	level, err := parseLogLevel(logLevel)
	if err != nil {
		return err
	}

	app, err := crisisreport.New(cfg, crisisreport.Options{
		LogLevel: level,
		Workers:  workers,
		HTTP:     hdx.DefaultOptions(),
	})
	if err != nil {
		return err
	}

	if path := envOr(archivePath, "ARCHIVE_PATH"); path != "" {
		archive, err := store.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer archive.Close()
		app.Archive = archive
	}

	var bar *progressbar.ProgressBar
	app.OnCrisis = func(name string, datasets int) {
		finishBar(bar)
		fmt.Println()
		bar = progressbar.NewOptions(datasets,
			progressbar.OptionSetDescription(name),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
	}
	app.OnDataset = func(string) {
		_ = bar.Add(1)
	}

	var sink report.Sink
	if !dryRun {
		excel, err := report.OpenExcelSink(cfg.Project.Spreadsheet, cfg.Project.SheetName)
		if err != nil {
			return fmt.Errorf("failed to open spreadsheet: %w", err)
		}
		defer excel.Close()
		sink = excel
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Checking %d crises over %d days\n", len(cfg.Project.CrisisData), cfg.Project.EndDays)

	outcome, err := app.GenerateReport(ctx, sink)
	finishBar(bar)
	if err != nil {
		return err
	}

	printSummary(outcome, cfg)
	return nil
}

func printSummary(outcome *crisisreport.Outcome, cfg *config.Config) {
	fmt.Printf("\n\nSummary:\n")
	for _, s := range outcome.Result.Summaries {
		if s.Err != nil {
			fmt.Printf("  %-30s FAILED: %v\n", s.Name, s.Err)
			continue
		}
		fmt.Printf("  %-30s %4d matches  %4d new  %4d updated  %4d dropped  %4d skipped\n",
			s.Name, s.Matches, s.New, s.Updated, s.Dropped, s.Skipped)
	}
	fmt.Printf("  Longest activity list: %d\n", outcome.Result.MaxActivities)

	if dryRun {
		fmt.Printf("\nDry run: %d rows not written\n", len(outcome.Result.Rows))
	} else {
		fmt.Printf("\n%d rows written to %s (%s)\n", outcome.Published, cfg.Project.Spreadsheet, cfg.Project.SheetName)
	}
	for _, f := range outcome.Exports {
		fmt.Printf("  -> %s\n", f)
	}
	if outcome.RunID != "" {
		fmt.Printf("Archived as run %s\n", outcome.RunID)
	}
}

func printQueries(cmd *cobra.Command, args []string) error {
	project, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load project configuration: %w", err)
	}

	failed := 0
	for _, line := range crisisreport.Queries(project, country.Default()) {
		if line.Err != nil {
			failed++
			fmt.Printf("%s\n  error: %v\n\n", line.Name, line.Err)
			continue
		}
		fmt.Printf("%s\n  %s\n\n", line.Name, line.Query)
	}
	if failed > 0 {
		return fmt.Errorf("%d crises have no valid query", failed)
	}
	return nil
}

func listHistory(cmd *cobra.Command, args []string) error {
	path := envOr(archivePath, "ARCHIVE_PATH")
	if path == "" {
		return fmt.Errorf("--archive or ARCHIVE_PATH is required")
	}

	archive, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	bar := newSpinner("Reading archive")
	if historyRun != "" {
		rows, err := archive.Rows(cmd.Context(), historyRun)
		finishBar(bar)
		if err != nil {
			return err
		}
		fmt.Println()
		for _, row := range rows {
			fmt.Printf("%-8s %-20s %s\n", row[report.ColumnStatus], row[report.ColumnCrisisName], row[report.ColumnTitle])
		}
		return nil
	}

	runs, err := archive.ListRuns(cmd.Context(), historyLimit)
	finishBar(bar)
	if err != nil {
		return err
	}

	fmt.Println()
	if len(runs) == 0 {
		fmt.Println("No runs archived")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  %3d crises  %5d rows  max activities %d  (%s)\n",
			r.ID,
			r.FinishedAt.Local().Format("2006-01-02 15:04"),
			r.Crises,
			r.RowCount,
			r.MaxActivities,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
		)
	}
	return nil
}
