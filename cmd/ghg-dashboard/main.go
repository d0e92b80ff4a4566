package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/ghg-dashboard/internal/chart"
	"github.com/user/ghg-dashboard/internal/collector"
	"github.com/user/ghg-dashboard/internal/config"
	"github.com/user/ghg-dashboard/internal/csvtable"
	"github.com/user/ghg-dashboard/internal/logging"
	"github.com/user/ghg-dashboard/internal/report"
)

var (
	// Used for flags.
	configPath     string
	outputFilePath string
	writeRecords   bool

	cfg    *config.Config
	logger *zap.Logger

	rootCmd = &cobra.Command{
		Use:   "ghg-dashboard",
		Short: "GHG Dashboard summarizes facility greenhouse gas emissions.",
		Long: `A tool that reads the facility greenhouse gas emissions CSV, totals emissions
by province and by year, and renders a dashboard with a province map, the
top provinces and the yearly trend.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	collectCmd = &cobra.Command{
		Use:   "collect [DATA]",
		Short: "Parses and aggregates an emissions CSV and caches the result.",
		Long:  `Reads the CSV at DATA (a file path or http(s) URL), normalizes its headers, aggregates emissions and caches the results for later reporting.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			col, err := newCollector(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := col.Collect(); err != nil {
				return fmt.Errorf("error during data collection for %s: %w", col.Source, err)
			}

			data := col.Data
			fmt.Printf("Collected %d rows from %s: %d provinces, %d years.\n",
				data.RowCount, col.Source, data.EmissionsByRegion.Len(), data.EmissionsByYear.Len())
			return nil
		},
	}

	reportCmd = &cobra.Command{
		Use:   "report [DATA] [html|json|xlsx]",
		Short: "Generates a report from the emissions data.",
		Long: `Generates a report in the specified format (html, json or xlsx) from the
emissions CSV at DATA. Cached results are reused when the input is unchanged.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reportFormat := strings.ToLower(args[1])

			client, err := httpClient()
			if err != nil {
				return err
			}
			geometry := chart.LoadGeometry(client, cfg.Geometry, cfg.GeometryObject)
			adapter, err := report.NewAdapter(reportFormat, geometry, logger)
			if err != nil {
				return err
			}

			if outputFilePath == "" {
				outputFilePath = fmt.Sprintf("ghg-report.%s", reportFormat)
			}
			absOutputFilePath, err := filepath.Abs(outputFilePath)
			if err != nil {
				return fmt.Errorf("invalid output file path '%s': %w", outputFilePath, err)
			}

			col, err := collector.New(collectorOptions(args[0], client), logger)
			if err != nil {
				return fmt.Errorf("failed to initialize collector for %s: %w", args[0], err)
			}

			logger.Info("preparing report", zap.String("format", reportFormat), zap.String("source", col.Source))
			future := col.Start(cmd.Context())
			if err := adapter.PrepareData(cmd.Context(), future); err != nil {
				return fmt.Errorf("failed to prepare %s report data: %w", reportFormat, err)
			}

			if err := adapter.Write(absOutputFilePath); err != nil {
				return fmt.Errorf("failed to write %s report to %s: %w", reportFormat, absOutputFilePath, err)
			}
			if _, err := future.Wait(cmd.Context()); err != nil {
				return fmt.Errorf("%s report written to %s without emissions data: %w", reportFormat, absOutputFilePath, err)
			}

			fmt.Printf("%s report generated successfully: %s\n", strings.ToUpper(reportFormat), absOutputFilePath)
			return nil
		},
	}

	cleanCmd = &cobra.Command{
		Use:   "clean [DATA]",
		Short: "Writes the emissions CSV with canonical headers.",
		Long: `Parses the CSV at DATA, renames its headers to the canonical names (City,
Province, Facility Type, Year, TotalEmissions) and writes it back out. With
--records only the five canonical columns are written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			col, err := newCollector(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := col.Collect(); err != nil {
				return fmt.Errorf("error during data collection for %s: %w", col.Source, err)
			}

			var out io.Writer = cmd.OutOrStdout()
			if outputFilePath != "" {
				if err := os.MkdirAll(filepath.Dir(outputFilePath), 0755); err != nil {
					return fmt.Errorf("failed to create directory for %s: %w", outputFilePath, err)
				}
				f, err := os.Create(outputFilePath)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", outputFilePath, err)
				}
				defer f.Close()
				out = f
			}

			if writeRecords {
				return csvtable.WriteRecords(out, col.Data.Records)
			}
			_, err = io.WriteString(out, csvtable.Serialize(col.Data.Dataset))
			return err
		},
	}
)

// setup loads .env and the config file, applies flags over them and builds
// the logger.
func setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("parser") {
		cfg.Parser, _ = flags.GetString("parser")
	}
	if flags.Changed("encoding") {
		cfg.Encoding, _ = flags.GetString("encoding")
	}
	if flags.Changed("cache-dir") {
		cfg.CacheDir, _ = flags.GetString("cache-dir")
	}
	if flags.Changed("no-cache") {
		cfg.NoCache, _ = flags.GetBool("no-cache")
	}
	if flags.Changed("verbose") {
		cfg.Verbose, _ = flags.GetBool("verbose")
	}
	if flags.Changed("geometry") {
		cfg.Geometry, _ = flags.GetString("geometry")
	}
	if flags.Changed("object") {
		cfg.GeometryObject, _ = flags.GetString("object")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err = logging.New(cfg.Verbose)
	if err != nil {
		return err
	}
	logger.Debug("configuration loaded", zap.String("config", configPath), zap.Any("settings", cfg))
	return nil
}

func httpClient() (*http.Client, error) {
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, err
	}
	return &http.Client{Timeout: timeout}, nil
}

func newCollector(ctx context.Context, source string) (*collector.EmissionsCollector, error) {
	client, err := httpClient()
	if err != nil {
		return nil, err
	}
	col, err := collector.NewEmissionsCollector(ctx, collectorOptions(source, client), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize collector for %s: %w", source, err)
	}
	return col, nil
}

func collectorOptions(source string, client *http.Client) collector.Options {
	return collector.Options{
		Source:     source,
		Parser:     cfg.Parser,
		Encoding:   cfg.Encoding,
		CacheDir:   cfg.CacheDir,
		NoCache:    cfg.NoCache,
		HTTPClient: client,
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", config.DefaultPath, "Path to the YAML config file")
	pf.BoolP("verbose", "v", false, "Enable debug logging")
	pf.String("parser", csvtable.ModeNaive, "CSV parser: naive or rfc4180")
	pf.String("encoding", "utf-8", "Input encoding: utf-8, latin1 or windows-1252")
	pf.String("cache-dir", collector.DefaultCacheDir, "Directory for cached results")
	pf.Bool("no-cache", false, "Always re-parse the input")

	reportCmd.Flags().StringVarP(&outputFilePath, "output-file-path", "o", "", "Output file path for the report")
	reportCmd.Flags().String("geometry", "", "TopoJSON file or URL for the province map")
	reportCmd.Flags().String("object", "", "TopoJSON object holding the provinces")

	cleanCmd.Flags().StringVarP(&outputFilePath, "output-file-path", "o", "", "Output file path (default stdout)")
	cleanCmd.Flags().BoolVar(&writeRecords, "records", false, "Write only the canonical columns")

	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(cleanCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
