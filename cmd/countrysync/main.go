package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/CountrySync/internal/config"
	"github.com/TobiSchelling/CountrySync/internal/database"
	"github.com/TobiSchelling/CountrySync/internal/database/postgres"
	"github.com/TobiSchelling/CountrySync/internal/logging"
	"github.com/TobiSchelling/CountrySync/internal/merge"
	"github.com/TobiSchelling/CountrySync/internal/pipeline"
	"github.com/TobiSchelling/CountrySync/internal/report"
	"github.com/TobiSchelling/CountrySync/internal/server"
	"github.com/TobiSchelling/CountrySync/internal/source"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     *logrus.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "countrysync",
	Short:   "Country data with exchange rates and GDP estimates",
	Long:    "countrysync merges country facts with exchange rates, stores them and serves them over HTTP.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		// A missing .env file is fine.
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		logger = logging.New(cfg.Logging, verbose)
		logrus.SetLevel(logger.GetLevel())
		logrus.SetFormatter(logger.Formatter)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(countriesCmd)
	rootCmd.AddCommand(reportCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("countrysync", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/countrysync/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to change upstream URLs, the database driver and the server port.")
		return nil
	},
}

// openStore opens the configured backend.
func openStore(ctx context.Context) (database.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		dsn, err := cfg.PostgresDSN()
		if err != nil {
			return nil, err
		}
		return postgres.Open(ctx, dsn, cfg.Database.MaxConns, logger)
	default:
		db, err := database.Open(cfg.SQLitePath())
		if err != nil {
			return nil, err
		}
		db.SetMaxConns(cfg.Database.MaxConns)
		return db, nil
	}
}

func newGenerator(store database.Store) *report.Generator {
	return report.NewGenerator(store, cfg.GetCacheDir(), cfg.Report.Width, cfg.Report.Height, logger)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		st, err := store.GetStatus(ctx)
		if err != nil {
			return fmt.Errorf("getting status: %w", err)
		}

		fmt.Printf("Driver: %s\n", cfg.Database.Driver)
		fmt.Printf("Total countries: %d\n", st.TotalCountries)
		if st.LastRefreshedAt != nil {
			fmt.Printf("Last refreshed: %s\n", st.LastRefreshedAt.Format(time.RFC3339))
		} else {
			fmt.Println("Last refreshed: never")
		}

		gen := newGenerator(store)
		if info, err := os.Stat(gen.ImagePath()); err == nil {
			fmt.Printf("Summary image: %s (%s)\n", gen.ImagePath(), info.ModTime().Format(time.RFC3339))
		} else {
			fmt.Println("Summary image: none")
		}
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch, merge and store countries, then regenerate the summary image",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		pipe := pipeline.New(cfg, store, newGenerator(store), logger)
		result, err := pipe.Refresh(ctx)

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/4: %s\n", i+1, step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}
		if err != nil {
			if errors.Is(err, source.ErrSourceUnavailable) {
				return fmt.Errorf("could not fetch data from %s: %w", source.SourceName(err), err)
			}
			return err
		}

		fmt.Printf("\n%s: %d countries stored (run %s)\n", result.Message, result.Total, result.RunID)
		return nil
	},
}

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		gen := newGenerator(store)
		srv, err := server.New(store, pipeline.New(cfg, store, gen, logger), gen, logger)
		if err != nil {
			return err
		}

		host, port := cfg.Server.Host, cfg.Server.Port
		if cmd.Flags().Changed("host") {
			host = serveHost
		}
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, srv, fmt.Sprintf("%s:%d", host, port), logger)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Interface to listen on")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- countries command ---

var countriesCmd = &cobra.Command{
	Use:   "countries",
	Short: "Query stored countries",
}

var (
	listRegion   string
	listCurrency string
	listSortGDP  bool
)

var countriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored countries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		f := database.Filter{SortGDPDesc: listSortGDP}
		if r := merge.NormalizeRegion(listRegion); r != "" {
			f.Region = &r
		}
		if c := merge.NormalizeCurrency(listCurrency); c != "" {
			f.Currency = &c
		}

		countries, err := store.ListCountries(ctx, f)
		if err != nil {
			return err
		}
		if len(countries) == 0 {
			fmt.Println("No countries stored. Fetch them with: countrysync refresh")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tREGION\tCURRENCY\tRATE\tESTIMATED GDP")
		for _, c := range countries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.Name, deref(c.Region), c.CurrencyCode, rate(c.ExchangeRate), gdp(c.EstimatedGDP))
		}
		return tw.Flush()
	},
}

var countriesGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show one country as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		c, err := store.GetCountryByName(ctx, args[0])
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("country %q not found", args[0])
		}
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	},
}

var countriesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete one country",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		c, err := store.DeleteCountryByName(ctx, args[0])
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("country %q not found", args[0])
		}
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %s (id %d)\n", c.Name, c.ID)
		return nil
	},
}

func init() {
	countriesListCmd.Flags().StringVar(&listRegion, "region", "", "Only countries in this region")
	countriesListCmd.Flags().StringVar(&listCurrency, "currency", "", "Only countries using this currency code")
	countriesListCmd.Flags().BoolVar(&listSortGDP, "sort-gdp", false, "Sort by estimated GDP, highest first")

	countriesCmd.AddCommand(countriesListCmd)
	countriesCmd.AddCommand(countriesGetCmd)
	countriesCmd.AddCommand(countriesDeleteCmd)
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Regenerate the summary image from stored data",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		gen := newGenerator(store)
		summary, err := gen.Summarize(ctx, time.Now())
		if err != nil {
			return err
		}
		if summary.Total == 0 {
			fmt.Println("No countries stored; nothing to render.")
			return nil
		}
		if err := gen.Generate(ctx, time.Now()); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", gen.ImagePath())
		return nil
	},
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func rate(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func gdp(v *float64) string {
	if v == nil {
		return "-"
	}
	return report.FormatGDP(*v)
}
