// Command tlc runs the transient liquid crystal experiment processor: an API
// server for interactive use, a batch mode that drives a saved experiment to
// completion, and administration of the settings store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/banshee-data/nusselt.report/internal/api"
	"github.com/banshee-data/nusselt.report/internal/daq"
	"github.com/banshee-data/nusselt.report/internal/db"
	"github.com/banshee-data/nusselt.report/internal/monitoring"
	"github.com/banshee-data/nusselt.report/internal/render"
	"github.com/banshee-data/nusselt.report/internal/tlc"
	"github.com/banshee-data/nusselt.report/internal/version"
	"github.com/banshee-data/nusselt.report/internal/video"
)

var (
	dbPath    string
	debugMode bool
)

func main() {
	root := &cobra.Command{
		Use:   "tlc",
		Short: "Transient liquid crystal experiment processor",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			monitoring.SetDebug(debugMode)
		},
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "tlc.db", "path to the settings database")
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	root.AddCommand(serveCmd(), processCmd(), settingsCmd(), migrateCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

// newCore assembles the production core against a settings database.
func newCore(database *db.DB) (*tlc.Core, *video.Source) {
	source := video.NewSource(video.SourceConfig{})
	core := tlc.NewCore(tlc.Config{
		Video:     source,
		Daq:       daq.Loader{},
		Store:     db.Store{DB: database},
		Artifacts: render.ArtifactWriter{},
		Plotter:   render.NuPlotter{},
	})
	return core, source
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the core with its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.NewDB(dbPath)
			if err != nil {
				return err
			}
			defer database.Close()

			core, source := newCore(database)
			defer source.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go core.Run(ctx)

			server := api.NewServer(core, database)
			return server.Start(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8087", "listen address")
	return cmd
}

func processCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "process <name>",
		Short: "Run a saved experiment to completion and write its artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.NewDB(dbPath)
			if err != nil {
				return err
			}
			defer database.Close()

			rec, err := database.GetSettingByName(args[0])
			if err != nil {
				return err
			}

			core, source := newCore(database)
			defer source.Close()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			go core.Run(ctx)

			if err := core.LoadSetting(rec.Setting); err != nil {
				return err
			}
			color.Cyan("processing %q", rec.Name)
			return watch(ctx, core)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "maximum processing time")
	return cmd
}

// watch polls stage progress, rendering one bar per running stage, until the
// solve completes or a stage fails.
func watch(ctx context.Context, core *tlc.Core) error {
	bars := make(map[tlc.Stage]*progressbar.ProgressBar)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("processing timed out: %w", ctx.Err())
		case <-ticker.C:
		}

		for _, stage := range tlc.Stages() {
			if err := core.LastStageError(stage); err != nil {
				return fmt.Errorf("stage %s failed: %w", stage, err)
			}
			count, total, _ := core.GetProgress(stage)
			if total == 0 {
				continue
			}
			bar, ok := bars[stage]
			if !ok {
				bar = progressbar.NewOptions(int(total),
					progressbar.OptionSetDescription(stage.String()),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
				bars[stage] = bar
			}
			bar.Set(int(count))
		}

		if core.Completed() {
			mean, err := core.NuMean()
			if err != nil {
				return err
			}
			color.Green("done: mean Nu %.3f", mean)
			return nil
		}
	}
}

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Administer the settings store",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved experiments",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.NewDB(dbPath)
			if err != nil {
				return err
			}
			defer database.Close()
			records, err := database.ListSettings()
			if err != nil {
				return err
			}
			for _, rec := range records {
				status := "incomplete"
				if rec.CompletedAt != nil {
					status = "completed " + rec.CompletedAt.Format(time.RFC3339)
				}
				fmt.Printf("%-30s %s\n", rec.Name, status)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Print one experiment's configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.NewDB(dbPath)
			if err != nil {
				return err
			}
			defer database.Close()
			rec, err := database.GetSettingByName(args[0])
			if err != nil {
				return err
			}
			out, err := prettyJSON(rec)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete one experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.NewDB(dbPath)
			if err != nil {
				return err
			}
			defer database.Close()
			return database.DeleteSetting(args[0])
		},
	})

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.String())
		},
	}
}

func prettyJSON(v interface{}) (string, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.NewDB(dbPath)
			if err != nil {
				return err
			}
			defer database.Close()
			migFS, err := db.MigrationsFS()
			if err != nil {
				return err
			}
			version, dirty, err := database.MigrateVersion(migFS)
			if err != nil {
				return err
			}
			fmt.Printf("schema version %d (dirty=%v)\n", version, dirty)
			return nil
		},
	}
	return cmd
}
