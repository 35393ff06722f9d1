package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ctitrans/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/ctitrans/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
	"github.com/custodia-labs/ctitrans/internal/logger"
)

// Defaults for the serve command.
const (
	defaultAddr    = ":8080"
	defaultMaxRuns = 100
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the transform pipeline over HTTP",
	Long: `Start an HTTP server that transforms STIX packages posted to it.

Endpoints:
  POST /v1/transform              transform the request body
  GET  /v1/runs                   list recorded runs
  GET  /v1/runs/{id}/records      list the records of a run (?type= filters)
  GET  /metrics                   Prometheus metrics
  GET  /healthz                   liveness

Runs are kept in memory unless --records-db names a SQLite database.

Examples:
  ctitrans serve --addr :9000
  curl --data-binary @package.xml 'localhost:9000/v1/transform?profile=bro'`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", defaultAddr, "listen address")
	serveCmd.Flags().String("records-db", "", "SQLite database recording runs")
	serveCmd.Flags().Int("max-runs", defaultMaxRuns, "runs kept in memory without --records-db (0 keeps all)")
	serveCmd.MarkFlagsMutuallyExclusive("records-db", "max-runs")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	addr, _ := flags.GetString("addr")
	dbPath, _ := flags.GetString("records-db")
	maxRuns, _ := flags.GetInt("max-runs")
	if !flags.Changed("addr") {
		if v := appConfig.GetString("serve.addr"); v != "" {
			addr = v
		}
	}

	var store driven.RecordStore
	if dbPath != "" {
		db, err := sqlite.NewStore(dbPath)
		if err != nil {
			return fmt.Errorf("opening records database: %w", err)
		}
		defer db.Close()
		store = db
	} else {
		store = memory.NewRecordStore(maxRuns)
	}

	policy, err := conflictPolicy(cmd, appConfig)
	if err != nil {
		return err
	}
	a, err := newApp(appOptions{
		config:  appConfig,
		out:     cmd.OutOrStdout(),
		log:     logger.Default(),
		policy:  policy,
		records: store,
	})
	if err != nil {
		return err
	}

	opts := []httpapi.Option{
		httpapi.WithRecords(store, func(p domain.Profile) httpapi.RecordingSink {
			return sqlite.NewSink(store, p)
		}),
		httpapi.WithProfiles(a.profiles),
		httpapi.WithLogger(logger.Default()),
	}
	if a.metrics != nil {
		opts = append(opts, httpapi.WithMetrics(a.metrics.Handler()))
	}
	handler := httpapi.New(a.extract, opts...)

	logger.Info("listening on %s", addr)
	return httpapi.Serve(cmd.Context(), addr, handler.Router())
}
