// Package cli implements the ctitrans command line.
//
// The root command transforms STIX packages from files or a TAXII poll
// into one or more outputs. Flags default from the TOML configuration
// file; a flag given on the command line always wins.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/ctitrans/internal/adapters/driven/config/file"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
	"github.com/custodia-labs/ctitrans/internal/logger"
)

// version is set at build time.
var version = "dev"

var (
	configPath string
	noConfig   bool
	verbose    bool
	debug      bool
	quiet      bool

	// appConfig is loaded before every command runs.
	appConfig driven.ConfigStore
)

var rootCmd = &cobra.Command{
	Use:   "ctitrans",
	Short: "Transform STIX threat intelligence into security tool formats",
	Long: `ctitrans reads STIX 1.x packages from files or a TAXII 1.1 poll, extracts
the observables of their indicators and writes them to one or more outputs:
delimited text, statistics, Bro/Zeek intel, Snort rules, MISP events,
Elasticsearch, a TAXII inbox, SQLite, Redis watchlists, Kafka or JSON/YAML.

Examples:
  # Text output for every file in a directory
  ctitrans --file feeds/ -r --text

  # Poll a TAXII feed into a MISP instance
  ctitrans --taxii --poll-url https://feed.example.com/poll --collection default \
      --username analyst --misp --misp-url https://misp.example.com --misp-key KEY`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE:              runTransform,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "configuration file (default ~/.ctitrans/config.toml)")
	flags.BoolVar(&noConfig, "no-config", false, "ignore the configuration file")
	flags.BoolVarP(&verbose, "verbose", "v", false, "print progress messages")
	flags.BoolVarP(&debug, "debug", "d", false, "print debug messages")
	flags.BoolVarP(&quiet, "quiet", "q", false, "print errors only")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")
	rootCmd.MarkFlagsMutuallyExclusive("config", "no-config")

	registerTransformFlags(rootCmd)
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// setup configures logging and loads the configuration file.
func setup(cmd *cobra.Command, _ []string) error {
	logger.SetOutput(cmd.ErrOrStderr())

	if noConfig {
		appConfig = memory.NewConfigStore(nil)
	} else {
		store, err := file.NewConfigStore(configPath)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		appConfig = store
	}

	level, err := logger.ParseLevel(appConfig.GetString("log.level"))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	switch {
	case debug:
		level = logger.LevelDebug
	case verbose:
		level = logger.LevelInfo
	case quiet:
		level = logger.LevelQuiet
	}
	logger.SetLevel(level)
	logger.Debug("configuration %s", appConfig.Path())
	return nil
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// readPassword reads a password from in without echo when in is a
// terminal, or a single line otherwise.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	in := cmd.InOrStdin()
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	defer fmt.Fprintln(cmd.ErrOrStderr())

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(password), nil
	}
	return readLine(in)
}

// readLine reads up to the first newline without buffering past it.
func readLine(r io.Reader) (string, error) {
	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				break
			}
			line = append(line, buf[0])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
	}
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	return string(line), nil
}
