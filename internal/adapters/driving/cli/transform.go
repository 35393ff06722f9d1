package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/bro"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/elasticsearch"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/inbox"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/kafka"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/misp"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/redis"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/snort"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/stats"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/structured"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/text"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/ctitrans/internal/connectors/filesystem"
	"github.com/custodia-labs/ctitrans/internal/connectors/taxii"
	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
	"github.com/custodia-labs/ctitrans/internal/logger"
)

// Config sections read as defaults.
const (
	sectionTransform = "transform."
	sectionTAXII     = "taxii."
	keyConflict      = "index.conflict"
)

var (
	filePaths       []string
	recurse         bool
	watch           bool
	useTAXII        bool
	aggregate       bool
	scope           string
	conflict        string
	metricsTextfile string
)

// outputFlag selects a sink. String flags (sqlite, records) select the
// sink when given and also carry a setting.
type outputFlag struct {
	flag  string
	short string
	sink  string
	usage string
}

var outputFlags = []outputFlag{
	{flag: "stats", short: "s", sink: stats.Name, usage: "write summary statistics"},
	{flag: "text", short: "t", sink: text.Name, usage: "write delimited text"},
	{flag: "bro", short: "b", sink: bro.Name, usage: "write Bro/Zeek intel framework lines"},
	{flag: "snort", sink: snort.Name, usage: "write Snort rules for IPv4 addresses"},
	{flag: "misp", short: "m", sink: misp.Name, usage: "create a MISP event per pass"},
	{flag: "elastic", sink: elasticsearch.Name, usage: "index record groups into Elasticsearch"},
	{flag: "inbox", sink: inbox.Name, usage: "re-publish packages to a TAXII inbox"},
	{flag: "sqlite", sink: sqlite.SinkName, usage: "store records in a SQLite database at `PATH`"},
	{flag: "redis", sink: redis.Name, usage: "add indicators to Redis watchlist sets"},
	{flag: "kafka", sink: kafka.Name, usage: "publish records to Kafka"},
	{flag: "records", sink: structured.Name, usage: "write records as `FORMAT` (json or yaml)"},
}

// settingFlag maps a flag onto a setting of one or more sinks, or of the
// TAXII source when sinks is empty. value replaces the flag value for
// boolean flags.
type settingFlag struct {
	flag    string
	short   string
	sinks   []string
	setting string
	value   string
	usage   string
}

var settingFlags = []settingFlag{
	// TAXII source
	{flag: "poll-url", setting: taxii.SettingPollURL, usage: "TAXII poll service URL"},
	{flag: "collection", setting: taxii.SettingCollection, usage: "TAXII collection to poll"},
	{flag: "begin-timestamp", setting: taxii.SettingBegin, usage: "poll window start (RFC 3339)"},
	{flag: "end-timestamp", setting: taxii.SettingEnd, usage: "poll window end (RFC 3339)"},
	{flag: "subscription-id", setting: taxii.SettingSubscriptionID, usage: "TAXII subscription ID"},
	{flag: "username", setting: taxii.SettingUsername, usage: "TAXII username"},
	{flag: "password", setting: taxii.SettingPassword, usage: "TAXII password (prompted when a username is given)"},
	{flag: "token", setting: taxii.SettingToken, usage: "TAXII bearer token"},
	{flag: "key", setting: taxii.SettingKeyFile, usage: "client certificate key file"},
	{flag: "cert", setting: taxii.SettingCertFile, usage: "client certificate file"},
	{flag: "ca-file", setting: taxii.SettingCAFile, usage: "CA bundle for the TAXII server"},
	{flag: "xml-output", short: "x", setting: taxii.SettingSaveDir, usage: "save polled content blocks to `DIR`"},

	// Stream outputs
	{flag: "field-separator", short: "f", sinks: []string{text.Name, stats.Name}, setting: text.SettingSeparator,
		usage: "field separator for text and plain statistics"},
	{flag: "header", sinks: []string{text.Name, bro.Name, stats.Name}, setting: text.SettingHeader, value: "true",
		usage: "write headers"},
	{flag: "no-header", sinks: []string{text.Name, bro.Name, stats.Name}, setting: text.SettingHeader, value: "false",
		usage: "omit headers"},
	{flag: "source", sinks: []string{bro.Name}, setting: bro.SettingSource, usage: "intel source name"},
	{flag: "base-url", sinks: []string{bro.Name}, setting: bro.SettingBaseURL, usage: "URL prefix for intel descriptions"},
	{flag: "bro-no-notice", sinks: []string{bro.Name}, setting: bro.SettingNoNotice, value: "true",
		usage: "do not raise notices for intel hits"},
	{flag: "snort-initial-sid", sinks: []string{snort.Name}, setting: snort.SettingInitialSID, usage: "first Snort rule SID"},
	{flag: "snort-rule-revision", sinks: []string{snort.Name}, setting: snort.SettingRevision, usage: "Snort rule revision"},
	{flag: "snort-rule-action", sinks: []string{snort.Name}, setting: snort.SettingAction,
		usage: "Snort rule action (" + strings.Join(snort.Actions, ", ") + ")"},

	// Remote outputs
	{flag: "misp-url", sinks: []string{misp.Name}, setting: misp.SettingURL, usage: "MISP URL"},
	{flag: "misp-key", sinks: []string{misp.Name}, setting: misp.SettingKey, usage: "MISP API key"},
	{flag: "misp-distribution", sinks: []string{misp.Name}, setting: misp.SettingDistribution, usage: "MISP distribution (0-3)"},
	{flag: "misp-threat", sinks: []string{misp.Name}, setting: misp.SettingThreat, usage: "MISP threat level (1-4)"},
	{flag: "misp-analysis", sinks: []string{misp.Name}, setting: misp.SettingAnalysis, usage: "MISP analysis state (0-2)"},
	{flag: "misp-info", sinks: []string{misp.Name}, setting: misp.SettingInfo, usage: "MISP event info"},
	{flag: "misp-published", sinks: []string{misp.Name}, setting: misp.SettingPublished, value: "true",
		usage: "publish MISP events"},
	{flag: "elastic-url", sinks: []string{elasticsearch.Name}, setting: elasticsearch.SettingURL, usage: "Elasticsearch URL"},
	{flag: "elastic-index", sinks: []string{elasticsearch.Name}, setting: elasticsearch.SettingIndex, usage: "Elasticsearch index"},
	{flag: "elastic-username", sinks: []string{elasticsearch.Name}, setting: elasticsearch.SettingUsername, usage: "Elasticsearch username"},
	{flag: "elastic-password", sinks: []string{elasticsearch.Name}, setting: elasticsearch.SettingPassword, usage: "Elasticsearch password"},
	{flag: "elastic-token", sinks: []string{elasticsearch.Name}, setting: elasticsearch.SettingToken, usage: "Elasticsearch bearer token"},
	{flag: "inbox-url", sinks: []string{inbox.Name}, setting: inbox.SettingURL, usage: "TAXII inbox service URL"},
	{flag: "inbox-collection", sinks: []string{inbox.Name}, setting: inbox.SettingCollection, usage: "destination collection"},
	{flag: "inbox-username", sinks: []string{inbox.Name}, setting: taxii.SettingUsername, usage: "inbox username"},
	{flag: "inbox-password", sinks: []string{inbox.Name}, setting: taxii.SettingPassword, usage: "inbox password"},
	{flag: "inbox-token", sinks: []string{inbox.Name}, setting: taxii.SettingToken, usage: "inbox bearer token"},
	{flag: "redis-url", sinks: []string{redis.Name}, setting: redis.SettingURL, usage: "Redis URL"},
	{flag: "redis-key-prefix", sinks: []string{redis.Name}, setting: redis.SettingKeyPrefix, usage: "watchlist key prefix"},
	{flag: "redis-ttl", sinks: []string{redis.Name}, setting: redis.SettingTTL, usage: "watchlist expiry (e.g. 24h)"},
	{flag: "kafka-brokers", sinks: []string{kafka.Name}, setting: kafka.SettingBrokers, usage: "comma separated Kafka brokers"},
	{flag: "kafka-topic", sinks: []string{kafka.Name}, setting: kafka.SettingTopic, usage: "Kafka topic"},
}

func registerTransformFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringSliceVar(&filePaths, "file", nil, "STIX files or directories to read")
	flags.BoolVarP(&recurse, "recurse", "r", false, "descend into subdirectories")
	flags.BoolVar(&watch, "watch", false, "keep reading files added to the directories")
	flags.BoolVar(&useTAXII, "taxii", false, "poll a TAXII 1.1 service")
	flags.BoolVar(&aggregate, "aggregate", false, "process all packages in a single pass")
	flags.StringVar(&scope, "scope", "", "extract from indicators (default) or observables")
	flags.StringVar(&conflict, "conflict", "", "duplicate identifier policy: error, overwrite or keep-first")
	flags.StringVar(&metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to `PATH` after the run")
	cmd.MarkFlagsMutuallyExclusive("file", "taxii")

	for _, o := range outputFlags {
		switch o.sink {
		case sqlite.SinkName, structured.Name:
			flags.StringP(o.flag, o.short, "", o.usage)
		default:
			flags.BoolP(o.flag, o.short, false, o.usage)
		}
	}
	for _, s := range settingFlags {
		if s.value != "" {
			flags.BoolP(s.flag, s.short, false, s.usage)
		} else {
			flags.StringP(s.flag, s.short, "", s.usage)
		}
	}
	cmd.MarkFlagsMutuallyExclusive("header", "no-header")
}

func runTransform(cmd *cobra.Command, _ []string) error {
	req, err := buildRequest(cmd, appConfig)
	if err != nil {
		return err
	}
	if err := promptCredentials(cmd, &req); err != nil {
		return err
	}
	policy, err := conflictPolicy(cmd, appConfig)
	if err != nil {
		return err
	}

	a, err := newApp(appOptions{
		config:   appConfig,
		out:      cmd.OutOrStdout(),
		terminal: isTerminal(cmd.OutOrStdout()),
		log:      logger.Default(),
		policy:   policy,
	})
	if err != nil {
		return err
	}

	report, err := a.transform.Transform(cmd.Context(), req)
	if err != nil {
		return err
	}
	logger.Info("run %s: %d documents in %d passes (%d skipped, %d unresolved references) in %s",
		report.RunID, report.Documents, report.Passes, report.Skipped, report.Unresolved, report.Duration)
	for _, sink := range sortedKeys(report.Records) {
		logger.Info("%s: %d records", sink, report.Records[sink])
	}

	if metricsTextfile != "" && a.metrics != nil {
		if err := a.metrics.WriteTextfile(metricsTextfile); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	return nil
}

// buildRequest turns flags and configuration into a transform request.
// Configuration errors are reported here, before any document is read.
func buildRequest(cmd *cobra.Command, cfg driven.ConfigStore) (domain.TransformRequest, error) {
	flags := cmd.Flags()
	var req domain.TransformRequest

	switch {
	case len(filePaths) > 0:
		req.Source = domain.SourceConfig{
			Type:    filesystem.Type,
			Paths:   filePaths,
			Recurse: recurse,
			Watch:   watch,
		}
	case useTAXII:
		if watch {
			return req, fmt.Errorf("%w: --watch requires --file", domain.ErrInvalidInput)
		}
		req.Source = domain.SourceConfig{
			Type:     taxii.Type,
			Settings: sectionSettings(cfg, sectionTAXII),
		}
	default:
		return req, fmt.Errorf("%w: one input is required (--file or --taxii)", domain.ErrInvalidInput)
	}

	for _, o := range outputFlags {
		if !flags.Changed(o.flag) {
			continue
		}
		if f := flags.Lookup(o.flag); f.Value.Type() == "bool" && f.Value.String() != "true" {
			continue
		}
		req.Outputs = append(req.Outputs, domain.OutputConfig{
			Type:     o.sink,
			Settings: sectionSettings(cfg, o.sink+"."),
		})
	}
	if len(req.Outputs) == 0 {
		return req, fmt.Errorf("%w: at least one output is required", domain.ErrInvalidInput)
	}

	// Value flags of the output selectors
	for i := range req.Outputs {
		out := &req.Outputs[i]
		switch out.Type {
		case sqlite.SinkName:
			out.Settings[sqlite.SettingPath] = flags.Lookup("sqlite").Value.String()
		case structured.Name:
			out.Settings[structured.SettingFormat] = flags.Lookup("records").Value.String()
		}
	}

	for _, s := range settingFlags {
		if !flags.Changed(s.flag) {
			continue
		}
		value := s.value
		if value == "" {
			value = flags.Lookup(s.flag).Value.String()
		} else if flags.Lookup(s.flag).Value.String() != "true" {
			continue
		}

		if len(s.sinks) == 0 {
			if req.Source.Type != taxii.Type {
				return req, fmt.Errorf("%w: --%s requires --taxii", domain.ErrInvalidInput, s.flag)
			}
			req.Source.Settings[s.setting] = value
			continue
		}
		used := false
		for i := range req.Outputs {
			for _, sink := range s.sinks {
				if req.Outputs[i].Type == sink {
					req.Outputs[i].Settings[s.setting] = value
					used = true
				}
			}
		}
		if !used {
			logger.Warn("--%s ignored: no %s output selected", s.flag, strings.Join(s.sinks, " or "))
		}
	}

	if req.Source.Type == taxii.Type {
		if _, err := taxii.ConfigFromSettings(req.Source.Settings); err != nil {
			return req, err
		}
	}

	var err error
	req.Options.Aggregate = aggregate || (!flags.Changed("aggregate") && cfg.GetBool(sectionTransform+"aggregate"))
	s := scope
	if !flags.Changed("scope") {
		s = cfg.GetString(sectionTransform + "scope")
	}
	if req.Options.Scope, err = domain.ParseScope(s); err != nil {
		return req, err
	}
	return req, nil
}

// promptCredentials asks for the TAXII password when a username is
// configured without one.
func promptCredentials(cmd *cobra.Command, req *domain.TransformRequest) error {
	if req.Source.Type != taxii.Type {
		return nil
	}
	settings := req.Source.Settings
	if settings[taxii.SettingUsername] == "" || settings[taxii.SettingPassword] != "" {
		return nil
	}
	password, err := readPassword(cmd, "TAXII password for "+settings[taxii.SettingUsername]+": ")
	if err != nil {
		return err
	}
	settings[taxii.SettingPassword] = password
	return nil
}

// conflictPolicy resolves --conflict, falling back to index.conflict.
func conflictPolicy(cmd *cobra.Command, cfg driven.ConfigStore) (domain.ConflictPolicy, error) {
	value := conflict
	if !cmd.Flags().Changed("conflict") {
		value = cfg.GetString(keyConflict)
	}
	return domain.ParseConflictPolicy(value)
}

// sectionSettings returns the values under prefix as sink or source
// settings, keyed by the remainder of the key.
func sectionSettings(cfg driven.ConfigStore, prefix string) map[string]string {
	settings := make(map[string]string)
	if cfg == nil {
		return settings
	}
	for _, key := range cfg.Keys(prefix) {
		v, ok := cfg.Get(key)
		if !ok {
			continue
		}
		settings[strings.TrimPrefix(key, prefix)] = configString(v)
	}
	return settings
}

// configString renders a TOML value as a setting.
func configString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, ",")
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v)
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
