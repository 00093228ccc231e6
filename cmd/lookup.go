package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Ashfaaq98/vt-lookup/internal/logging"
	"github.com/Ashfaaq98/vt-lookup/internal/lookup"
	"github.com/Ashfaaq98/vt-lookup/internal/pipeline"
	"github.com/Ashfaaq98/vt-lookup/internal/presenter"
	"github.com/Ashfaaq98/vt-lookup/internal/reader"
	"github.com/Ashfaaq98/vt-lookup/internal/validate"
	"github.com/Ashfaaq98/vt-lookup/internal/virustotal"
	"github.com/Ashfaaq98/vt-lookup/internal/watch"
)

// Reader and presenter names accepted by --reader and --presenter.
const (
	readerFile        = "file"
	readerInteractive = "interactive"
	readerRedis       = "redis"
	readerSQLite      = "sqlite"

	presenterFile    = "file"
	presenterConsole = "console"
)

// lookupOptions holds the flags that are not mirrored into viper.
type lookupOptions struct {
	kind      string
	source    string
	reader    string
	presenter string
	query     string
	watch     bool
}

func init() {
	rootCmd.AddCommand(newLookupCmd(validate.KindIP))
	rootCmd.AddCommand(newLookupCmd(validate.KindURL))
}

func newLookupCmd(kind string) *cobra.Command {
	opts := &lookupOptions{kind: kind}
	noun := "IP addresses"
	example := `  # Look up every address in a JSON array file
  vt-lookup lookup-ips -s ips.json --api-key $VT_KEY

  # Read from a Redis list filled by a collector, print to the console
  vt-lookup lookup-ips --reader redis -s suspicious:ips --presenter console

  # Pull addresses out of an event store
  vt-lookup lookup-ips --reader sqlite -s events.db --query "SELECT DISTINCT src_ip FROM events"`
	if kind == validate.KindURL {
		noun = "URLs"
		example = `  # Look up every URL in a JSON array file, 8 at a time
  vt-lookup lookup-urls -s urls.json --group-max-size 8

  # Re-run whenever the file changes
  vt-lookup lookup-urls -s urls.json --watch

  # Type the URLs in
  vt-lookup lookup-urls --reader interactive --presenter console`
	}

	c := &cobra.Command{
		Use:   "lookup-" + kind + "s",
		Short: fmt.Sprintf("Check %s against VirusTotal", noun),
		Long: fmt.Sprintf(`Check %s against the VirusTotal v3 API.

Identifiers are validated and de-duplicated before any request is made. The
remaining ones are looked up in consecutive batches of at most
--group-max-size concurrent requests. Failed lookups are logged and left out
of the report.

An identifier is reported malicious when its malicious and suspicious engine
verdicts together outnumber its harmless verdicts.

Examples:
%s`, noun, example),
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Both lookup commands declare the same flags, so only the one
			// being run may be bound to the shared viper keys.
			return bindLookupFlags(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(cmd.Context(), opts, GetConfig(), cmd.InOrStdin(), cmd.OutOrStdout(), logger)
		},
	}

	f := c.Flags()
	f.StringVarP(&opts.source, "source", "s", "", "JSON file path, Redis list key or SQLite database path, depending on --reader")
	f.StringVar(&opts.reader, "reader", readerFile, "Identifier source (file, interactive, redis, sqlite)")
	f.StringVar(&opts.presenter, "presenter", presenterFile, "Report destination (file, console)")
	f.StringVar(&opts.query, "query", "", "Single-column SELECT for --reader sqlite")
	f.BoolVar(&opts.watch, "watch", false, "Re-run whenever the source file changes (file reader only)")

	f.String("api-key", "", "VirusTotal API key")
	f.Int("group-max-size", lookup.DefaultGroupMaxSize, fmt.Sprintf("Concurrent lookups per batch (%d-%d)", lookup.MinGroupMaxSize, lookup.MaxGroupMaxSize))
	f.String("output-dir", "", "Directory for report files (default is the working directory)")
	f.String("base-url", virustotal.DefaultBaseURL, "VirusTotal API base URL")
	f.Duration("timeout", 30*time.Second, "Per-request timeout")
	f.Bool("verify-tls", true, "Verify the API server certificate")
	f.String("redis-url", "redis://localhost:6379", "Redis URL for --reader redis")

	return c
}

var lookupFlagKeys = map[string]string{
	"api-key":        "virustotal.api_key",
	"base-url":       "virustotal.base_url",
	"timeout":        "virustotal.timeout",
	"verify-tls":     "virustotal.verify_tls",
	"group-max-size": "lookup.group_max_size",
	"output-dir":     "output.dir",
	"redis-url":      "redis.url",
}

func bindLookupFlags(cmd *cobra.Command) error {
	for flag, key := range lookupFlagKeys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind --%s: %w", flag, err)
		}
	}
	return nil
}

// validate checks flag combinations that cobra cannot express.
func (o *lookupOptions) validate(cfg Config) error {
	if cfg.VirusTotal.APIKey == "" {
		return errors.New("an API key is required (--api-key, virustotal.api_key or VT_LOOKUP_VIRUSTOTAL_API_KEY)")
	}
	if err := lookup.ValidateGroupMaxSize(cfg.Lookup.GroupMaxSize); err != nil {
		return err
	}
	switch o.reader {
	case readerFile, readerRedis:
		if o.source == "" {
			return fmt.Errorf("--source is required for --reader %s", o.reader)
		}
	case readerSQLite:
		if o.source == "" || o.query == "" {
			return errors.New("--reader sqlite needs both --source and --query")
		}
	case readerInteractive:
	default:
		return fmt.Errorf("unknown reader %q", o.reader)
	}
	switch o.presenter {
	case presenterFile, presenterConsole:
	default:
		return fmt.Errorf("unknown presenter %q", o.presenter)
	}
	if o.watch && o.reader != readerFile {
		return errors.New("--watch only works with --reader file")
	}
	return nil
}

func runLookup(ctx context.Context, opts *lookupOptions, cfg Config, in io.Reader, out io.Writer, logger *zap.Logger) error {
	logger = logging.OrNop(logger).With(zap.String("command", "lookup-"+opts.kind+"s"))
	if err := opts.validate(cfg); err != nil {
		return err
	}

	m, cleanup, err := buildManager(ctx, opts, cfg, in, out, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if !opts.watch {
		return m.Run(ctx)
	}

	if err := m.Run(ctx); err != nil {
		logger.Error("Lookup run failed", zap.Error(err))
	}
	err = watch.New(opts.source, m.Run, logger).Watch(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildManager assembles validator, reader, client, orchestrator and
// presenter for one command invocation. cleanup releases whatever the
// reader opened.
func buildManager(ctx context.Context, opts *lookupOptions, cfg Config, in io.Reader, out io.Writer, logger *zap.Logger) (*pipeline.Manager, func(), error) {
	v, err := validate.ForKind(opts.kind)
	if err != nil {
		return nil, nil, err
	}
	filter := reader.NewFilter(v, logger)

	r, cleanup, err := newReader(ctx, opts, cfg, filter, in, out)
	if err != nil {
		return nil, nil, err
	}

	client, err := virustotal.New(opts.kind, virustotal.Options{
		APIKey:     cfg.VirusTotal.APIKey,
		BaseURL:    cfg.VirusTotal.BaseURL,
		HTTPClient: virustotal.NewHTTPClient(cfg.VirusTotal.Timeout, cfg.VirusTotal.VerifyTLS),
		Logger:     logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var p pipeline.Presenter
	switch opts.presenter {
	case presenterConsole:
		p = presenter.NewConsolePresenter(out)
	default:
		p = presenter.NewFilePresenter(cfg.Output.Dir, logger)
	}

	m := pipeline.NewManager(r,
		lookup.NewOrchestrator(client, cfg.Lookup.GroupMaxSize, logger),
		p,
		pipeline.WithLogger(logger))
	return m, cleanup, nil
}

func newReader(ctx context.Context, opts *lookupOptions, cfg Config, filter *reader.Filter, in io.Reader, out io.Writer) (pipeline.Reader, func(), error) {
	noop := func() {}
	switch opts.reader {
	case readerInteractive:
		return reader.NewInteractiveReader(in, out, filter), noop, nil
	case readerRedis:
		client, err := reader.DialRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, nil, err
		}
		return reader.NewRedisReader(client, opts.source, filter), func() { _ = client.Close() }, nil
	case readerSQLite:
		return reader.NewSQLReader(opts.source, opts.query, filter), noop, nil
	default:
		return reader.NewFileReader(opts.source, filter), noop, nil
	}
}
