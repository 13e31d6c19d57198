package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codalotl/docxcompat/internal/config"
	"github.com/codalotl/docxcompat/internal/harness"
	"github.com/codalotl/docxcompat/internal/logging"
	"github.com/codalotl/docxcompat/internal/objectstore"
	"github.com/codalotl/docxcompat/internal/output"
	"github.com/codalotl/docxcompat/internal/workspace"
)

// These function variables allow tests to stub external dependencies.
var (
	openSession = func(ctx context.Context, cfg *config.Config, log *zap.Logger) (harness.Capturer, func() error, error) {
		s, err := harness.Open(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return s.Driver, s.Close, nil
	}
	newObjectStore = objectstore.NewProvider
)

// app carries global flags and the state loaded from them before a command runs.
type app struct {
	configPath   string
	envFile      string
	logLevel     string
	logFormat    string
	corpusDir    string
	referenceDir string
	resultsDir   string

	stdout io.Writer
	cfg    *config.Config
	log    *zap.Logger
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the command's context so deferred cleanup
// still runs.
func Execute() error {
	ctx, stop := interruptContext(context.Background())
	defer stop()
	return ExecuteContext(ctx, os.Args[1:], os.Stdout)
}

func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// ExecuteContext runs the CLI with explicit arguments and output.
func ExecuteContext(ctx context.Context, args []string, stdout io.Writer) error {
	a := &app{stdout: stdout}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	executed, err := root.ExecuteContextC(ctx)
	if a.log != nil {
		_ = a.log.Sync()
	}
	if err != nil {
		maybePrintUsage(executed, root, err)
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	root := silenceUsageAndErrors(&cobra.Command{
		Use:   "docxcompat",
		Short: "Visual regression tests for DOCX rendering in a document server.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	})
	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML config file (default: "+config.DefaultFile+" if present)")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: console or json")
	flags.StringVar(&a.corpusDir, "corpus-dir", "", "directory holding index.json and the documents")
	flags.StringVar(&a.referenceDir, "reference-dir", "", "directory holding reference images")
	flags.StringVar(&a.resultsDir, "results-dir", "", "directory for screenshots, diffs and reports")

	root.AddCommand(newValidateManifestCmd(a))
	root.AddCommand(newRunTestsCmd(a))
	root.AddCommand(newScoreCmd(a))
	root.AddCommand(newApproveCmd(a))
	root.AddCommand(newReferencesCmd(a))
	root.AddCommand(newPublishResultsCmd(a))
	return root
}

// load applies command-line overrides on top of the layered config and builds the logger.
func (a *app) load() error {
	cfg, err := config.Load(a.configPath, a.envFile)
	if err != nil {
		return err
	}
	override(&cfg.LogLevel, a.logLevel)
	override(&cfg.LogFormat, a.logFormat)
	override(&cfg.CorpusDir, a.corpusDir)
	override(&cfg.ReferenceDir, a.referenceDir)
	override(&cfg.ResultsDir, a.resultsDir)
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := logging.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	return nil
}

func (a *app) layout() workspace.Layout {
	return workspace.Layout{
		CorpusDir:    a.cfg.CorpusDir,
		ReferenceDir: a.cfg.ReferenceDir,
		ResultsDir:   a.cfg.ResultsDir,
	}
}

func (a *app) printer() *output.Printer {
	return output.NewPrinter(a.stdout)
}

func (a *app) objectStoreConfig() objectstore.Config {
	s := a.cfg.ObjectStore
	return objectstore.Config{
		Bucket:       s.Bucket,
		Prefix:       s.Prefix,
		Region:       s.Region,
		Endpoint:     s.Endpoint,
		AccessKey:    s.AccessKey,
		SecretKey:    s.SecretKey,
		SessionToken: s.SessionToken,
		PathStyle:    s.PathStyle,
	}
}

func override(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = v
	}
}

func silenceUsageAndErrors(cmd *cobra.Command) *cobra.Command {
	silenceErrors(cmd)
	cmd.SilenceUsage = true
	return cmd
}

func silenceErrors(cmd *cobra.Command) *cobra.Command {
	cmd.SilenceErrors = true
	return cmd
}

func maybePrintUsage(cmd, root *cobra.Command, err error) {
	if err == nil {
		return
	}
	target := cmd
	if target == nil {
		target = root
	}
	if target == nil {
		return
	}
	if shouldShowUsage(err) {
		_ = target.Usage()
	}
}

func shouldShowUsage(err error) bool {
	msg := strings.ToLower(err.Error())
	if strings.HasPrefix(msg, "unknown command") {
		return true
	}
	if strings.HasPrefix(msg, "unknown flag") || strings.HasPrefix(msg, "unknown shorthand flag") {
		return true
	}
	if strings.Contains(msg, "accepts") && strings.Contains(msg, "arg") {
		return true
	}
	if strings.Contains(msg, "requires at least") && strings.Contains(msg, "arg") {
		return true
	}
	if strings.Contains(msg, "flag needs an argument") {
		return true
	}
	if strings.HasPrefix(msg, "invalid argument") {
		return true
	}
	return false
}

func splitCommaList(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
