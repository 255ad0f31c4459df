package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"unihelp/internal/config"
	"unihelp/internal/logging"
	"unihelp/internal/metrics"
)

type globalOptions struct {
	configPath  string
	verbose     bool
	metricsAddr string
}

// NewRootCmd builds the command tree. Every subcommand shares one app,
// assembled in PersistentPreRunE.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}
	a := &app{}

	cmd := &cobra.Command{
		Use:   "unihelp",
		Short: "University document assistant",
		Long: `UniHelp indexes institutional documents (PDF, text, markdown) in a
vector store and answers student questions from the most relevant passages.

Examples:
  unihelp ingest docs/Data
  unihelp ask "Comment obtenir une attestation de scolarité ?"
  unihelp search --limit 3 bourses
  unihelp chat`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context(), opts)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to YAML config file (default ./config.yaml or ~/.config/unihelp/config.yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")

	cmd.AddCommand(
		newIngestCmd(a),
		newIngestFileCmd(a),
		newAskCmd(a),
		newSearchCmd(a),
		newInfoCmd(a),
		newClearCmd(a),
		newChatCmd(a),
		newEmailCmd(a),
	)
	return cmd
}

// Execute runs the root command with a background context.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

func (a *app) init(ctx context.Context, opts *globalOptions) error {
	_ = godotenv.Load()

	var (
		cfg *config.AppConfig
		err error
	)
	if opts.configPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(opts.configPath)
	}
	if err != nil {
		return err
	}

	logger, err := logging.New(opts.verbose)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	a.metrics = metrics.New()

	if opts.metricsAddr != "" {
		a.serveMetrics(opts.metricsAddr)
	}
	return a.build(ctx)
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	a.metricsServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("addr", addr))
}

func (a *app) close() error {
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.metricsServer.Shutdown(ctx)
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return nil
}
