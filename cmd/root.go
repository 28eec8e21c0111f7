package cmd

import (
	"io"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/banana-tryon/tryon/internal/config"
	"github.com/banana-tryon/tryon/internal/logging"
)

type rootOptions struct {
	configPath string
	verbose    bool
	logFile    string

	logCloser io.Closer
}

// load reads .env-backed environment and the optional YAML file
func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}
	if o.logFile != "" {
		cfg.LogFile = o.logFile
	}
	return cfg, nil
}

// closeLog releases the log file. It runs once per command even when RunE fails.
func (o *rootOptions) closeLog() {
	if o.logCloser == nil {
		return
	}
	_ = o.logCloser.Close()
	o.logCloser = nil
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(&rootOptions{})
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	cobra.OnFinalize(opts.closeLog)

	cmd := &cobra.Command{
		Use:   "tryon",
		Short: "Virtual try-on proxy and shopper workflow client",
		Long: `Tryon renders a shopper wearing a product using a hosted vision model.

The serve command runs the inference proxy that storefronts submit photos to.
The submit command drives the shopper workflow from the terminal: pick or
capture a photo, submit it, save the result and optionally add the product
to the cart.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			cfg, err := opts.load()
			if err != nil {
				return err
			}
			opts.logCloser = logging.Setup(logging.Options{
				Verbose: opts.verbose,
				File:    cfg.LogFile,
			})
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file layered over the environment")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "Write JSON logs to a rotating file instead of stderr")

	// Add subcommands
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newSubmitCmd(opts))

	return cmd
}
