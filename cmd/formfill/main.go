// Command formfill detects, classifies and fills form fields from the
// command line. It shares configuration and storage with the MCP server.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/a3tai/mcp-form-autofill/internal/config"
	"github.com/a3tai/mcp-form-autofill/internal/pipeline"
)

var version = "dev" // This will be set by build flags

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries the resolved configuration between cobra hooks
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: config.DefaultConfig()}

	root := &cobra.Command{
		Use:          "formfill",
		Short:        "Detect, classify and fill form fields in PDFs and scanned forms",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return fmt.Errorf("failed to load .env: %w", err)
			}
			if _, err := config.Load(viper.New(), cmd.Flags(), a.cfg); err != nil {
				return err
			}
			a.logger = a.cfg.NewLogger(cmd.ErrOrStderr())
			return nil
		},
	}
	config.DefineFlags(root.PersistentFlags(), a.cfg)

	root.AddCommand(
		newDetectCmd(a),
		newClassifyCmd(a),
		newFillCmd(a),
		newTrainCmd(a),
	)
	return root
}

// processor builds a processor for one command run
func (a *app) processor() (*pipeline.Processor, error) {
	if err := a.cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return pipeline.New(a.cfg, a.logger)
}

// closeProcessor logs instead of failing the command
func (a *app) closeProcessor(p *pipeline.Processor) {
	if err := p.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close processor")
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
