// Package cli implements the stackfix command-line interface.
package cli

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stackfix/pkg/buildinfo"
	"github.com/matzehuels/stackfix/pkg/config"
	"github.com/matzehuels/stackfix/pkg/errors"
	"github.com/matzehuels/stackfix/pkg/observability"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = "stackfix"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// ErrUnresolved is returned when a run finished without resolving the
// dependencies. The report has already been printed.
var ErrUnresolved = stderrors.New("dependencies not resolved")

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	cfg        *config.Config
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Stackfix resolves npm dependency conflicts",
		Long: `Stackfix applies requested dependency updates to an npm project and repairs the
resulting install conflicts. It works in a scratch copy of the repository,
records every manifest change as a commit and copies the result back when done.`,
		Version:           buildinfo.Get().Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.loadConfig,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/stackfix/config.toml)")

	root.AddCommand(c.resolveCommand())
	root.AddCommand(c.historyCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig reads the config file, applies the environment and installs
// the logging hooks. It runs before every command.
func (c *CLI) loadConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg

	hooks := &logHooks{logger: c.Logger}
	observability.SetResolutionHooks(hooks)
	observability.SetCacheHooks(hooks)
	observability.SetHTTPHooks(hooks)

	cmd.SetContext(withLogger(cmd.Context(), c.Logger))
	return nil
}

// config returns the loaded configuration, or the defaults before loading.
func (c *CLI) config() *config.Config {
	if c.cfg == nil {
		c.cfg = config.Default()
	}
	return c.cfg
}

// FormatError renders err for the terminal, one detail per line.
func FormatError(err error) string {
	var b strings.Builder
	b.WriteString(StyleFailure.Render(iconError) + " " + errors.UserMessage(err))
	if code := errors.GetCode(err); code != "" {
		b.WriteString(" " + StyleDim.Render(fmt.Sprintf("[%s]", code)))
	}
	for _, d := range errors.GetDetails(err) {
		b.WriteString("\n  " + StyleDim.Render("- "+d))
	}
	return b.String()
}
