package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	goption "google.golang.org/api/option"

	"bilancio/internal/backend"
	"bilancio/internal/config"
	"bilancio/internal/log"
)

var version = "dev"

// App carries what every command needs. Zero fields are filled from the
// environment when the command runs.
type App struct {
	Out    io.Writer
	Config *config.Config
	Logger *log.Logger
	Now    func() time.Time

	// SheetsOptions are appended to the Google client options; tests use
	// them to point the exporter at a fake endpoint.
	SheetsOptions []goption.ClientOption

	output string
}

// NewRootCommand builds the bilancio-cli command tree.
func NewRootCommand(app *App) *cobra.Command {
	if app.Out == nil {
		app.Out = os.Stdout
	}
	if app.Now == nil {
		app.Now = time.Now
	}

	root := &cobra.Command{
		Use:   "bilancio-cli",
		Short: "Reports over the bilancio records",
		Long: `bilancio-cli computes the dashboard statistics from the configured backend
and prints them, or exports them to Google Sheets.

The backend is chosen like the server does it, from DATA_BACKEND and
friends; the flags below override the environment.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.prepare(cmd)
		},
	}

	root.PersistentFlags().String("backend", "", "data backend: memory, sqlite or rest")
	root.PersistentFlags().String("data-dir", "", "directory with the JSON seed files (memory backend)")
	root.PersistentFlags().String("db", "", "SQLite database path (sqlite backend)")
	root.PersistentFlags().String("api-url", "", "accounting API base URL (rest backend)")
	root.PersistentFlags().StringVarP(&app.output, "output", "o", "table", "output format: table or json")

	root.AddCommand(newReportCommand(app), newExportCommand(app))
	return root
}

// Execute runs the command tree against the process arguments.
func Execute() int {
	app := &App{}
	if err := NewRootCommand(app).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *App) prepare(cmd *cobra.Command) error {
	if a.output != "table" && a.output != "json" {
		return fmt.Errorf("unknown output format %q: use table or json", a.output)
	}
	if a.Config == nil {
		config.LoadDotEnv()
		a.Config = config.Load()
	}
	flags := cmd.Flags()
	if v, _ := flags.GetString("backend"); v != "" {
		a.Config.DataBackend = v
	}
	if v, _ := flags.GetString("data-dir"); v != "" {
		a.Config.DataDirectory = v
	}
	if v, _ := flags.GetString("db"); v != "" {
		a.Config.SQLiteDBPath = v
	}
	if v, _ := flags.GetString("api-url"); v != "" {
		a.Config.APIBaseURL = v
	}
	if err := a.Config.Validate(); err != nil {
		return err
	}
	if a.Logger == nil {
		// reports go to stdout, so logs stay on stderr
		lc := log.DefaultConfig()
		lc.Level = log.ParseLevel(a.Config.LogLevel)
		lc.Format = a.Config.LogFormat
		lc.Output = os.Stderr
		a.Logger = log.New(lc)
	}
	return nil
}

// withBackend opens the backend for the duration of fn.
func (a *App) withBackend(ctx context.Context, fn func(src backend.Source) error) error {
	res, err := OpenBackend(ctx, a.Config, a.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := res.Cleanup(); cerr != nil {
			a.Logger.Warn("Backend cleanup failed", log.FieldError, cerr)
		}
	}()
	return fn(res.Source)
}

func (a *App) writeJSON(v any) error {
	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
