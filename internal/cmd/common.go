package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/botdas/internal/config"
	"github.com/Iron-Ham/botdas/internal/logging"
	"github.com/Iron-Ham/botdas/internal/render"
	"github.com/Iron-Ham/botdas/internal/report"
	"github.com/Iron-Ham/botdas/internal/tree"
	"github.com/Iron-Ham/botdas/internal/upgrade"
)

// files is the filesystem commands read inputs from and write outputs to.
var files = afero.NewOsFs()

// runtime is the configuration and logger a command runs with.
type runtime struct {
	cfg    *config.Config
	logger *logging.Logger
}

func loadRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger}, nil
}

// service builds an upgrade service, persisting reports when report.dir is set.
func (rt *runtime) service(opts ...upgrade.Option) *upgrade.Service {
	if rt.cfg.Report.Dir != "" {
		opts = append(opts, upgrade.WithReporter(report.NewWriter(files, rt.cfg.Report.Dir)))
	}
	return upgrade.NewServiceFromConfig(rt.cfg, rt.logger, opts...)
}

func (rt *runtime) close() {
	_ = rt.logger.Close()
}

// parseRepository splits "owner/name".
func parseRepository(arg string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(strings.Trim(arg, "/"), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("repository must be owner/name, got %q", arg)
	}
	return owner, name, nil
}

// readTree loads a repository snapshot written by "botdas tree --out".
func readTree(path string) (*tree.RepositoryNode, error) {
	data, err := afero.ReadFile(files, path)
	if err != nil {
		return nil, fmt.Errorf("reading tree: %w", err)
	}
	var root tree.RepositoryNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing tree %s: %w", path, err)
	}
	return &root, nil
}

// writeOut writes v as JSON to path when path is set.
func writeOut(path string, v any) error {
	if path == "" {
		return nil
	}
	return report.NewWriter(files, "").WriteJSON(path, v)
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// emit writes v either as JSON or through the renderer.
func emit(cmd *cobra.Command, asJSON bool, v any, text func(*render.Renderer) string) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := io.WriteString(out, text(render.New(isTerminal(out))))
	return err
}
