package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/botdas/internal/pipeline"
	"github.com/Iron-Ham/botdas/internal/render"
	"github.com/Iron-Ham/botdas/internal/upgrade"
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade <owner/repo> <package>",
	Short: "Upgrade a dependency and open a pull request",
	Long: `Upgrade a dependency in a repository.

The repository tree is fetched from the hosting platform unless --tree names
a snapshot written by 'botdas tree --out'. The planner, parser and codemod
agents run in sequence, and a pull request is opened unless --no-pr is set
or the planner produced no instructions.

Examples:
  botdas upgrade acme/web next
  botdas upgrade acme/web next --no-pr --out run.json
  BOTDAS_HOSTING_TOKEN=ghp_... botdas upgrade acme/web react`,
	Args: cobra.ExactArgs(2),
	RunE: runUpgrade,
}

func init() {
	upgradeCmd.Flags().String("token", "", "hosting token for this run (default: hosting.token)")
	upgradeCmd.Flags().Bool("no-pr", false, "analyze only, do not open a pull request")
	upgradeCmd.Flags().String("out", "", "write the response as JSON to this file")
	upgradeCmd.Flags().String("tree", "", "use a tree snapshot file instead of fetching")
	upgradeCmd.Flags().Bool("json", false, "print the response as JSON")
}

func runUpgrade(cmd *cobra.Command, args []string) error {
	owner, name, err := parseRepository(args[0])
	if err != nil {
		return err
	}
	token, _ := cmd.Flags().GetString("token")
	noPR, _ := cmd.Flags().GetBool("no-pr")
	out, _ := cmd.Flags().GetString("out")
	treePath, _ := cmd.Flags().GetString("tree")
	asJSON, _ := cmd.Flags().GetBool("json")

	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	req := upgrade.Request{Owner: owner, Name: name, TargetPackage: args[1], Token: token, NoPR: noPR}
	if treePath != "" {
		if req.Tree, err = readTree(treePath); err != nil {
			return err
		}
	}

	var opts []upgrade.Option
	if isTerminal(cmd.ErrOrStderr()) {
		opts = append(opts, upgrade.WithObserver(progress(cmd.ErrOrStderr())))
	}
	svc := rt.service(opts...)
	if req.Token == "" && !svc.HasToken() {
		return fmt.Errorf("no hosting token: pass --token or set BOTDAS_HOSTING_TOKEN")
	}

	resp, err := svc.Upgrade(cmd.Context(), req)
	if err != nil {
		return err
	}
	if err := writeOut(out, resp); err != nil {
		return err
	}
	return emit(cmd, asJSON, resp, func(r *render.Renderer) string { return r.Upgrade(resp) })
}

// progress prints one line per stage transition.
func progress(w io.Writer) pipeline.Observer {
	return pipeline.ObserverFuncs{
		OnStart: func(stage pipeline.Stage) {
			fmt.Fprintf(w, "%s %s...\n", render.StatusIcon(""), stage)
		},
		OnComplete: func(stage pipeline.Stage, variant pipeline.Variant, err error) {
			if err != nil {
				fmt.Fprintf(w, "%s %s failed: %v\n", render.StatusIcon(render.StatusFailed), stage, err)
				return
			}
			fmt.Fprintf(w, "%s %s %s\n", render.StatusIcon(render.StatusAnalyzed), stage, variant)
		},
	}
}
