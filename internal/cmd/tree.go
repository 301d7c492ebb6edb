package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/botdas/internal/render"
)

var treeCmd = &cobra.Command{
	Use:   "tree <owner/repo>",
	Short: "Fetch and print a repository tree",
	Long: `Fetch a repository tree the way an upgrade sees it. Manifest files carry
their content; directories beyond tree.max_depth are marked and not listed.

Use --out to save a snapshot that 'botdas upgrade --tree' can reuse.`,
	Args: cobra.ExactArgs(1),
	RunE: runTree,
}

func init() {
	treeCmd.Flags().String("path", "", "start at this directory instead of the root")
	treeCmd.Flags().String("token", "", "hosting token (default: hosting.token)")
	treeCmd.Flags().String("out", "", "write the tree as JSON to this file")
	treeCmd.Flags().Bool("json", false, "print the tree as JSON")
}

func runTree(cmd *cobra.Command, args []string) error {
	owner, name, err := parseRepository(args[0])
	if err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("path")
	token, _ := cmd.Flags().GetString("token")
	out, _ := cmd.Flags().GetString("out")
	asJSON, _ := cmd.Flags().GetBool("json")

	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	svc := rt.service()
	if token == "" && !svc.HasToken() {
		return fmt.Errorf("no hosting token: pass --token or set BOTDAS_HOSTING_TOKEN")
	}

	root, err := svc.FetchTree(cmd.Context(), owner, name, path, token)
	if err != nil {
		return err
	}
	if err := writeOut(out, root); err != nil {
		return err
	}
	return emit(cmd, asJSON, root, func(r *render.Renderer) string { return r.Tree(root) })
}
