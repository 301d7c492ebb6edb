package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/botdas/internal/render"
	"github.com/Iron-Ham/botdas/internal/upgrade"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard <package> <owner/repo>...",
	Short: "Upgrade one package across several repositories",
	Long: `Run an upgrade of <package> in every listed repository. Repositories are
processed in parallel (dashboard.max_parallel) and a failure in one does not
stop the others.

Examples:
  botdas dashboard next acme/web acme/docs acme/admin
  botdas dashboard react acme/web acme/docs --no-pr --parallel 2`,
	Args: cobra.MinimumNArgs(2),
	RunE: runDashboard,
}

func init() {
	dashboardCmd.Flags().Int("parallel", 0, "repositories analyzed at once (default: dashboard.max_parallel)")
	dashboardCmd.Flags().String("token", "", "hosting token (default: hosting.token)")
	dashboardCmd.Flags().Bool("no-pr", false, "analyze only, do not open pull requests")
	dashboardCmd.Flags().String("out", "", "write the results as JSON to this file")
	dashboardCmd.Flags().Bool("json", false, "print the results as JSON")
}

func runDashboard(cmd *cobra.Command, args []string) error {
	pkg := args[0]
	reqs := make([]upgrade.Request, 0, len(args)-1)
	parallel, _ := cmd.Flags().GetInt("parallel")
	token, _ := cmd.Flags().GetString("token")
	noPR, _ := cmd.Flags().GetBool("no-pr")
	out, _ := cmd.Flags().GetString("out")
	asJSON, _ := cmd.Flags().GetBool("json")

	for _, arg := range args[1:] {
		owner, name, err := parseRepository(arg)
		if err != nil {
			return err
		}
		reqs = append(reqs, upgrade.Request{Owner: owner, Name: name, TargetPackage: pkg, Token: token, NoPR: noPR})
	}

	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer rt.close()
	if parallel < 1 {
		parallel = rt.cfg.Dashboard.MaxParallel
	}

	svc := rt.service()
	if token == "" && !svc.HasToken() {
		return fmt.Errorf("no hosting token: pass --token or set BOTDAS_HOSTING_TOKEN")
	}

	entries := svc.Dashboard(cmd.Context(), reqs, parallel)
	if err := writeOut(out, entries); err != nil {
		return err
	}
	return emit(cmd, asJSON, entries, func(r *render.Renderer) string { return r.Dashboard(entries) })
}
