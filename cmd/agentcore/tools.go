package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flynn-ai/agentcore/internal/model"
	"github.com/flynn-ai/agentcore/internal/tools"
)

var (
	toolsRole         string
	toolsMode         string
	toolsIncludeAdmin bool
	toolsExcludeWrite bool
	toolsOnlyRead     bool
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List catalog tools, optionally filtered for a role",
	RunE:  runTools,
}

var (
	routeTaskType   string
	routeComplexity string
	routePII        string
	routeJSON       bool
)

var routeCmd = &cobra.Command{
	Use:   "route [tool]",
	Short: "Preview which model a task would be routed to",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRoute,
}

func init() {
	toolsCmd.Flags().StringVar(&toolsRole, "role", "", "Only tools this role may call")
	toolsCmd.Flags().StringVar(&toolsMode, "mode", "", "Only tools available in this mode")
	toolsCmd.Flags().BoolVar(&toolsIncludeAdmin, "include-admin", false, "Keep admin-level tools")
	toolsCmd.Flags().BoolVar(&toolsExcludeWrite, "exclude-write", false, "Drop write-level tools")
	toolsCmd.Flags().BoolVar(&toolsOnlyRead, "only-read", false, "Keep read-level tools only")

	routeCmd.Flags().StringVar(&routeTaskType, "task-type", "", "query, mutation, generation, analysis or interactive")
	routeCmd.Flags().StringVar(&routeComplexity, "complexity", "", "simple, moderate or complex")
	routeCmd.Flags().StringVar(&routePII, "pii", "", "Force PII handling: true or false")
	routeCmd.Flags().BoolVar(&routeJSON, "json", false, "Print the full decision as JSON")
}

func runTools(cmd *cobra.Command, args []string) error {
	ids := tools.All()
	if toolsRole != "" {
		var err error
		ids, err = tools.FilterTools(ids, tools.Role(toolsRole), tools.Mode(toolsMode), tools.FilterOptions{
			IncludeAdmin: toolsIncludeAdmin || tools.Role(toolsRole) == tools.RoleAdmin,
			ExcludeWrite: toolsExcludeWrite,
			OnlyRead:     toolsOnlyRead,
		})
		if err != nil {
			return err
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCATEGORY\tPERMISSION\tPII\tCONFIRM\tTIER")
	for _, id := range ids {
		d := id.Descriptor()
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.Name, d.Category, d.Permission, yesNo(d.HasPII), yesNo(d.RequiresConfirmation), d.Tier)
	}
	return w.Flush()
}

func runRoute(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	router, err := newRouter(cfg, newLogger(cfg.Log, os.Stderr))
	if err != nil {
		return err
	}

	tc := model.TaskContext{
		TaskType:   model.TaskType(routeTaskType),
		Complexity: model.Complexity(routeComplexity),
	}
	if len(args) == 1 {
		tc.Tool = args[0]
	}
	switch routePII {
	case "":
	case "true", "false":
		v := routePII == "true"
		tc.HasPII = &v
	default:
		return fmt.Errorf("--pii must be true or false")
	}

	d := router.SelectModel(tc)
	if routeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Tier:\t%s\n", d.Configuration.Tier)
	fmt.Fprintf(w, "Provider:\t%s\n", d.Configuration.Provider)
	fmt.Fprintf(w, "Model:\t%s\n", d.Configuration.Model)
	fmt.Fprintf(w, "Compliant:\t%s\n", yesNo(d.Configuration.Compliant))
	fmt.Fprintf(w, "PII:\t%s (%s)\n", yesNo(d.HasPII), d.PIISource)
	fmt.Fprintf(w, "Est. cost:\t$%.4f\n", d.Configuration.EstimatedCost)
	fmt.Fprintf(w, "Reason:\t%s\n", d.Reason)
	return w.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
