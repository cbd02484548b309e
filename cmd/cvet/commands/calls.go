package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarle/cvet/internal/config"
	"github.com/quarle/cvet/pkg/callgraph"
	"github.com/quarle/cvet/pkg/engine"
	"github.com/quarle/cvet/pkg/program"
)

// callsCmd represents the calls command
var callsCmd = &cobra.Command{
	Use:   "calls [path]",
	Short: "Print the resolved call graph of a source tree",
	Long: `Builds the program call graph and prints every call site with its
resolution: direct calls, external calls, and function-pointer calls with
their candidate target sets.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) == 1 {
			root = args[0]
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		prog, _, err := loadProgram(root, cfg, true)
		if err != nil {
			return err
		}

		result, err := engine.Analyze(cmd.Context(), prog, engine.Options{
			Workers: cfg.Workers,
			Catalog: cfg.Catalog(),
		})
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}

		indirectOnly, _ := cmd.Flags().GetBool("indirect")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		sites := result.CallGraph.AllSites()
		if jsonOutput {
			return printSitesJSON(cmd, prog, sites, indirectOnly)
		}

		for _, site := range sites {
			if indirectOnly && site.Resolution.Kind != callgraph.Single && site.Resolution.Kind != callgraph.Ambiguous {
				continue
			}
			fmt.Printf("%s:%d  %s -> %s\n", site.Caller.File, site.Line, site.Caller.Name, describeSite(prog, site))
		}
		return nil
	},
}

func describeSite(prog *program.Program, site callgraph.CallSite) string {
	switch site.Resolution.Kind {
	case callgraph.Direct:
		return site.Callee
	case callgraph.External:
		return fmt.Sprintf("%s [external]", site.Callee)
	case callgraph.Unresolved:
		return fmt.Sprintf("%s [unresolved]", site.Expr.Callee.Render())
	}
	return fmt.Sprintf("%s [%s: %s]",
		site.Expr.Callee.Render(),
		site.Resolution.Kind,
		strings.Join(candidateNames(prog, site.Resolution.Candidates), ", "))
}

func candidateNames(prog *program.Program, ids []program.SymbolID) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if fn, ok := prog.FunctionBySymbol(id); ok {
			names = append(names, fn.Name)
		}
	}
	return names
}

type jsonSite struct {
	Caller     string   `json:"caller"`
	File       string   `json:"file"`
	Line       int      `json:"line"`
	Callee     string   `json:"callee"`
	Resolution string   `json:"resolution"`
	Candidates []string `json:"candidates,omitempty"`
}

func printSitesJSON(cmd *cobra.Command, prog *program.Program, sites []callgraph.CallSite, indirectOnly bool) error {
	out := make([]jsonSite, 0, len(sites))
	for _, site := range sites {
		if indirectOnly && site.Resolution.Kind != callgraph.Single && site.Resolution.Kind != callgraph.Ambiguous {
			continue
		}
		callee := site.Callee
		if callee == "" {
			callee = site.Expr.Callee.Render()
		}
		out = append(out, jsonSite{
			Caller:     site.Caller.Name,
			File:       site.Caller.File,
			Line:       site.Line,
			Callee:     callee,
			Resolution: site.Resolution.Kind.String(),
			Candidates: candidateNames(prog, site.Resolution.Candidates),
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func init() {
	callsCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	callsCmd.Flags().Bool("indirect", false, "Show only function-pointer call sites")
	RootCmd.AddCommand(callsCmd)
}
