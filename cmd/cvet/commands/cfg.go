package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarle/cvet/pkg/cfg"
	"github.com/quarle/cvet/pkg/frontend"
	"github.com/quarle/cvet/pkg/program"
)

// cfgCmd represents the cfg command
var cfgCmd = &cobra.Command{
	Use:   "cfg <file> <function>",
	Short: "Print the control flow graph of a function",
	Long: `Builds and prints the Control Flow Graph (CFG) for a specific function
in a C file. Outputs blocks, their operations, and typed edges.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		filePath := args[0]
		functionName := args[1]

		info, err := os.Stat(filePath)
		if err != nil {
			return fmt.Errorf("stat file: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("path is a directory, expected a file: %s", filePath)
		}
		if !isCFile(filePath) {
			return fmt.Errorf("unsupported file type: %s (only .c and .h files supported)", filePath)
		}

		unit, err := frontend.ParseFile(filePath)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", filePath, err)
		}

		fn := findFunction(unit, functionName)
		if fn == nil {
			if suggestions := similarFunctions(unit, functionName); len(suggestions) > 0 {
				return fmt.Errorf("function %q not found in %s\nDid you mean: %s?", functionName, filePath, suggestions[0])
			}
			return fmt.Errorf("function %q not found in %s", functionName, filePath)
		}

		g, err := cfg.Build(fn)
		if err != nil {
			return fmt.Errorf("building CFG: %w", err)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, err := json.MarshalIndent(g.Snapshot(), "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
		} else {
			printGraph(g)
		}

		return nil
	},
}

// isCFile checks if the file has a C source extension.
func isCFile(filePath string) bool {
	for _, ext := range frontend.FileExtensions() {
		if strings.HasSuffix(filePath, ext) {
			return true
		}
	}
	return false
}

func findFunction(unit *frontend.File, name string) *program.Function {
	for _, fn := range unit.Functions {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

// similarFunctions finds functions with similar names (simple prefix/contains match).
func similarFunctions(unit *frontend.File, name string) []string {
	var out []string
	lower := strings.ToLower(name)
	for _, fn := range unit.Functions {
		if strings.Contains(strings.ToLower(fn.Name), lower) || strings.Contains(lower, strings.ToLower(fn.Name)) {
			out = append(out, fn.Name)
		}
	}
	return out
}

// printGraph prints the CFG in human-readable format.
func printGraph(g *cfg.Graph) {
	snap := g.Snapshot()
	fmt.Printf("=== CFG for function: %s ===\n", snap.Function)
	fmt.Printf("Entry Block: %d\n", snap.Entry)
	fmt.Printf("Terminal Blocks: %v\n", snap.Terminals)

	fmt.Printf("\nBlocks (%d):\n", len(snap.Blocks))
	for _, b := range snap.Blocks {
		fmt.Printf("  B%d (line %d)\n", b.ID, b.Line)
		for _, op := range b.Ops {
			fmt.Printf("    %s\n", op)
		}
		if b.Guard != "" {
			fmt.Printf("    cond: %s\n", b.Guard)
		}
	}

	fmt.Printf("\nEdges (%d):\n", len(snap.Edges))
	for _, e := range snap.Edges {
		if e.Label != "" {
			fmt.Printf("  B%d --%s(%s)--> B%d\n", e.From, e.Type, e.Label, e.To)
		} else {
			fmt.Printf("  B%d --%s--> B%d\n", e.From, e.Type, e.To)
		}
	}
}

func init() {
	cfgCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	RootCmd.AddCommand(cfgCmd)
}
