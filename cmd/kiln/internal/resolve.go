package internal

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/goplus/kiln/internal/engine"
	"github.com/goplus/kiln/internal/graph"
	"github.com/goplus/kiln/internal/lock"
	"github.com/spf13/cobra"
)

var (
	resolveFlags planFlags
	resolveJSON  bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <recipe>...",
	Short: "Resolve the requirement graph of recipes",
	Long: `Resolve loads the root recipes, registers local exports, resolves the
requirement graph and propagates option values. Nodes are printed in build
order with their final options and requirements.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func init() {
	resolveFlags.register(resolveCmd)
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "Print the graph as a lock file")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	req, err := resolveFlags.request(args)
	if err != nil {
		return err
	}
	eng, err := newEngine()
	if err != nil {
		return err
	}
	p, err := eng.Plan(cmd.Context(), req)
	if err != nil {
		return err
	}
	f := lock.FromGraph(p.Graph)
	if resolveFlags.lockfileOut != "" {
		if err := lock.Write(resolveFlags.lockfileOut, f); err != nil {
			return fmt.Errorf("failed to write lock file: %w", err)
		}
	}
	out := cmd.OutOrStdout()
	if resolveJSON {
		data, err := f.Marshal()
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}
	printPlan(out, p)
	return nil
}

// printPlan writes the nodes of p in build order.
func printPlan(w io.Writer, p *engine.Plan) {
	if p.Registry != nil {
		if refs := p.Registry.Registered(); len(refs) > 0 {
			fmt.Fprint(w, colArrow.Sprint("-> "))
			fmt.Fprintln(w, colSuccess.Sprint("Local exports:"))
			for _, ref := range refs {
				fmt.Fprintf(w, "  - %s\n", colNote.Sprint(ref))
			}
		}
	}
	fmt.Fprint(w, colArrow.Sprint("-> "))
	fmt.Fprintln(w, colSuccess.Sprintf("Resolved %d packages:", len(p.Graph.Nodes)))
	for _, n := range p.Graph.Nodes {
		printNode(w, n)
	}
}

func printNode(w io.Writer, n *graph.Node) {
	id := n.PackageID
	if len(id) > 12 {
		id = id[:12]
	}
	fmt.Fprintf(w, "  %s %s\n", colNote.Sprint(n.Ref), id)
	if len(n.Settings) > 0 {
		fmt.Fprintf(w, "      settings: %s\n", joinMap(n.Settings))
	}
	if len(n.Options) > 0 {
		fmt.Fprintf(w, "      options:  %s\n", n.Options)
	}
	if len(n.Edges) > 0 {
		reqs := make([]string, len(n.Edges))
		for i, e := range n.Edges {
			reqs[i] = fmt.Sprintf("%s (%s)", e.To.Ref, e.Kind)
		}
		fmt.Fprintf(w, "      requires: %s\n", strings.Join(reqs, ", "))
	}
}

func joinMap(m map[string]string) string {
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, k+"="+v)
	}
	slices.Sort(parts)
	return strings.Join(parts, ",")
}
