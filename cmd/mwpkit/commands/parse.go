package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/mwpkit/pkg/service"
)

func newParseCommand() *cobra.Command {
	var dotFile string

	cmd := &cobra.Command{
		Use:   "parse <model.xml>",
		Short: "Show the feature tree and constraints of a model",
		Long: `Parse a feature model document and print its feature tree and its
cross-tree constraints with their ordinals.

Ordinals are 0-based in document order. Logic mapping files refer to
constraints by ordinal.`,
		Example: `  # Print the tree
  mwpkit parse car.xml

  # Machine-readable output
  mwpkit parse car.xml --json

  # Graphviz rendering
  mwpkit parse car.xml --dot car.dot && dot -Tsvg car.dot > car.svg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd, nil)
			if err != nil {
				return err
			}
			defer rt.close()

			resp, err := rt.svc.Parse(rt.ctx, service.ParseRequest{Document: doc, DOT: dotFile != ""})
			if err != nil {
				return err
			}
			if dotFile != "" {
				if err := os.WriteFile(dotFile, []byte(resp.DOT), 0o644); err != nil {
					return fmt.Errorf("failed to write DOT file: %w", err)
				}
			}

			return render(cmd, resp, func(w io.Writer) {
				fmt.Fprintf(w, "Model %s (%d features)\n\n", resp.ModelID, len(resp.Features))
				printTree(w, resp.Tree, 0)
				if len(resp.Constraints) == 0 {
					return
				}
				fmt.Fprintln(w, "\nConstraints:")
				for _, c := range resp.Constraints {
					fmt.Fprintf(w, "  %d: %s\n", c.Ordinal, c.EnglishStatement)
					if c.Annotation != "" {
						fmt.Fprintf(w, "     logic: %s\n", c.Annotation)
					}
				}
			})
		},
	}

	cmd.Flags().StringVar(&dotFile, "dot", "", "write a Graphviz DOT rendering to this file")
	return cmd
}

func printTree(w io.Writer, n *service.TreeNode, depth int) {
	label := string(n.Kind)
	if n.Group > 1 {
		label = fmt.Sprintf("%s #%d", n.Kind, n.Group)
	}
	fmt.Fprintf(w, "%s%s (%s)\n", strings.Repeat("  ", depth), n.ID, label)
	for _, c := range n.Children {
		printTree(w, c, depth+1)
	}
}
