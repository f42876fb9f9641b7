package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/openfroyo/mwpkit/pkg/engine"
	"github.com/openfroyo/mwpkit/pkg/service"
)

func newTranslateCommand() *cobra.Command {
	var (
		logicFile  string
		strict     bool
		maxResults int
	)

	cmd := &cobra.Command{
		Use:   "translate <model.xml>",
		Short: "Bind logic to every constraint and enumerate minimal working products",
		Long: `Bind a propositional-logic formula to every cross-tree constraint and
enumerate the minimal working products of the model.

The logic file maps constraint ordinals to formulas. Keys may be written
as "0", "constraint-0" or "logic-0". Every constraint needs logic; logic
written inside the document is ignored by this command.`,
		Example: `  # logic.yaml:
  #   0: Navigation -> Radio
  #   1: not (Petrol and Electric)
  mwpkit translate car.xml --logic logic.yaml

  # Strict minimality
  mwpkit translate car.xml --logic logic.yaml --strict`,
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

			logic, err := rt.logicFrom(logicFile)
			if err != nil {
				return err
			}

			req := service.TranslateRequest{Document: doc, Logic: logic}
			req.MaxResults = maxResults
			if strict {
				req.Minimality = string(engine.MinimalityStrict)
			}

			resp, err := rt.svc.TranslateAndEnumerate(rt.ctx, req)
			if err != nil {
				return err
			}

			return render(cmd, resp, func(w io.Writer) {
				fmt.Fprintln(w, "Logic:")
				for i, statement := range resp.PropositionalLogic {
					fmt.Fprintf(w, "  %d: %s\n     %s\n", i, statement, resp.LogicMapping[fmt.Sprintf("constraint-%d", i)])
				}
				fmt.Fprintln(w, "\nStructure:")
				for _, rule := range resp.StructuralLogic {
					fmt.Fprintf(w, "  %s\n", rule)
				}
				fmt.Fprintln(w)
				printProducts(w, resp.MWPConfigurations, resp.Stats)
				printPolicyViolations(w, resp.PolicyViolations)
			})
		},
	}

	cmd.Flags().StringVarP(&logicFile, "logic", "l", "", "logic mapping file (.yaml, .json or .cue)")
	cmd.Flags().BoolVar(&strict, "strict", false, "keep only configurations with no valid strict subset")
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "stop after this many products (0 uses settings)")
	_ = cmd.MarkFlagRequired("logic")

	return cmd
}

func printProducts(w io.Writer, labels []string, stats engine.EnumerationStats) {
	if len(labels) == 0 {
		fmt.Fprintln(w, "No minimal working products: the model admits no valid configuration.")
	} else {
		fmt.Fprintf(w, "Minimal working products (%d):\n", len(labels))
		for _, l := range labels {
			fmt.Fprintf(w, "  {%s}\n", l)
		}
	}
	suffix := ""
	if stats.Truncated {
		suffix = ", truncated"
	}
	fmt.Fprintf(w, "\n%d decisions, %d rejected, %s%s\n", stats.Nodes, stats.Rejected, stats.Duration, suffix)
}
