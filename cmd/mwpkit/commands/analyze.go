package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/mwpkit/pkg/service"
)

func newAnalyzeCommand() *cobra.Command {
	var (
		logicFile string
		suggest   bool
		selected  []string
		excluded  []string
	)

	cmd := &cobra.Command{
		Use:   "analyze <model.xml>",
		Short: "Find void models, core features and dead features",
		Long: `Analyze a model with a SAT solver.

The report says whether the model admits any valid configuration, which
features every valid configuration contains (core) and which none does
(dead). With --select or --exclude it also says whether that partial
selection can be completed, and names the conflicting rules when not.`,
		Example: `  # Model report
  mwpkit analyze car.xml --logic logic.yaml

  # Can Navigation be sold without Radio?
  mwpkit analyze car.xml --select Navigation --exclude Radio`,
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

			resp, err := rt.svc.Analyze(rt.ctx, service.AnalyzeRequest{
				Document: doc,
				Logic:    logic,
				Suggest:  suggest,
				Selected: selected,
				Excluded: excluded,
			})
			if err != nil {
				return err
			}

			return render(cmd, resp, func(w io.Writer) {
				r := resp.Report
				if r.Void {
					fmt.Fprintln(w, "Model is void: no configuration satisfies every rule.")
					fmt.Fprintf(w, "Conflicting rules: %s\n", strings.Join(r.Conflicts, ", "))
					return
				}
				fmt.Fprintf(w, "Core features: %s\n", joinOrNone(r.CoreFeatures))
				fmt.Fprintf(w, "Dead features: %s\n", joinOrNone(r.DeadFeatures))

				e := resp.Explanation
				if e == nil {
					return
				}
				fmt.Fprintln(w)
				if e.Satisfiable {
					fmt.Fprintf(w, "Selection can be completed, for example as %s\n", e.Completion)
					return
				}
				fmt.Fprintln(w, "Selection cannot be completed.")
				fmt.Fprintf(w, "  conflicting rules: %s\n", joinOrNone(e.Conflicts))
				fmt.Fprintf(w, "  involved features: %s\n", joinOrNone(e.Blocking))
			})
		},
	}

	cmd.Flags().StringVarP(&logicFile, "logic", "l", "", "logic mapping file overriding document logic")
	cmd.Flags().BoolVar(&suggest, "suggest", false, "fill constraints without logic from suggestions")
	cmd.Flags().StringSliceVar(&selected, "select", nil, "features that must be selected")
	cmd.Flags().StringSliceVar(&excluded, "exclude", nil, "features that must not be selected")

	return cmd
}

func joinOrNone(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ", ")
}
