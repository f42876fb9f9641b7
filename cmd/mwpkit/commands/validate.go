package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/openfroyo/mwpkit/pkg/config"
	"github.com/openfroyo/mwpkit/pkg/engine"
	"github.com/openfroyo/mwpkit/pkg/service"
)

// errInvalidSelection makes the command exit non-zero for invalid selections.
var errInvalidSelection = errors.New("selection is not valid")

func newValidateCommand() *cobra.Command {
	var (
		selected  []string
		logicFile string
		batchFile string
		all       bool
	)

	cmd := &cobra.Command{
		Use:   "validate <model.xml>",
		Short: "Check feature selections against a model",
		Long: `Validate a feature selection against the structure and the cross-tree
constraints of a model.

Rules are checked in a fixed order: unknown features, mandatory features,
parent presence, group cardinality, then constraints by ordinal. The first
broken rule is reported; --all lists every broken rule.

Logic comes from the document's <logic> elements, overridden per ordinal
by --logic. With --batch, every selection in the file is checked
concurrently.`,
		Example: `  # One selection
  mwpkit validate car.xml --select Car,Engine,Petrol

  # Every broken rule
  mwpkit validate car.xml --select Car,Navigation --all

  # A YAML list of selections
  mwpkit validate car.xml --logic logic.yaml --batch products.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if batchFile == "" && !cmd.Flags().Changed("select") {
				return fmt.Errorf("either --select or --batch is required")
			}

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

			if batchFile != "" {
				return runBatch(cmd, rt, doc, logic, batchFile)
			}

			resp, err := rt.svc.Validate(rt.ctx, service.ValidateRequest{
				Document:         doc,
				Logic:            logic,
				SelectedFeatures: selected,
				All:              all,
			})
			if err != nil {
				return err
			}

			err = render(cmd, resp, func(w io.Writer) {
				if resp.Valid {
					fmt.Fprintln(w, "valid")
				} else if len(resp.Violations) > 0 {
					fmt.Fprintln(w, "invalid:")
					for _, v := range resp.Violations {
						fmt.Fprintf(w, "  %s: %s\n", v.RuleID, v.Message)
					}
				} else {
					fmt.Fprintf(w, "invalid: %s: %s\n", resp.Rule, resp.Reason)
				}
				printPolicyViolations(w, resp.PolicyViolations)
			})
			if err != nil {
				return err
			}
			if !resp.Valid {
				return errInvalidSelection
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&selected, "select", "s", nil, "selected feature identifiers")
	cmd.Flags().StringVarP(&logicFile, "logic", "l", "", "logic mapping file overriding document logic")
	cmd.Flags().StringVarP(&batchFile, "batch", "b", "", "YAML list of selections to validate")
	cmd.Flags().BoolVar(&all, "all", false, "report every broken rule")
	cmd.MarkFlagsMutuallyExclusive("select", "batch")

	return cmd
}

func runBatch(cmd *cobra.Command, rt *runtime, doc []byte, logic engine.LogicMapping, path string) error {
	configs, err := config.LoadConfigurations(path)
	if err != nil {
		return err
	}

	resp, err := rt.svc.ValidateBatch(rt.ctx, service.BatchValidateRequest{
		Document:       doc,
		Logic:          logic,
		Configurations: configs,
	})
	if err != nil {
		return err
	}

	err = render(cmd, resp, func(w io.Writer) {
		for _, r := range resp.Results {
			if r.Valid {
				fmt.Fprintf(w, "valid    {%s}\n", r.Configuration)
			} else {
				fmt.Fprintf(w, "invalid  {%s}  %s: %s\n", r.Configuration, r.Rule, r.Reason)
			}
		}
		fmt.Fprintf(w, "\n%d valid, %d invalid\n", resp.Valid, resp.Invalid)
	})
	if err != nil {
		return err
	}
	if resp.Invalid > 0 {
		return fmt.Errorf("%d of %d selections: %w", resp.Invalid, len(resp.Results), errInvalidSelection)
	}
	return nil
}
