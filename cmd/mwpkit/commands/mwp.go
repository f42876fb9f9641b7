package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/mwpkit/pkg/config"
	"github.com/openfroyo/mwpkit/pkg/engine"
	"github.com/openfroyo/mwpkit/pkg/service"
)

func newMWPCommand() *cobra.Command {
	var (
		suggest    bool
		strict     bool
		maxNodes   int
		timeout    time.Duration
		maxResults int
	)

	cmd := &cobra.Command{
		Use:   "mwp <model.xml>",
		Short: "Calculate minimal working products from logic in the document",
		Long: `Calculate the minimal working products of a model whose constraints
carry their own <logic> elements.

With --suggest, constraints without logic are filled from the built-in
sentence patterns and the configured suggestion script.`,
		Example: `  # Use the logic written in the document
  mwpkit mwp car.xml

  # Fill gaps from suggestions, with a tighter budget
  mwpkit mwp car.xml --suggest --max-nodes 10000 --timeout 5s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd, func(s *config.Settings) {
				if cmd.Flags().Changed("max-nodes") {
					s.Enumeration.MaxNodes = maxNodes
				}
				if cmd.Flags().Changed("timeout") {
					s.Enumeration.Timeout = config.Duration(timeout)
				}
			})
			if err != nil {
				return err
			}
			defer rt.close()

			req := service.CalculateRequest{Document: doc, Suggest: suggest}
			req.MaxResults = maxResults
			if strict {
				req.Minimality = string(engine.MinimalityStrict)
			}

			resp, err := rt.svc.CalculateMWP(rt.ctx, req)
			if err != nil {
				return err
			}

			return render(cmd, resp, func(w io.Writer) {
				if len(resp.Suggested) > 0 {
					keys := make([]string, 0, len(resp.Suggested))
					for k := range resp.Suggested {
						keys = append(keys, k)
					}
					sort.Strings(keys)
					fmt.Fprintln(w, "Suggested logic:")
					for _, k := range keys {
						fmt.Fprintf(w, "  %s: %s\n", k, resp.Suggested[k])
					}
					fmt.Fprintln(w)
				}
				printProducts(w, resp.MWPConfigurations, resp.Stats)
				printPolicyViolations(w, resp.PolicyViolations)
			})
		},
	}

	cmd.Flags().BoolVar(&suggest, "suggest", false, "fill constraints without logic from suggestions")
	cmd.Flags().BoolVar(&strict, "strict", false, "keep only configurations with no valid strict subset")
	cmd.Flags().IntVar(&maxNodes, "max-nodes", 0, "search decision budget (0 is unlimited)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "wall-clock limit (0 is unlimited)")
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "stop after this many products (0 uses settings)")

	return cmd
}
