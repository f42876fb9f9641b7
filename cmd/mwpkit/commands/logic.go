package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/mwpkit/pkg/engine"
	"github.com/openfroyo/mwpkit/pkg/suggest"
)

func newLogicCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logic",
		Short: "Work with constraint logic",
	}
	cmd.AddCommand(newLogicSuggestCommand())
	return cmd
}

// suggestionOutput is the --json form of logic suggest.
type suggestionOutput struct {
	Suggested map[string]string `json:"suggested"`
	Missing   []int             `json:"missing"`
}

func newLogicSuggestCommand() *cobra.Command {
	var script string

	cmd := &cobra.Command{
		Use:   "suggest <model.xml>",
		Short: "Propose logic for constraints that have none",
		Long: `Propose logic for every constraint of a model that has no <logic>
element, and print it as a logic mapping file.

Suggestions come from built-in English sentence patterns such as
"A requires B" and "A excludes B", then from a Starlark script when one is
given. The script sees the globals constraints and features and assigns
a dict of ordinal to formula to the global logic. Review the output before using it: suggestions are
never applied implicitly.`,
		Example: `  # Write a starting logic file
  mwpkit logic suggest car.xml > logic.yaml

  # Add a project-specific script
  mwpkit logic suggest car.xml --script rules.star`,
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

			model, err := engine.LoadBytes(doc)
			if err != nil {
				return err
			}

			logger := rt.tel.Logger.NewComponentLogger("suggest").Zerolog()
			chain := suggest.Chain{suggest.NewPatternSuggester(logger)}
			if script == "" {
				script = rt.settings.Suggest.Script
			}
			if script != "" {
				s, err := suggest.LoadScriptSuggester(script, rt.settings.Suggest.Timeout.Std(), logger)
				if err != nil {
					return err
				}
				chain = append(chain, s)
			}

			annotated := model.Annotations()
			var wanted []int
			for _, c := range model.Constraints {
				if _, ok := annotated[c.Ordinal]; !ok {
					wanted = append(wanted, c.Ordinal)
				}
			}

			suggested, err := chain.Suggest(rt.ctx, model, wanted)
			if err != nil {
				return err
			}
			out := suggestionOutput{Suggested: suggested.Keyed(), Missing: []int{}}
			for _, ordinal := range wanted {
				if _, ok := suggested[ordinal]; !ok {
					out.Missing = append(out.Missing, ordinal)
				}
			}

			if jsonOutput {
				return render(cmd, out, nil)
			}
			return writeLogicYAML(cmd.OutOrStdout(), model, suggested, out.Missing)
		},
	}

	cmd.Flags().StringVar(&script, "script", "", "Starlark suggestion script")
	return cmd
}

// writeLogicYAML prints a logic mapping file with each constraint's
// statement as a comment. Constraints without a suggestion are listed at
// the end as comments.
func writeLogicYAML(w io.Writer, model *engine.FeatureModel, logic engine.LogicMapping, missing []int) error {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, ordinal := range logic.Ordinals() {
		c, _ := model.Constraint(ordinal)
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: "constraint-" + strconv.Itoa(ordinal), HeadComment: c.EnglishStatement},
			&yaml.Node{Kind: yaml.ScalarNode, Value: logic[ordinal]},
		)
	}
	if len(missing) > 0 {
		var foot string
		for _, ordinal := range missing {
			c, _ := model.Constraint(ordinal)
			foot += fmt.Sprintf("constraint-%d: no suggestion for %q\n", ordinal, c.EnglishStatement)
		}
		doc.FootComment = foot
	}
	if len(doc.Content) == 0 && len(missing) == 0 {
		_, err := fmt.Fprintln(w, "# every constraint already has logic")
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
