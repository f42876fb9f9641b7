package engine_test

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openfroyo/mwpkit/pkg/engine"
)

const exampleModel = `<featureModel>
  <feature name="Root">
    <feature name="A"/>
    <feature name="B"/>
  </feature>
  <constraints>
    <constraint><englishStatement>A requires B</englishStatement></constraint>
  </constraints>
</featureModel>`

// Example_workflow shows the load, translate, enumerate and validate steps.
func Example_workflow() {
	model, err := engine.Load(strings.NewReader(exampleModel))
	if err != nil {
		fmt.Println(err)
		return
	}

	if err := engine.Translate(model, engine.LogicMapping{0: "A -> B"}); err != nil {
		fmt.Println(err)
		return
	}

	e, err := engine.Enumerate(context.Background(), model, engine.DefaultEnumerationOptions())
	if err != nil {
		fmt.Println(err)
		return
	}
	for cfg, err := range e.All() {
		if err != nil {
			fmt.Println(err)
			return
		}
		fmt.Println(cfg)
	}

	result, _ := engine.Validate(model, engine.NewConfiguration("Root", "A"))
	fmt.Println(result.Valid, result.Violation.RuleID)

	// Output:
	// {Root}
	// {B, Root}
	// {A, B, Root}
	// false constraint:0
}

func ExampleTranslate_missingLogic() {
	model, _ := engine.Load(strings.NewReader(exampleModel))

	err := engine.Translate(model, engine.LogicMapping{})
	fmt.Println(errors.Is(err, engine.ErrMissingLogic), engine.KindOf(err))

	// Output:
	// true MissingLogicError
}

func ExampleParseFormula() {
	f, err := engine.ParseFormula("not A and B implies C or D")
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(f)
	fmt.Println(f.Variables())

	// Output:
	// !A & B -> C | D
	// [A B C D]
}
