package telemetry_test

import (
	"context"
	"fmt"

	"github.com/openfroyo/mwpkit/pkg/telemetry"
)

// Example_instrumentedOperation shows how service operations are wrapped.
func Example_instrumentedOperation() {
	tel, err := telemetry.NewTelemetry(telemetry.TestConfig())
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	op := telemetry.StartOperation(ctx, "service.calculate_mwp")
	op.Logger.Info("enumerating")
	op.End(nil)

	fmt.Println("done")
	// Output: done
}

// Example_eventSubscription shows a filtered subscriber.
func Example_eventSubscription() {
	tel, _ := telemetry.NewTelemetry(telemetry.TestConfig())
	defer tel.Shutdown(context.Background())

	tel.Events.Subscribe(func(e telemetry.Event) {
		fmt.Println(e.Type, e.Data["rule"])
	}, telemetry.FilterByType(telemetry.EventTypeValidationFailed))

	_ = tel.Events.PublishModelLoaded("req-1", "car", 5, 1)
	_ = tel.Events.PublishValidationFailed("req-1", "car", "constraint:0", "constraint 0 violated")
	// Output: validation.failed constraint:0
}
