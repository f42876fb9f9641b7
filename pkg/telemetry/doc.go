// Package telemetry provides observability instrumentation for mwpkit.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry), metrics
// (Prometheus), and an in-process event publisher.
//
// # Usage
//
// Initialize telemetry once at startup and carry it in the context:
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//	ctx = tel.WithContext(ctx)
//
// # Operations
//
// Service operations are wrapped with StartOperation, which opens a span,
// derives a logger carrying the operation name and trace IDs, and on End
// records the operation counter and duration histogram:
//
//	op := telemetry.StartOperation(ctx, "service.validate")
//	result, err := doValidate(op.Ctx)
//	op.End(err)
//
// Errors implementing ClassifiedError are additionally counted by class and code.
//
// # Metrics
//
//   - operations_total{operation,status}, operation_duration_seconds{operation}
//   - enumeration_nodes_explored_total, enumeration_configurations_total
//   - enumeration_aborted_total{reason}
//   - validations_total{valid}, validation_failures_total{rule}
//   - policy_violations_total{policy,severity}
//   - errors_by_class_total{class}, errors_by_code_total{code}
//
// # Events
//
// Events are delivered synchronously unless EventsConfig.EnableAsync is set.
// Subscribers may filter with FilterByType or FilterByLevel.
package telemetry
