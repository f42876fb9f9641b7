package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents an in-process telemetry event.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// RequestID is the associated request, if any.
	RequestID string `json:"request_id,omitempty"`

	// ModelID identifies the loaded feature model, if any.
	ModelID string `json:"model_id,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event types published by the service layer.
const (
	EventTypeModelLoaded          = "model.loaded"
	EventTypeLogicTranslated      = "logic.translated"
	EventTypeEnumerationCompleted = "enumeration.completed"
	EventTypeEnumerationAborted   = "enumeration.aborted"
	EventTypeValidationFailed     = "validation.failed"
	EventTypePolicyViolation      = "policy.violation"
	EventTypeError                = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}
	if !cfg.Enabled {
		return ep, nil
	}

	if cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishModelLoaded publishes a model loaded event.
func (ep *EventPublisher) PublishModelLoaded(requestID, modelID string, features, constraints int) error {
	return ep.Publish(Event{
		Type:      EventTypeModelLoaded,
		Source:    "loader",
		RequestID: requestID,
		ModelID:   modelID,
		Message:   fmt.Sprintf("Model %s loaded with %d features and %d constraints", modelID, features, constraints),
		Level:     EventLevelInfo,
		Data: map[string]interface{}{
			"features":    features,
			"constraints": constraints,
		},
	})
}

// PublishLogicTranslated publishes an event after formulas were attached to a model.
func (ep *EventPublisher) PublishLogicTranslated(requestID, modelID string, constraints int) error {
	return ep.Publish(Event{
		Type:      EventTypeLogicTranslated,
		Source:    "translator",
		RequestID: requestID,
		ModelID:   modelID,
		Message:   fmt.Sprintf("Translated %d constraints for model %s", constraints, modelID),
		Level:     EventLevelInfo,
		Data: map[string]interface{}{
			"constraints": constraints,
		},
	})
}

// PublishEnumerationCompleted publishes an enumeration completed event.
func (ep *EventPublisher) PublishEnumerationCompleted(requestID, modelID string, count, nodes int, duration time.Duration) error {
	return ep.Publish(Event{
		Type:      EventTypeEnumerationCompleted,
		Source:    "enumerator",
		RequestID: requestID,
		ModelID:   modelID,
		Message:   fmt.Sprintf("Enumeration found %d configurations after %d decisions", count, nodes),
		Level:     EventLevelInfo,
		Data: map[string]interface{}{
			"count":    count,
			"nodes":    nodes,
			"duration": duration.Seconds(),
		},
	})
}

// PublishEnumerationAborted publishes an event for an enumeration that hit its bounds.
func (ep *EventPublisher) PublishEnumerationAborted(requestID, modelID, reason string) error {
	return ep.Publish(Event{
		Type:      EventTypeEnumerationAborted,
		Source:    "enumerator",
		RequestID: requestID,
		ModelID:   modelID,
		Message:   fmt.Sprintf("Enumeration aborted: %s", reason),
		Level:     EventLevelWarning,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishValidationFailed publishes a validation failure event.
func (ep *EventPublisher) PublishValidationFailed(requestID, modelID, ruleID, message string) error {
	return ep.Publish(Event{
		Type:      EventTypeValidationFailed,
		Source:    "validator",
		RequestID: requestID,
		ModelID:   modelID,
		Message:   message,
		Level:     EventLevelWarning,
		Data: map[string]interface{}{
			"rule": ruleID,
		},
	})
}

// PublishPolicyViolation publishes a policy violation event.
func (ep *EventPublisher) PublishPolicyViolation(requestID, policyName, configuration, reason string) error {
	return ep.Publish(Event{
		Type:      EventTypePolicyViolation,
		Source:    "policy_engine",
		RequestID: requestID,
		Message:   fmt.Sprintf("Policy %s violated by [%s]: %s", policyName, configuration, reason),
		Level:     EventLevelError,
		Data: map[string]interface{}{
			"policy":        policyName,
			"configuration": configuration,
			"reason":        reason,
		},
	})
}

// PublishError publishes an operation failure.
func (ep *EventPublisher) PublishError(requestID, operation string, err error) error {
	return ep.Publish(Event{
		Type:      EventTypeError,
		Source:    operation,
		RequestID: requestID,
		Message:   err.Error(),
		Level:     EventLevelError,
	})
}

// Subscribe adds a new event subscriber. A nil filter accepts every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// processEvents delivers buffered events in async mode.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)
		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

// deliverEvent hands an event to every matching subscriber in registration order.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown drains pending events and stops the publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}
