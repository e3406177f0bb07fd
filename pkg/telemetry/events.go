package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a process lifecycle event.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// ProcessID is the associated process instance ID, if applicable.
	ProcessID string `json:"process_id,omitempty"`

	// TaskID is the associated task ID, if applicable.
	TaskID string `json:"task_id,omitempty"`

	// ResourceID is the associated resource ID, if applicable.
	ResourceID string `json:"resource_id,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeDeploymentCreated  = "deployment.created"
	EventTypeDeploymentRejected = "deployment.rejected"
	EventTypeDeploymentDeleted  = "deployment.deleted"
	EventTypeProcessStarted     = "process.started"
	EventTypeProcessTerminated  = "process.terminated"
	EventTypeTaskCompleted      = "task.completed"
	EventTypeFaultRaised        = "fault.raised"
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
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	// Start the event processing goroutine
	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	// Set ID and timestamp if not already set
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Send to buffer if async, otherwise process immediately
	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			// Buffer full, drop event or log warning
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	// Synchronous publishing
	ep.deliverEvent(event)
	return nil
}

// PublishDeployment publishes the outcome of a deployment upload.
func (ep *EventPublisher) PublishDeployment(deploymentID, name string, success bool, errs []string) error {
	if !success {
		return ep.Publish(Event{
			Type:       EventTypeDeploymentRejected,
			Source:     "engine",
			ResourceID: name,
			Message:    fmt.Sprintf("Deployment %s rejected", name),
			Level:      EventLevelWarning,
			Data: map[string]interface{}{
				"errors": errs,
			},
		})
	}
	return ep.Publish(Event{
		Type:       EventTypeDeploymentCreated,
		Source:     "engine",
		ResourceID: deploymentID,
		Message:    fmt.Sprintf("Deployment %s created as %s", name, deploymentID),
		Level:      EventLevelInfo,
		Data: map[string]interface{}{
			"name": name,
		},
	})
}

// PublishDeploymentDeleted publishes a deployment removal.
func (ep *EventPublisher) PublishDeploymentDeleted(deploymentID string, cascade bool) error {
	return ep.Publish(Event{
		Type:       EventTypeDeploymentDeleted,
		Source:     "engine",
		ResourceID: deploymentID,
		Message:    fmt.Sprintf("Deployment %s deleted", deploymentID),
		Level:      EventLevelInfo,
		Data: map[string]interface{}{
			"cascade": cascade,
		},
	})
}

// PublishProcessStarted publishes a process started event.
func (ep *EventPublisher) PublishProcessStarted(processID, processKey, businessKey string) error {
	return ep.Publish(Event{
		Type:      EventTypeProcessStarted,
		Source:    "engine",
		ProcessID: processID,
		Message:   fmt.Sprintf("Process %s started from %s", processID, processKey),
		Level:     EventLevelInfo,
		Data: map[string]interface{}{
			"process_key":  processKey,
			"business_key": businessKey,
		},
	})
}

// PublishProcessTerminated publishes a process terminated event.
func (ep *EventPublisher) PublishProcessTerminated(processID, reason string) error {
	return ep.Publish(Event{
		Type:      EventTypeProcessTerminated,
		Source:    "engine",
		ProcessID: processID,
		Message:   fmt.Sprintf("Process %s terminated", processID),
		Level:     EventLevelWarning,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishTaskCompleted publishes a task completed event.
func (ep *EventPublisher) PublishTaskCompleted(taskID string) error {
	return ep.Publish(Event{
		Type:    EventTypeTaskCompleted,
		Source:  "engine",
		TaskID:  taskID,
		Message: fmt.Sprintf("Task %s completed", taskID),
		Level:   EventLevelInfo,
	})
}

// PublishFault publishes a fault raised by an operation.
func (ep *EventPublisher) PublishFault(operation, kind, resourceID, message string) error {
	return ep.Publish(Event{
		Type:       EventTypeFaultRaised,
		Source:     "orchestration",
		ResourceID: resourceID,
		Message:    message,
		Level:      EventLevelError,
		Data: map[string]interface{}{
			"operation": operation,
			"kind":      kind,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// processEvents processes events from the buffer asynchronously. Batches
// are delivered when full, on every flush tick, and on shutdown.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	maxBatch := ep.config.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = 1
	}
	batch := make([]Event, 0, maxBatch)

	var tick <-chan time.Time
	if ep.config.FlushInterval > 0 {
		ticker := time.NewTicker(ep.config.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			if len(batch) >= maxBatch {
				ep.flushBatch(batch)
				batch = make([]Event, 0, maxBatch)
			}

		case <-tick:
			if len(batch) > 0 {
				ep.flushBatch(batch)
				batch = make([]Event, 0, maxBatch)
			}

		case <-ep.ctx.Done():
			// Drain whatever is still buffered
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
					continue
				default:
				}
				break
			}
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		// Apply subscriber-specific filter
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		// Call subscriber in a goroutine to avoid blocking
		go entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	// Signal shutdown
	ep.cancel()

	// Wait for processing to complete with timeout
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

// Event filters.

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

// LogEvents returns a subscriber that writes each event to logger, at warn
// level for warning and error events and at info otherwise.
func LogEvents(logger *Logger) EventSubscriber {
	return func(event Event) {
		l := logger.WithFields(map[string]interface{}{
			"event_id":   event.ID,
			"event_type": event.Type,
		})
		if event.ProcessID != "" {
			l = l.WithProcessID(event.ProcessID)
		}
		if event.TaskID != "" {
			l = l.WithTaskID(event.TaskID)
		}
		l = l.WithResourceID(event.ResourceID)
		if len(event.Data) > 0 {
			l = l.WithField("data", event.Data)
		}

		if event.Level == EventLevelInfo {
			l.Info(event.Message)
			return
		}
		l.Warn(event.Message)
	}
}
