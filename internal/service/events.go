package service

import (
	"sync"
	"time"
)

// EventType defines the type of event
type EventType string

const (
	EventNodeRegistered  EventType = "node_registered"
	EventProbeSent       EventType = "probe_sent"
	EventEdgeAttached    EventType = "edge_attached"
	EventReportDiscarded EventType = "report_discarded"
	EventSweepCompleted  EventType = "sweep_completed"
	EventMeshReloaded    EventType = "mesh_reloaded"
)

// Event represents something the mapper did
type Event struct {
	Type    EventType   `json:"type"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload,omitempty"`
}

// NodePayload accompanies EventNodeRegistered
type NodePayload struct {
	Index   int    `json:"index"`
	Address string `json:"address"`
}

// ProbePayload accompanies EventProbeSent
type ProbePayload struct {
	Target     string `json:"target"`
	InstanceID uint8  `json:"instance_id"`
	DAGID      string `json:"dag_id"`
	Sweep      string `json:"sweep"`
}

// EdgePayload accompanies EventEdgeAttached
type EdgePayload struct {
	Child  string `json:"child"`
	Parent string `json:"parent"`
}

// DiscardPayload accompanies EventReportDiscarded
type DiscardPayload struct {
	Reason string `json:"reason"`
	Source string `json:"source,omitempty"`
	Parent string `json:"parent,omitempty"`
	Error  string `json:"error,omitempty"`
}

// SweepPayload accompanies EventSweepCompleted
type SweepPayload struct {
	Sweep      string `json:"sweep"`
	InstanceID uint8  `json:"instance_id"`
	DAGID      string `json:"dag_id"`
	Probes     int    `json:"probes"`
}

// EventBus allows publishing and subscribing to events
type EventBus struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan<- Event, 0),
	}
}

// Subscribe adds a subscriber to receive events
func (eb *EventBus) Subscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers = append(eb.subscribers, ch)
}

// Publish sends an event to all subscribers without blocking
func (eb *EventBus) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}
