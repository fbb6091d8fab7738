// Package events publishes domain events of the warehouse core to interested collaborators.
package events

import (
	"context"
	"sync"
	"time"
)

// Subjects of the published events.
const (
	SubjectLowStock       = "inventory.low_stock"
	SubjectTaskFinished   = "task.finished"
	SubjectMaintenanceDue = "fleet.maintenance_due"
)

// LowStock is published when a product drops below its threshold.
type LowStock struct {
	ProductID string    `json:"product_id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	Threshold int       `json:"threshold"`
	At        time.Time `json:"at"`
}

// TaskFinished is published when the last ongoing item of a task is completed.
type TaskFinished struct {
	TaskID     string    `json:"task_id"`
	ForkliftID string    `json:"forklift_id,omitempty"`
	At         time.Time `json:"at"`
}

// MaintenanceDue is published by the maintenance sweep for every forklift in the warning window.
type MaintenanceDue struct {
	ForkliftID      string    `json:"forklift_id"`
	Name            string    `json:"name"`
	NextMaintenance time.Time `json:"next_maintenance"`
	Overdue         bool      `json:"overdue"`
}

// Publisher sends an event payload on a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

type noop int

// Noop publisher drops every event.
const Noop = noop(0)

func (noop) Publish(context.Context, string, any) error { return nil }

// Message is an event captured by Memory.
type Message struct {
	Subject string
	Payload any
}

// Memory keeps the published events in process. Used by tests and single node setups
// without a broker.
type Memory struct {
	mu       sync.Mutex
	messages []Message
}

// Publish stores the event.
func (m *Memory) Publish(_ context.Context, subject string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, Message{Subject: subject, Payload: payload})
	return nil
}

// Messages returns the events published on subject, all of them when subject is empty.
func (m *Memory) Messages(subject string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Message
	for _, msg := range m.messages {
		if subject == "" || msg.Subject == subject {
			out = append(out, msg)
		}
	}
	return out
}
