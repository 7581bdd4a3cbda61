// Package events publishes license lifecycle notifications to NATS so other
// services (billing, CRM sync) can react without polling the database.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	TypeKeyGenerated  = "license.key_generated"
	TypeActivated     = "license.activated"
	TypeRevoked       = "license.revoked"
	TypeUnbound       = "license.unbound"
	TypeExpired       = "license.expired"
	TypeDeleted       = "license.deleted"
	TypePlanChanged   = "license.plan_changed"
)

type Event struct {
	Type       string    `json:"type"`
	LicenseKey string    `json:"license_key"`
	MachineID  string    `json:"machine_id,omitempty"`
	Tier       string    `json:"tier,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher pushes events to a NATS subject with bounded retry. A nil
// Publisher is valid and drops everything, so callers need no guards when
// NATS is not configured.
type Publisher struct {
	conn       *nats.Conn
	subject    string
	maxRetries int
}

func NewPublisher(conn *nats.Conn, subject string, maxRetries int) *Publisher {
	return &Publisher{conn: conn, subject: subject, maxRetries: maxRetries}
}

func (p *Publisher) Publish(event Event) error {
	if p == nil || p.conn == nil {
		return nil
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	for i := 0; i <= p.maxRetries; i++ {
		err = p.conn.Publish(p.subject, data)
		if err == nil {
			return nil
		}
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}

	return fmt.Errorf("publish failed after %d retries: %w", p.maxRetries, err)
}
