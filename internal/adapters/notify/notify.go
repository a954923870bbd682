// Package notify publishes persisted stage snapshots on NATS so polling
// consumers can follow a match without querying the store.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/okian/gauntlet/internal/domain/model"
)

// SubjectPrefix is the root of every match subject.
const SubjectPrefix = "gauntlet.match"

// Subject returns the snapshot subject of a match.
func Subject(matchID string) string {
	return fmt.Sprintf("%s.%s.snapshot", SubjectPrefix, matchID)
}

// Publisher sends snapshots over a NATS connection. A publisher without a
// connection drops every message.
type Publisher struct {
	mu   sync.RWMutex
	conn *nats.Conn
}

// NewPublisher wraps conn, which may be nil.
func NewPublisher(conn *nats.Conn) *Publisher {
	return &Publisher{conn: conn}
}

// Connect dials url with the engine's connection name.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name("gauntlet"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return conn, nil
}

// SetConn swaps the connection.
func (p *Publisher) SetConn(conn *nats.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn = conn
}

// PublishSnapshot encodes snap as JSON and publishes it.
func (p *Publisher) PublishSnapshot(ctx context.Context, snap model.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()
	if conn == nil {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := conn.Publish(Subject(snap.MatchID), data); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

// Close drains the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Drain()
	p.conn = nil
	return err
}
