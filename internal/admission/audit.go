package admission

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// AuditEvent records one admission decision for later inspection. Each
// event's Hash commits to the previous event's hash, so the log as a
// whole can be checked for tampering by recomputing the chain.
type AuditEvent struct {
	ID         string    `json:"id"`
	Namespace  string    `json:"namespace"`
	Workload   string    `json:"workload"`
	Allowed    bool      `json:"allowed"`
	ReasonCode string    `json:"reason_code"`
	Rule       string    `json:"rule"`
	CreatedAt  time.Time `json:"created_at"`
	PrevHash   string    `json:"prev_hash"`
	Hash       string    `json:"hash"`
}

// AuditQuery filters AuditLog.List.
type AuditQuery struct {
	Namespace string
	Allowed   *bool
	Limit     int
}

// AuditLog is an in-memory, hash-chained record of admission decisions.
type AuditLog struct {
	mu     sync.Mutex
	events []AuditEvent
}

// NewAuditLog returns an empty log.
func NewAuditLog() *AuditLog {
	return &AuditLog{events: make([]AuditEvent, 0, 128)}
}

// Append records a decision d made for a namespace/workload pair.
func (l *AuditLog) Append(namespace, workload string, d Decision) AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	event := AuditEvent{
		ID:         ulid.Make().String(),
		Namespace:  namespace,
		Workload:   workload,
		Allowed:    d.Allowed,
		ReasonCode: d.ReasonCode,
		Rule:       d.Rule,
		CreatedAt:  time.Now().UTC(),
	}
	if len(l.events) > 0 {
		event.PrevHash = l.events[len(l.events)-1].Hash
	}
	event.Hash = computeAuditHash(event)
	l.events = append(l.events, event)
	return event
}

// List returns events matching q, newest first.
func (l *AuditLog) List(q AuditQuery) []AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	out := make([]AuditEvent, 0, limit)
	for i := len(l.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := l.events[i]
		if q.Namespace != "" && e.Namespace != q.Namespace {
			continue
		}
		if q.Allowed != nil && e.Allowed != *q.Allowed {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Verify walks the chain and reports whether every event's recorded
// hash matches its recomputed hash and the previous event's hash,
// detecting tampering or reordering.
func (l *AuditLog) Verify() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	prevHash := ""
	for _, e := range l.events {
		if e.PrevHash != prevHash {
			return false
		}
		want := e.Hash
		e.Hash = ""
		if computeAuditHash(e) != want {
			return false
		}
		prevHash = want
	}
	return true
}

func computeAuditHash(event AuditEvent) string {
	payload := map[string]any{
		"id":          event.ID,
		"namespace":   event.Namespace,
		"workload":    event.Workload,
		"allowed":     event.Allowed,
		"reason_code": event.ReasonCode,
		"rule":        event.Rule,
		"created_at":  event.CreatedAt.UnixNano(),
		"prev_hash":   event.PrevHash,
	}
	b, _ := json.Marshal(payload)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
