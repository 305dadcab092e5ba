package authcore

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Audit event types emitted by the engine. Session tokens never appear in
// events; only short fingerprints do.
const (
	AuditLoginSuccess     = "login.success"
	AuditLoginFailure     = "login.failure"
	AuditLoginVetoed      = "login.vetoed"
	AuditRehashUpgrade    = "credential.rehash"
	AuditSessionCreated   = "session.created"
	AuditSessionRejected  = "session.rejected"
	AuditSessionRevoked   = "session.revoked"
	AuditSessionRevokeAll = "session.revoke_all"
	AuditStoreError       = "store.error"
)

// AuditEvent is one entry of the authentication audit trail.
type AuditEvent struct {
	Timestamp          time.Time         `json:"timestamp"`
	EventType          string            `json:"event_type"`
	SubjectID          string            `json:"subject_id,omitempty"`
	SessionFingerprint string            `json:"session_fingerprint,omitempty"`
	Success            bool              `json:"success"`
	Error              string            `json:"error,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// AuditSink consumes events from the dispatcher, off the request path.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards everything.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink hands events to a consumer-owned channel.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line to w.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
