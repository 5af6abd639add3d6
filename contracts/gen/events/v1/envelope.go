// Package v1 holds the published event contracts of the jubilee services.
// Outbox rows in the snapshot and reward services store a marshaled Envelope;
// relays hand it to the bus unchanged and consumers route on EventType and
// PartitionKey. The field layout is a wire contract and may only grow.
package v1

import (
	"encoding/json"
	"time"
)

// Envelope wraps every event the platform emits, independent of event type.
type Envelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}
