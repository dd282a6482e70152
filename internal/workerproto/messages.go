// Package workerproto defines the newline-delimited JSON message variants
// exchanged between the embedding pool and its child worker processes
// (spec.md §4.1, §6 "Worker IPC protocol"). Every message carries a `type`
// discriminator; unknown types are ignored with a warning rather than
// failing the connection (spec.md §9, "Any"-typed IPC payloads).
package workerproto

import "encoding/json"

// Type is the message discriminator.
type Type string

const (
	TypeInit           Type = "init"
	TypeInitComplete   Type = "init_complete"
	TypeEmbedBatch     Type = "embed_batch"
	TypeEmbedShared    Type = "embed_batch_shared"
	TypeProgress       Type = "progress"
	TypeTimeoutWarning Type = "timeout_warning"
	TypeEmbedComplete  Type = "embed_complete"
	TypeSharedMemory   Type = "shared_memory"
	TypeAbort          Type = "abort"
	TypeAbortAck       Type = "abort_ack"
	TypeQueryMemory    Type = "query_memory"
	TypeMemoryResponse Type = "memory_response"
	TypeError          Type = "error"
)

// Envelope is the outermost shape every NDJSON line satisfies. Readers
// decode into Envelope first to discriminate, then re-decode the raw bytes
// into the concrete payload.
type Envelope struct {
	Type Type `json:"type"`
}

// Init is sent pool -> worker as the first message on a new connection.
type Init struct {
	Type Type `json:"type"`
}

// InitComplete is sent worker -> pool once the model/runtime is ready.
type InitComplete struct {
	Type    Type   `json:"type"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// EmbedBatch dispatches a batch of texts for embedding.
type EmbedBatch struct {
	Type            Type     `json:"type"`
	BatchID         string   `json:"batch_id"`
	Texts           []string `json:"texts"`
	TimeoutWarningMs int64   `json:"timeout_warning_ms,omitempty"`
}

// Progress reports partial completion of a dispatched batch.
type Progress struct {
	Type      Type   `json:"type"`
	BatchID   string `json:"batch_id"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
}

// TimeoutWarning is emitted at 70% of the hard per-batch timeout.
type TimeoutWarning struct {
	Type    Type   `json:"type"`
	BatchID string `json:"batch_id"`
}

// BatchStats carries per-batch telemetry used to drive adaptive batch sizing.
type BatchStats struct {
	DurationMs   int64 `json:"duration_ms"`
	MemoryDeltaB int64 `json:"memory_delta_bytes"`
}

// EmbedComplete is the terminal response for a dispatched batch.
type EmbedComplete struct {
	Type       Type        `json:"type"`
	BatchID    string      `json:"batch_id"`
	Success    bool        `json:"success"`
	Embeddings [][]float32 `json:"embeddings,omitempty"`
	Error      string      `json:"error,omitempty"`
	Stats      *BatchStats `json:"stats,omitempty"`
}

// Abort requests a worker cancel its in-flight batch.
type Abort struct {
	Type    Type   `json:"type"`
	BatchID string `json:"batch_id,omitempty"`
}

// AbortAck confirms an abort was honoured.
type AbortAck struct {
	Type    Type   `json:"type"`
	BatchID string `json:"batch_id,omitempty"`
}

// ErrorMsg carries a worker-side error not tied to a specific batch outcome.
type ErrorMsg struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
}

// Marshal serializes a payload and appends the trailing newline the NDJSON
// framing requires.
func Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// DiscriminateType extracts the `type` field from a raw NDJSON line without
// committing to a concrete payload shape.
func DiscriminateType(line []byte) (Type, error) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}
