// Package artifact persists trained model state between runs. Artifacts
// travel as versioned envelopes: msgpack-encoded, lz4-compressed, with
// enough metadata to refuse payloads written by an incompatible build.
package artifact

import (
	"bytes"
	"io"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/missatech/breach-analytics/domain/entity"
)

// CurrentSchemaVersion is bumped whenever a model's serialized layout
// changes incompatibly. Older artifacts are rejected, never migrated; the
// model retrains on the next run.
const CurrentSchemaVersion = 1

// Model names used as artifact keys.
const (
	ModelCostPredictor = "cost_predictor"
	ModelClusterer     = "incident_clusterer"
)

var validModelName = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Envelope wraps one serialized model with its provenance.
type Envelope struct {
	SchemaVersion int       `msgpack:"schema_version"`
	ModelName     string    `msgpack:"model_name"`
	RunID         string    `msgpack:"run_id"`
	TrainedAt     time.Time `msgpack:"trained_at"`
	Payload       []byte    `msgpack:"payload"`
}

// NewEnvelope stamps a payload with the current schema version and run
// provenance.
func NewEnvelope(modelName string, runID uuid.UUID, payload []byte) Envelope {
	return Envelope{
		SchemaVersion: CurrentSchemaVersion,
		ModelName:     modelName,
		RunID:         runID.String(),
		TrainedAt:     time.Now().UTC(),
		Payload:       payload,
	}
}

// Verify checks that the envelope carries the expected model at the
// current schema version.
func (e Envelope) Verify(wantName string) error {
	if e.ModelName != wantName {
		return entity.NewBusinessLogicError("artifact load",
			"envelope holds model "+e.ModelName+", expected "+wantName)
	}
	if e.SchemaVersion != CurrentSchemaVersion {
		return entity.NewModelVersionMismatchError(e.ModelName, CurrentSchemaVersion, e.SchemaVersion)
	}
	return nil
}

// Encode renders the envelope for storage.
func Encode(env Envelope) ([]byte, error) {
	raw, err := msgpack.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode artifact envelope")
	}
	return compressLZ4(raw)
}

// Decode parses a stored envelope. The caller still has to Verify it.
func Decode(data []byte) (Envelope, error) {
	raw, err := decompressLZ4(data)
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		return Envelope{}, errors.Wrap(err, "failed to decode artifact envelope")
	}
	return env, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := lz4.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return nil, errors.Wrap(err, "failed to write compressed artifact")
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to close artifact compressor")
	}
	return buf.Bytes(), nil
}

func decompressLZ4(data []byte) ([]byte, error) {
	reader := lz4.NewReader(bytes.NewReader(data))
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decompress artifact")
	}
	return raw, nil
}
