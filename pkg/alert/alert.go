// Package alert defines the v1 alert envelope for operator-facing signals
// and a Dispatcher capability interface an alert-raising subsystem takes
// as a dependency. Backfill is the subsystem that dispatches alerts
// through it (its stall and resume-after-crash signals). Grounded on
// pkg/firewall/firewall.go's jsonschema/v5 compiler usage, generalized
// from a single tool-params schema to one shared envelope schema.
package alert

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Severity levels an alert can carry.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Canonical kinds named in the alert taxonomy. Subsystems may emit other
// kind strings (e.g. backfill's "replay_ingestion_lag" family); the
// schema does not restrict Kind to this list, only requires it be
// non-empty, so a subsystem whose signal fits none of these four can
// still carry a kind of its own.
const (
	KindReplayAnomalyRepeat  = "replay_anomaly_repeat"
	KindReplayHashMismatch   = "replay_hash_mismatch"
	KindReplayIngestionLag   = "replay_ingestion_lag"
	KindTransitionValidation = "transition_validation"
)

// Alert is the schema v1 envelope every dispatched alert carries.
type Alert struct {
	SchemaVersion int                    `json:"schemaVersion"`
	Code          string                 `json:"code"`
	Severity      string                 `json:"severity"`
	Kind          string                 `json:"kind"`
	TaskID        string                 `json:"taskId,omitempty"`
	DisputeID     string                 `json:"disputeId,omitempty"`
	AnomaliesHash string                 `json:"anomaliesHash,omitempty"`
	TimestampMs   int64                  `json:"timestampMs"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Dispatcher is the capability interface every alert-raising subsystem
// depends on instead of a concrete sink.
type Dispatcher interface {
	Dispatch(a Alert) error
}

// NoopDispatcher discards every alert; the default when a caller does not
// wire a real sink.
type NoopDispatcher struct{}

func (NoopDispatcher) Dispatch(Alert) error { return nil }

// CollectingDispatcher accumulates alerts in memory, useful for tests.
type CollectingDispatcher struct {
	Alerts []Alert
}

func (d *CollectingDispatcher) Dispatch(a Alert) error {
	d.Alerts = append(d.Alerts, a)
	return nil
}

const schemaDoc = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["schemaVersion", "code", "severity", "kind", "timestampMs"],
	"properties": {
		"schemaVersion": {"type": "integer", "const": 1},
		"code": {"type": "string", "minLength": 1},
		"severity": {"enum": ["info", "warning", "error"]},
		"kind": {"type": "string", "minLength": 1},
		"taskId": {"type": "string"},
		"disputeId": {"type": "string"},
		"anomaliesHash": {"type": "string"},
		"timestampMs": {"type": "integer"},
		"metadata": {"type": "object"}
	}
}`

var compiledSchema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://agenc.local/schemas/alert-v1.json"
	if err := c.AddResource(url, strings.NewReader(schemaDoc)); err != nil {
		panic(fmt.Errorf("alert: compile schema: %w", err))
	}
	compiledSchema = c.MustCompile(url)
}

// Validate checks a before it is accepted from an external boundary
// (e.g. deserialized from a wire payload rather than constructed
// in-process).
func Validate(a Alert) error {
	bytes, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("alert: marshal: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(bytes, &v); err != nil {
		return fmt.Errorf("alert: unmarshal: %w", err)
	}
	if err := compiledSchema.Validate(v); err != nil {
		return fmt.Errorf("alert: schema validation failed: %w", err)
	}
	return nil
}
