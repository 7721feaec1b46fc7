// Package model defines domain structs shared across the gateway layers.
package model

// MeasurementPoint is a single synthetic sensor reading.
// Points are never mutated after creation.
type MeasurementPoint struct {
	SensorID  string  `json:"sensor_id"`
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp"`
}

// StatsSnapshot is derived from the rolling buffer on every request.
// Mean, Min, Max and StdDev are nil exactly when Count is zero.
type StatsSnapshot struct {
	Mean   *float64 `json:"mean"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
	StdDev *float64 `json:"std_dev"`
	Count  int      `json:"count"`
}

// Empty reports whether the snapshot was computed over no points.
func (s StatsSnapshot) Empty() bool {
	return s.Count == 0
}

// CallRecord describes one completed downstream call.
type CallRecord struct {
	ID                string `json:"id"`
	TsNs              int64  `json:"ts_ns"`
	RequestID         string `json:"request_id"`
	Domain            string `json:"domain"`
	Operation         string `json:"operation"`
	HTTPMethod        string `json:"http_method"`
	TargetURL         string `json:"target_url"`
	HTTPStatus        int    `json:"http_status"`
	Outcome           string `json:"outcome"`
	DurationNs        int64  `json:"duration_ns"`
	CredentialFP      string `json:"credential_fp"`
	ErrorKind         string `json:"error_kind"`
	ErrorMessage      string `json:"error_message"`
	ResponseBodyBytes int64  `json:"response_body_bytes"`
}

// Call outcomes recorded in CallRecord.Outcome.
const (
	OutcomeOK          = "ok"
	OutcomeUpstreamErr = "upstream_status"
	OutcomeBadGateway  = "bad_gateway"
	OutcomeUnavailable = "unavailable"
	OutcomeCanceled    = "canceled"
)
