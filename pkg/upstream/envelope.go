package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope is the wrapper every Gorzdrav endpoint returns.
type Envelope struct {
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result"`
	Message   string          `json:"message"`
	ErrorCode *int            `json:"errorCode"`
}

// rawEnvelope keeps success as a pointer so a missing field is detectable.
type rawEnvelope struct {
	Success   *bool           `json:"success"`
	Result    json.RawMessage `json:"result"`
	Message   *string         `json:"message"`
	ErrorCode *int            `json:"errorCode"`
}

var errMissingSuccess = errors.New("envelope has no success field")

// DecodeEnvelope parses body into an Envelope. Structural problems (invalid
// JSON, wrong field types, missing success flag) are returned as errors.
func DecodeEnvelope(body []byte) (*Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if raw.Success == nil {
		return nil, errMissingSuccess
	}

	env := &Envelope{
		Success:   *raw.Success,
		Result:    raw.Result,
		ErrorCode: raw.ErrorCode,
	}
	if raw.Message != nil {
		env.Message = *raw.Message
	}
	return env, nil
}
