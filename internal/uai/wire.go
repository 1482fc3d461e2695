// internal/uai/wire.go
package uai

import (
	"encoding/json"
	"fmt"
)

// request is the outbound operational-phase message shape. Each request
// carries the identifier the response will be correlated by.
type request struct {
	ID     int64       `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// response is the inbound operational-phase message shape. Exactly one of
// Result or Error is present in a well-formed reply.
type response struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// parseResponse decodes one newline-delimited line from the controller.
func parseResponse(line []byte) (*response, error) {
	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode controller message: %w", err)
	}
	return &resp, nil
}
