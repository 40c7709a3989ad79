package cloudapi

import "encoding/json"

// Response is the envelope every cloud endpoint replies with.
type Response struct {
	ErrorCode int             `json:"error_code"`
	Result    json.RawMessage `json:"result,omitempty"`
	Msg       string          `json:"msg,omitempty"`
}

// Successful reports whether the cloud accepted the request.
func (r *Response) Successful() bool {
	return r.ErrorCode == 0
}

func (r *Response) resultMap() map[string]json.RawMessage {
	if r.Result == nil {
		return nil
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(r.Result, &m); err != nil {
		return nil
	}
	return m
}

// ResultString returns the named string field of the result payload,
// or "" if absent or not a string.
func (r *Response) ResultString(field string) string {
	m := r.resultMap()
	if m == nil {
		return ""
	}

	raw, ok := m[field]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
