package cloudapi

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/jake-scott/kasa-cloud/internal/pkg/logging"
)

// DeviceClient relays passthrough commands to one device via its
// regional relay host.  It reads the owning Session's current token at
// call time, so a transparent token refresh is picked up without
// rebuilding clients.
type DeviceClient struct {
	host    string
	session *Session
}

// DeviceClientFor returns a client bound to a device relay host and
// this session's credentials.
func (s *Session) DeviceClientFor(host string) *DeviceClient {
	if host == "" {
		host = s.host
	}

	return &DeviceClient{
		host:    host,
		session: s,
	}
}

// Brand returns the cloud brand of the owning session.
func (c *DeviceClient) Brand() Brand {
	return c.session.brand
}

// Host returns the relay host this client posts to.
func (c *DeviceClient) Host() string {
	return c.host
}

// Passthrough forwards an opaque inner command to the device and
// returns its decoded response.  The inner responseData arrives as a
// JSON-encoded string from most firmware, but some devices return an
// already-decoded object; both normalize to the same raw message.
//
// A cloud-reported failure (non-zero error code) yields (nil, nil):
// callers treat missing data as "device unreachable or command
// unsupported".  Transport failures still return errors.
func (c *DeviceClient) Passthrough(ctx context.Context, deviceID string, requestData interface{}) (json.RawMessage, error) {
	innerJSON, err := json.Marshal(requestData)
	if err != nil {
		return nil, errors.Wrap(err, "encoding passthrough request")
	}

	var body interface{}
	urlPath := "/"

	if c.session.brand.Name == "tapo" {
		// Tapo uses a V2 flat passthrough endpoint
		urlPath = pathPassthrough
		body = map[string]interface{}{
			"deviceId":    deviceID,
			"requestData": string(innerJSON),
		}
	} else {
		// Kasa uses the V1 method/params wrapper on the root path
		body = map[string]interface{}{
			"method": "passthrough",
			"params": map[string]interface{}{
				"deviceId":    deviceID,
				"requestData": string(innerJSON),
			},
		}
	}

	resp, err := c.post(ctx, urlPath, body)
	if err != nil {
		return nil, err
	}

	if !resp.Successful() {
		logging.Logger(ctx).Debugf("passthrough to %s failed: %d %s", deviceID, resp.ErrorCode, resp.Msg)
		return nil, nil
	}

	var result struct {
		ResponseData json.RawMessage `json:"responseData"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, errors.Wrap(err, "decoding passthrough result")
	}

	return normalizeResponseData(result.ResponseData)
}

// normalizeResponseData decodes the string form of responseData and
// passes the object form through unchanged.
func normalizeResponseData(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	if raw[0] != '"' {
		return raw, nil
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, errors.Wrap(err, "decoding responseData string")
	}

	return json.RawMessage(encoded), nil
}

func (c *DeviceClient) post(ctx context.Context, urlPath string, body interface{}) (*Response, error) {
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "encoding request body")
	}

	return c.session.signedPost(ctx, c.host, urlPath, bodyJSON, true)
}
