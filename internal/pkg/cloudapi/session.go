package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jake-scott/kasa-cloud/internal/pkg/logging"
	"github.com/jake-scott/kasa-cloud/internal/pkg/signing"
)

const defaultTimeout = time.Second * 15

// MFAResolver obtains a verification code when the cloud issues an MFA
// challenge mid-login.
type MFAResolver func(mfaType, username string) (string, error)

// Session drives the authentication state machine for one cloud brand
// and holds its token pair.  A Session never expires locally; token
// invalidation is signalled by cloud error codes and handled by
// Refresh.
//
// Login and Refresh mutate the token state and must not be called
// concurrently with themselves on one Session.  Read operations using
// a stale-but-valid token are safe.
type Session struct {
	brand        Brand
	host         string
	termID       string
	token        string
	refreshToken string
	mfaResolver  MFAResolver
	client       *http.Client
}

// SessionOption adjusts a Session at construction time.
type SessionOption func(*Session)

// WithHost overrides the brand's default API host.
func WithHost(host string) SessionOption {
	return func(s *Session) {
		if host != "" {
			s.host = host
		}
	}
}

// WithTermID sets a stable terminal (client instance) identifier.  The
// default is a fresh random UUID.
func WithTermID(termID string) SessionOption {
	return func(s *Session) {
		if termID != "" {
			s.termID = termID
		}
	}
}

// WithMFAResolver installs a callback used to complete an MFA challenge
// during Login.
func WithMFAResolver(r MFAResolver) SessionOption {
	return func(s *Session) {
		s.mfaResolver = r
	}
}

// WithHTTPClient substitutes the transport, dropping the pinned vendor
// CA.  Intended for tests.
func WithHTTPClient(c *http.Client) SessionOption {
	return func(s *Session) {
		s.client = c
	}
}

// NewSession creates an unauthenticated Session for brand.
func NewSession(brand Brand, opts ...SessionOption) (*Session, error) {
	s := &Session{
		brand:  brand,
		host:   brand.DefaultHost,
		termID: uuid.New().String(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		client, err := newHTTPClient(defaultTimeout)
		if err != nil {
			return nil, err
		}
		s.client = client
	}

	return s, nil
}

// Brand returns the brand this session authenticates against.
func (s *Session) Brand() Brand {
	return s.brand
}

// Host returns the current API host (the regional host after a
// successful login).
func (s *Session) Host() string {
	return s.host
}

// TermID returns the terminal identifier sent on every request.
func (s *Session) TermID() string {
	return s.termID
}

// Token returns the current auth token, or "" before login.
func (s *Session) Token() string {
	return s.token
}

// RefreshToken returns the current refresh token, or "" if the login
// did not yield one.
func (s *Session) RefreshToken() string {
	return s.refreshToken
}

// post issues one signed POST to host+urlPath.  The signature is always
// computed against the path actually used.
func (s *Session) post(ctx context.Context, host, urlPath string, body interface{}, withToken bool) (*Response, error) {
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "encoding request body")
	}

	return s.signedPost(ctx, host, urlPath, bodyJSON, withToken)
}

// signedPost is the one primitive every cloud call goes through: query
// parameters, signature headers, bounded POST, envelope decoding.
func (s *Session) signedPost(ctx context.Context, host, urlPath string, bodyJSON []byte, withToken bool) (*Response, error) {
	reqURL := host
	if urlPath != "/" {
		reqURL = host + urlPath
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}

	q := url.Values{}
	for k, v := range s.brand.queryParams(s.termID) {
		q.Set(k, v)
	}
	if withToken && s.token != "" {
		q.Set("token", s.token)
	}
	req.URL.RawQuery = q.Encode()

	sig := signing.Sign(bodyJSON, urlPath, s.brand.Keys)
	req.Header.Set("User-Agent", "Dalvik/2.1.0 (Linux; U; Android 14; Pixel Build/UP1A)")
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	req.Header.Set("Content-MD5", sig.ContentMD5)
	req.Header.Set("X-Authorization", sig.Authorization)

	logging.Logger(ctx).Debugf("POST %s%s: %s", host, urlPath, bodyJSON)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "posting to %s%s", host, urlPath)
	}
	defer resp.Body.Close()

	respBody, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &CloudError{
			Message: resp.Status + ": " + string(respBody),
		}
	}

	logging.Logger(ctx).Debugf("response: %s", respBody)

	var apiResp Response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, errors.Wrap(err, "decoding response body")
	}

	return &apiResp, nil
}

// postFlat issues a flat V2 request (account/session operations).
// These carry credentials in the body, not the token query parameter.
func (s *Session) postFlat(ctx context.Context, host, urlPath string, body interface{}) (*Response, error) {
	return s.post(ctx, host, urlPath, body, false)
}

// postWrapped issues a V1-style method/params request on the root path
// with V2 signing (device operations and device-list retrieval).
func (s *Session) postWrapped(ctx context.Context, method string, params interface{}) (*Response, error) {
	body := map[string]interface{}{
		"method": method,
	}
	if params != nil {
		body["params"] = params
	}

	return s.post(ctx, s.host, "/", body, true)
}

// discoverRegionalHost asks the default host where the account lives.
// If the cloud does not report a regional URL the default host is kept.
func (s *Session) discoverRegionalHost(ctx context.Context, username string) (string, error) {
	body := map[string]interface{}{
		"appType":       s.brand.AppType,
		"cloudUserName": username,
	}

	resp, err := s.postFlat(ctx, s.host, pathAccountStatus, body)
	if err != nil {
		return "", err
	}

	if resp.Successful() {
		if regional := resp.ResultString("appServerUrl"); regional != "" {
			return regional, nil
		}
	}

	return s.host, nil
}

type tokenResult struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

func (s *Session) adoptTokens(result json.RawMessage) error {
	var tokens tokenResult
	if err := json.Unmarshal(result, &tokens); err != nil {
		return errors.Wrap(err, "decoding token result")
	}

	s.token = tokens.Token
	s.refreshToken = tokens.RefreshToken
	return nil
}

// Login authenticates against the cloud account: regional discovery,
// then login on the regional host, then the optional MFA challenge.
// On success the session holds the new token pair.
func (s *Session) Login(ctx context.Context, username, password string) error {
	if username == "" {
		return errors.New("cannot login, username is not set")
	}
	if password == "" {
		return errors.New("cannot login, password is not set")
	}

	regional, err := s.discoverRegionalHost(ctx, username)
	if err != nil {
		return err
	}
	s.host = regional

	body := map[string]interface{}{
		"appType":            s.brand.AppType,
		"appVersion":         s.brand.AppVer,
		"cloudPassword":      password,
		"cloudUserName":      username,
		"platform":           "Android",
		"refreshTokenNeeded": true,
		"supportBindAccount": false,
		"terminalUUID":       s.termID,
		"terminalName":       "Pixel",
		"terminalMeta":       "Pixel",
	}

	resp, err := s.postFlat(ctx, s.host, pathLogin, body)
	if err != nil {
		return err
	}

	switch {
	case resp.Successful():
		return s.adoptTokens(resp.Result)

	case resp.ErrorCode == errCodeMFARequired:
		mfaType := resp.ResultString("mfaType")
		if mfaType == "" {
			mfaType = "verifyCodeLogin"
		}

		if s.mfaResolver == nil {
			return &MFARequiredError{
				Code:     resp.ErrorCode,
				MFAType:  mfaType,
				Username: username,
			}
		}

		code, err := s.mfaResolver(mfaType, username)
		if err != nil {
			return errors.Wrap(err, "resolving MFA challenge")
		}
		return s.verifyMFA(ctx, username, password, code)

	case resp.ErrorCode == errCodeWrongCredentials || resp.ErrorCode == errCodeAccountLocked:
		return &AuthError{Code: resp.ErrorCode, Message: resp.Msg}
	}

	return &CloudError{Code: resp.ErrorCode, Message: resp.Msg}
}

// verifyMFA completes the second login step with the challenge code.
func (s *Session) verifyMFA(ctx context.Context, username, password, code string) error {
	body := map[string]interface{}{
		"appType":       s.brand.AppType,
		"cloudPassword": password,
		"cloudUserName": username,
		"code":          code,
		"terminalUUID":  s.termID,
	}

	resp, err := s.postFlat(ctx, s.host, pathMFALogin, body)
	if err != nil {
		return err
	}

	if resp.Successful() {
		return s.adoptTokens(resp.Result)
	}

	return &AuthError{Code: resp.ErrorCode, Message: resp.Msg}
}

// Refresh exchanges the stored refresh token for a new token pair.
func (s *Session) Refresh(ctx context.Context) error {
	body := map[string]interface{}{
		"appType":      s.brand.AppType,
		"refreshToken": s.refreshToken,
		"terminalUUID": s.termID,
	}

	resp, err := s.postFlat(ctx, s.host, pathRefreshToken, body)
	if err != nil {
		return err
	}

	if resp.Successful() {
		return s.adoptTokens(resp.Result)
	}

	if resp.ErrorCode == errCodeRefreshExpired {
		return &RefreshExpiredError{Code: resp.ErrorCode}
	}

	return &CloudError{Code: resp.ErrorCode, Message: resp.Msg}
}

// DeviceInfo is one raw device descriptor as returned by the cloud
// device list.
type DeviceInfo struct {
	DeviceType   string `json:"deviceType"`
	Role         int    `json:"role"`
	FwVer        string `json:"fwVer"`
	AppServerURL string `json:"appServerUrl"`
	DeviceRegion string `json:"deviceRegion"`
	DeviceID     string `json:"deviceId"`
	DeviceName   string `json:"deviceName"`
	DeviceHwVer  string `json:"deviceHwVer"`
	Alias        string `json:"alias"`
	DeviceMac    string `json:"deviceMac"`
	OemID        string `json:"oemId"`
	DeviceModel  string `json:"deviceModel"`
	HwID         string `json:"hwId"`
	FwID         string `json:"fwId"`
	IsSameRegion bool   `json:"isSameRegion"`
	Status       int    `json:"status"`
}

// DeviceList fetches the raw descriptors of all devices registered to
// the account.  An expired auth token is refreshed transparently once
// when a refresh token is held, and the call retried.
func (s *Session) DeviceList(ctx context.Context) ([]DeviceInfo, error) {
	list, err := s.deviceList(ctx)

	var expired *TokenExpiredError
	if errors.As(err, &expired) && s.refreshToken != "" {
		logging.Logger(ctx).Debugf("auth token expired for %s, refreshing", s.brand.Name)
		if err := s.Refresh(ctx); err != nil {
			return nil, err
		}
		return s.deviceList(ctx)
	}

	return list, err
}

func (s *Session) deviceList(ctx context.Context) ([]DeviceInfo, error) {
	resp, err := s.postWrapped(ctx, "getDeviceList", nil)
	if err != nil {
		return nil, err
	}

	if resp.Successful() {
		var result struct {
			DeviceList []DeviceInfo `json:"deviceList"`
		}
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, errors.Wrap(err, "decoding device list")
		}
		return result.DeviceList, nil
	}

	if resp.ErrorCode == errCodeTokenExpired {
		return nil, &TokenExpiredError{Code: resp.ErrorCode}
	}

	return nil, &CloudError{Code: resp.ErrorCode, Message: resp.Msg}
}
