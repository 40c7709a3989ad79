package cloudapi

import "fmt"

// V2 API error codes of interest.  Anything else non-zero surfaces as a
// generic CloudError.
const (
	errCodeParamMissing     = -20104
	errCodeWrongCredentials = -20601
	errCodeAccountLocked    = -20675
	errCodeMFARequired      = -20677
	errCodeTokenExpired     = -20651
	errCodeRefreshExpired   = -20655
	errCodeDeviceOffline    = -20571
)

// CloudError is the catch-all for non-zero cloud error codes and
// non-200 transport responses.
type CloudError struct {
	Code    int
	Message string
}

func (e *CloudError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("cloud error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("cloud error: %s", e.Message)
}

// AuthError indicates wrong credentials or a locked account.
type AuthError struct {
	Code    int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed (%d): %s", e.Code, e.Message)
}

// MFARequiredError is returned when the cloud demands a verification
// code and no MFAResolver was supplied.  Retry the login with a
// resolver to recover.
type MFARequiredError struct {
	Code     int
	MFAType  string
	Username string
}

func (e *MFARequiredError) Error() string {
	return fmt.Sprintf("MFA verification (%s) required for %s", e.MFAType, e.Username)
}

// TokenExpiredError indicates the auth token was rejected.  Session
// recovers from this automatically when a refresh token is held.
type TokenExpiredError struct {
	Code int
}

func (e *TokenExpiredError) Error() string {
	return fmt.Sprintf("auth token expired (%d)", e.Code)
}

// RefreshExpiredError indicates the refresh token itself was rejected.
// Not auto-recoverable; the caller must log in again.
type RefreshExpiredError struct {
	Code int
}

func (e *RefreshExpiredError) Error() string {
	return fmt.Sprintf("refresh token expired (%d), re-login required", e.Code)
}

// DeviceOfflineError indicates the cloud reported the target device as
// unreachable.
type DeviceOfflineError struct {
	Code    int
	Message string
}

func (e *DeviceOfflineError) Error() string {
	return fmt.Sprintf("device offline (%d): %s", e.Code, e.Message)
}
