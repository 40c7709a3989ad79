package cloudapi

import "github.com/jake-scott/kasa-cloud/internal/pkg/signing"

// The two cloud product lines share one protocol but use distinct
// hosts, app identifiers and signing key pairs.  The key pairs identify
// the official Android apps, not the user account.
const (
	kasaAccessKey = "e37525375f8845999bcc56d5e6faa76d"
	kasaSecretKey = "314bc6700b3140ca80bc655e527cb062"

	tapoAccessKey = "4d11b6b9d5ea4d19a829adbb9714b057"
	tapoSecretKey = "6ed7d97f3e73467f8a5bab90b577ba4c"
)

// V2 API paths, shared by both brands
const (
	pathAccountStatus = "/api/v2/account/getAccountStatusAndUrl"
	pathLogin         = "/api/v2/account/login"
	pathRefreshToken  = "/api/v2/account/refreshToken"
	pathMFALogin      = "/api/v2/account/checkMFACodeAndLogin"
	pathPassthrough   = "/api/v2/common/passthrough"
)

// Brand describes one cloud product line.
type Brand struct {
	Name        string // "kasa" or "tapo"
	DefaultHost string
	AppType     string
	AppName     string
	AppVer      string
	Keys        signing.KeyPair
}

// KasaBrand returns the Kasa cloud brand configuration.
func KasaBrand() Brand {
	return Brand{
		Name:        "kasa",
		DefaultHost: "https://n-wap.tplinkcloud.com",
		AppType:     "Kasa_Android_Mix",
		AppName:     "Kasa_Android_Mix",
		AppVer:      "3.4.451",
		Keys: signing.KeyPair{
			AccessKey: kasaAccessKey,
			SecretKey: kasaSecretKey,
		},
	}
}

// TapoBrand returns the Tapo cloud brand configuration.
func TapoBrand() Brand {
	return Brand{
		Name:        "tapo",
		DefaultHost: "https://n-wap.i.tplinkcloud.com",
		AppType:     "TP-Link_Tapo_Android",
		AppName:     "TP-Link_Tapo_Android",
		AppVer:      "3.4.451",
		Keys: signing.KeyPair{
			AccessKey: tapoAccessKey,
			SecretKey: tapoSecretKey,
		},
	}
}

// queryParams returns the query parameters the cloud expects on every
// request, identifying the calling client.
func (b Brand) queryParams(termID string) map[string]string {
	return map[string]string{
		"appName":  b.AppName,
		"appVer":   b.AppVer,
		"netType":  "wifi",
		"termID":   termID,
		"ospf":     "Android 14",
		"brand":    "TPLINK",
		"locale":   "en_US",
		"model":    "Pixel",
		"termName": "Pixel",
		"termMeta": "Pixel",
	}
}
