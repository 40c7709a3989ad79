// Package signing implements the HMAC-SHA1 request signing required by
// the TP-Link cloud V2 API.
//
// Every V2 request is signed with an AccessKey/SecretKey pair that
// identifies the client application (not the user).  The canonical
// string that is signed is:
//
//	contentMD5 "\n" timestamp "\n" nonce "\n" urlPath
//
// where the timestamp is the fixed sentinel "9999999999" rather than
// wall-clock time.  The signature travels in the X-Authorization header
// along with the Content-MD5 of the body.
package signing

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Timestamp is the hardcoded signing timestamp used by both the Kasa
// and Tapo apps.  It is a protocol constant, not a clock value.
const Timestamp = "9999999999"

// KeyPair identifies the calling application to the cloud.
type KeyPair struct {
	AccessKey string
	SecretKey string
}

// Headers holds the two HTTP headers that carry a request signature.
type Headers struct {
	ContentMD5    string
	Authorization string
}

// ContentMD5 returns the base64-encoded MD5 digest of body.
func ContentMD5(body []byte) string {
	sum := md5.Sum(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Sign computes the signature headers for a request body posted to
// urlPath.  The path must not include query parameters.  A fresh random
// nonce is generated per call; everything else is deterministic.
func Sign(body []byte, urlPath string, keys KeyPair) Headers {
	return sign(body, urlPath, keys, uuid.New().String())
}

func sign(body []byte, urlPath string, keys KeyPair, nonce string) Headers {
	contentMD5 := ContentMD5(body)

	sigString := contentMD5 + "\n" + Timestamp + "\n" + nonce + "\n" + urlPath

	mac := hmac.New(sha1.New, []byte(keys.SecretKey))
	mac.Write([]byte(sigString))
	signature := hex.EncodeToString(mac.Sum(nil))

	// The field order is part of the protocol contract
	authorization := fmt.Sprintf("Timestamp=%s, Nonce=%s, AccessKey=%s, Signature=%s",
		Timestamp, nonce, keys.AccessKey, signature)

	return Headers{
		ContentMD5:    contentMD5,
		Authorization: authorization,
	}
}
