package cloudapi

import (
	"crypto/tls"
	"crypto/x509"
	_ "embed"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// The V2 API servers (n-*.tplinkcloud.com) present certificates issued
// by TP-Link's private CA, which is not in the system trust store.  The
// bundled chain is: tp-link-CA (root) -> TP-LINK CA P1 (intermediate)
// -> *.tplinkcloud.com (leaf).
//
//go:embed certs/tplink-ca-chain.pem
var caChainPEM []byte

// caCertPool returns a certificate pool trusting only the vendor's
// private chain.
func caCertPool() (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caChainPEM) {
		return nil, errors.New("parsing bundled TP-Link CA chain")
	}

	return pool, nil
}

// newHTTPClient builds the HTTP client used for all cloud calls: pinned
// to the vendor CA and bounded by timeout.
func newHTTPClient(timeout time.Duration) (*http.Client, error) {
	pool, err := caCertPool()
	if err != nil {
		return nil, err
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool},
		},
	}, nil
}
