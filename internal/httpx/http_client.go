package httpx

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const defaultExternalHTTPTimeout = 90 * time.Second

var externalHTTPClient = &http.Client{
	Timeout: defaultExternalHTTPTimeout,
}

func ConfigureExternalHTTPClient(timeoutSeconds int) time.Duration {
	timeout := defaultExternalHTTPTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	externalHTTPClient.Timeout = timeout
	return timeout
}

// Client returns the shared client used for every call leaving the process.
func Client() *http.Client {
	return externalHTTPClient
}

// WithOAuth2Client makes token exchanges done by golang.org/x/oauth2 go
// through the shared client and its timeout.
func WithOAuth2Client(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, externalHTTPClient)
}
