package deezer

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/deezer-stream/streamproxy/internal/apperr"
	"github.com/deezer-stream/streamproxy/internal/metrics"
)

// Tokens is the process-wide api_token/license_token pair. Both fields are
// either empty (never fetched) or non-empty (last successful refresh);
// readers observe it as an atomic snapshot, never torn.
type Tokens struct {
	APIToken     string
	LicenseToken string
}

// TokenManager holds the current Tokens and coordinates refresh under
// contention: at most one in-flight upstream refresh at any instant.
type TokenManager struct {
	current atomic.Pointer[Tokens]
	mu      sync.Mutex
	caller  *Client
}

// NewTokenManager constructs an empty TokenManager. Call SetCaller before
// the first Refresh.
func NewTokenManager() *TokenManager {
	tm := &TokenManager{}
	tm.current.Store(&Tokens{})
	return tm
}

// SetCaller wires the upstream client used to perform the getUserData
// refresh call. Required before Refresh is ever invoked.
func (tm *TokenManager) SetCaller(c *Client) {
	tm.caller = c
}

// Snapshot is a lock-free read of the current token pair.
func (tm *TokenManager) Snapshot() Tokens {
	return *tm.current.Load()
}

// Refresh is idempotent: if the current api_token no longer matches
// observedOldAPIToken, another refresher already won and this call
// returns immediately. Otherwise it issues deezer.getUserData and
// publishes the new pair atomically.
//
// Guarantee: upon return, Snapshot().APIToken != observedOldAPIToken, or
// the refresh failed.
func (tm *TokenManager) Refresh(ctx context.Context, observedOldAPIToken string) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.current.Load().APIToken != observedOldAPIToken {
		return nil
	}

	raw, err := tm.caller.call(ctx, "deezer.getUserData", false, nil)
	if err != nil {
		metrics.RecordTokenRefresh("failure")
		return err
	}

	var envelope struct {
		Results struct {
			CheckForm string `json:"checkForm"`
			User      struct {
				Options struct {
					LicenseToken string `json:"license_token"`
				} `json:"OPTIONS"`
			} `json:"USER"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		metrics.RecordTokenRefresh("failure")
		return apperr.NewParse("parsing getUserData response", err)
	}

	if envelope.Results.CheckForm == "" || envelope.Results.User.Options.LicenseToken == "" {
		metrics.RecordTokenRefresh("failure")
		return apperr.NewParse("getUserData response missing checkForm or license_token", nil)
	}

	tm.current.Store(&Tokens{
		APIToken:     envelope.Results.CheckForm,
		LicenseToken: envelope.Results.User.Options.LicenseToken,
	})
	metrics.RecordTokenRefresh("success")
	return nil
}
