// Package deviceauth implements the OAuth2 device-code flow used to
// authorize against the playlist provider: request a device code, poll
// for a token respecting the provider's interval and expiry, and cache
// the resulting access/refresh token pair, refreshing it transparently
// once expired. Grounded on original_source/myousync/src/yt_api.rs's
// get_auth.
package deviceauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/splamy/myousync/internal/store"
)

const (
	authKV            = "youtube_auth"
	deviceCodeURL     = "https://oauth2.googleapis.com/device/code"
	tokenURL          = "https://oauth2.googleapis.com/token"
	deviceGrantType   = "urn:ietf:params:oauth:grant-type:device_code"
	refreshGrantType  = "refresh_token"
	youtubeScope      = "https://www.googleapis.com/auth/youtube"
	slowDownExtraWait = 10 * time.Second
)

// ErrAuthTimeExceeded is returned when the device code expires before the
// user completes authorization.
var ErrAuthTimeExceeded = errors.New("deviceauth: maximum auth time exceeded")

// ErrAuthRejected is returned when the user declines the authorization
// request.
var ErrAuthRejected = errors.New("deviceauth: authorization rejected")

// ErrMissingRefreshToken is returned when a successful token exchange
// omits a refresh token, which the flow cannot proceed without.
var ErrMissingRefreshToken = errors.New("deviceauth: missing refresh token")

// AuthData is a cached access/refresh token pair.
type AuthData struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Prompt is called with the verification URL and user code the operator
// must visit and enter to complete a fresh device authorization.
type Prompt func(verificationURL, userCode string)

// Authenticator manages a single cached AuthData for one client
// credential pair.
type Authenticator struct {
	store        *store.Store
	clientID     string
	clientSecret string
	client       *http.Client
	prompt       Prompt

	deviceCodeURL string
	tokenURL      string
}

// New constructs an Authenticator. prompt may be nil, in which case the
// verification URL and code are discarded rather than surfaced.
func New(s *store.Store, clientID, clientSecret string, prompt Prompt) *Authenticator {
	return &Authenticator{
		store:         s,
		clientID:      clientID,
		clientSecret:  clientSecret,
		client:        &http.Client{Timeout: 30 * time.Second},
		prompt:        prompt,
		deviceCodeURL: deviceCodeURL,
		tokenURL:      tokenURL,
	}
}

// GetAuth returns a currently-valid access token, reusing and refreshing
// the cached credential if present, or running the full device-code flow
// if not.
func (a *Authenticator) GetAuth(ctx context.Context) (*AuthData, error) {
	if cached, ok := a.loadCached(); ok {
		if time.Now().Unix() < cached.ExpiresAt {
			return cached, nil
		}
		return a.refresh(ctx, cached.RefreshToken)
	}
	return a.authorizeDevice(ctx)
}

func (a *Authenticator) loadCached() (*AuthData, bool) {
	raw, ok := a.store.GetKey(authKV)
	if !ok {
		return nil, false
	}
	var data AuthData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, false
	}
	return &data, true
}

func (a *Authenticator) save(data *AuthData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return a.store.SetKey(authKV, string(raw))
}

type tokenSuccess struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type tokenError struct {
	Error string `json:"error"`
}

// decodeTokenResponse decodes the provider's untagged success-or-error
// response shape: probe for the error field first, since a success
// response never carries one.
func decodeTokenResponse(body []byte) (*tokenSuccess, *tokenError, error) {
	var errResp tokenError
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return nil, &errResp, nil
	}
	var success tokenSuccess
	if err := json.Unmarshal(body, &success); err != nil {
		return nil, nil, fmt.Errorf("decode token response: %w", err)
	}
	return &success, nil, nil
}

func (a *Authenticator) refresh(ctx context.Context, refreshToken string) (*AuthData, error) {
	form := url.Values{
		"client_id":     {a.clientID},
		"client_secret": {a.clientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {refreshGrantType},
	}

	body, err := a.postForm(ctx, a.tokenURL, form)
	if err != nil {
		return nil, err
	}

	success, tokenErr, err := decodeTokenResponse(body)
	if err != nil {
		return nil, err
	}
	if tokenErr != nil {
		return nil, fmt.Errorf("deviceauth: refresh failed: %s", tokenErr.Error)
	}

	data := &AuthData{
		AccessToken:  success.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Unix() + success.ExpiresIn,
	}
	if err := a.save(data); err != nil {
		return nil, err
	}
	return data, nil
}

type deviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	ExpiresIn       int64  `json:"expires_in"`
	Interval        int64  `json:"interval"`
	VerificationURL string `json:"verification_url"`
}

func (a *Authenticator) authorizeDevice(ctx context.Context) (*AuthData, error) {
	form := url.Values{
		"client_id": {a.clientID},
		"scope":     {youtubeScope},
	}
	body, err := a.postForm(ctx, a.deviceCodeURL, form)
	if err != nil {
		return nil, err
	}

	var codeResp deviceCodeResponse
	if err := json.Unmarshal(body, &codeResp); err != nil {
		return nil, fmt.Errorf("decode device code response: %w", err)
	}

	if a.prompt != nil {
		a.prompt(codeResp.VerificationURL, codeResp.UserCode)
	}

	pollForm := url.Values{
		"client_id":     {a.clientID},
		"client_secret": {a.clientSecret},
		"device_code":   {codeResp.DeviceCode},
		"grant_type":    {deviceGrantType},
	}

	deadline := time.Now().Add(time.Duration(codeResp.ExpiresIn) * time.Second)
	interval := time.Duration(codeResp.Interval) * time.Second

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		body, err := a.postForm(ctx, a.tokenURL, pollForm)
		if err != nil {
			return nil, err
		}

		success, tokenErr, err := decodeTokenResponse(body)
		if err != nil {
			return nil, err
		}

		if tokenErr != nil {
			switch tokenErr.Error {
			case "authorization_pending":
				continue
			case "slow_down":
				time.Sleep(slowDownExtraWait)
				continue
			case "expired_token":
				return nil, ErrAuthTimeExceeded
			case "access_denied":
				return nil, ErrAuthRejected
			default:
				return nil, fmt.Errorf("deviceauth: token poll failed: %s", tokenErr.Error)
			}
		}

		if success.RefreshToken == "" {
			return nil, ErrMissingRefreshToken
		}

		data := &AuthData{
			AccessToken:  success.AccessToken,
			RefreshToken: success.RefreshToken,
			ExpiresAt:    time.Now().Unix() + success.ExpiresIn,
		}
		if err := a.save(data); err != nil {
			return nil, err
		}
		return data, nil
	}

	return nil, ErrAuthTimeExceeded
}

func (a *Authenticator) postForm(ctx context.Context, reqURL string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deviceauth: request failed: %w", err)
	}
	defer resp.Body.Close()

	body := make([]byte, 0)
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		body = append(body, buf[:n]...)
		if readErr != nil {
			break
		}
	}
	return body, nil
}
