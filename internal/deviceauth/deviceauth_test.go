package deviceauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/splamy/myousync/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetAuthReusesValidCachedToken(t *testing.T) {
	s := openTestStore(t)
	a := New(s, "id", "secret", nil)

	data := &AuthData{AccessToken: "cached", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour).Unix()}
	if err := a.save(data); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := a.GetAuth(context.Background())
	if err != nil {
		t.Fatalf("GetAuth: %v", err)
	}
	if got.AccessToken != "cached" {
		t.Errorf("access token = %q, want cached", got.AccessToken)
	}
}

func TestGetAuthRefreshesExpiredToken(t *testing.T) {
	s := openTestStore(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.FormValue("grant_type") != refreshGrantType {
			t.Fatalf("expected refresh_token grant, got %q", r.FormValue("grant_type"))
		}
		if r.FormValue("refresh_token") != "r" {
			t.Fatalf("expected refresh_token=r, got %q", r.FormValue("refresh_token"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh","expires_in":3600}`))
	}))
	defer srv.Close()

	a := New(s, "id", "secret", nil)
	a.tokenURL = srv.URL

	data := &AuthData{AccessToken: "stale", RefreshToken: "r", ExpiresAt: time.Now().Add(-time.Hour).Unix()}
	if err := a.save(data); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := a.GetAuth(context.Background())
	if err != nil {
		t.Fatalf("GetAuth: %v", err)
	}
	if got.AccessToken != "fresh" {
		t.Errorf("access token = %q, want fresh", got.AccessToken)
	}
	if got.RefreshToken != "r" {
		t.Errorf("expected refresh token to be carried over, got %q", got.RefreshToken)
	}
}

func TestGetAuthRunsDeviceFlowWhenUncached(t *testing.T) {
	s := openTestStore(t)

	var prompted string
	mux := http.NewServeMux()
	mux.HandleFunc("/device/code", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"device_code":"dc","user_code":"ABCD-1234","expires_in":60,"interval":0,"verification_url":"https://example.invalid/activate"}`))
	})
	attempt := 0
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		attempt++
		if attempt == 1 {
			w.Write([]byte(`{"error":"authorization_pending"}`))
			return
		}
		w.Write([]byte(`{"access_token":"fresh","expires_in":3600,"refresh_token":"rt"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := New(s, "id", "secret", func(verificationURL, userCode string) { prompted = userCode })
	a.deviceCodeURL = srv.URL + "/device/code"
	a.tokenURL = srv.URL + "/token"

	got, err := a.GetAuth(context.Background())
	if err != nil {
		t.Fatalf("GetAuth: %v", err)
	}
	if got.AccessToken != "fresh" || got.RefreshToken != "rt" {
		t.Errorf("unexpected auth data: %+v", got)
	}
	if prompted != "ABCD-1234" {
		t.Errorf("prompt user code = %q, want ABCD-1234", prompted)
	}
}

func TestGetAuthRunsDeviceFlowRejectsOnAccessDenied(t *testing.T) {
	s := openTestStore(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/device/code", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"device_code":"dc","user_code":"ABCD-1234","expires_in":60,"interval":0,"verification_url":"https://example.invalid/activate"}`))
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":"access_denied"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := New(s, "id", "secret", nil)
	a.deviceCodeURL = srv.URL + "/device/code"
	a.tokenURL = srv.URL + "/token"

	_, err := a.GetAuth(context.Background())
	if err != ErrAuthRejected {
		t.Fatalf("expected ErrAuthRejected, got %v", err)
	}
}

func TestDecodeTokenResponseDistinguishesSuccessAndError(t *testing.T) {
	success, tokenErr, err := decodeTokenResponse([]byte(`{"access_token":"a","expires_in":10,"refresh_token":"r"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokenErr != nil {
		t.Fatalf("did not expect a token error")
	}
	if success.AccessToken != "a" {
		t.Errorf("access token = %q, want a", success.AccessToken)
	}

	_, tokenErr, err = decodeTokenResponse([]byte(`{"error":"authorization_pending"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokenErr == nil || tokenErr.Error != "authorization_pending" {
		t.Fatalf("expected authorization_pending error, got %+v", tokenErr)
	}
}
