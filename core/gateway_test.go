package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

func failingRenew(t *testing.T) RenewalFunc {
	return func(context.Context, string) (TokenPair, error) {
		t.Fatal("renewal must not run in this scenario")
		return TokenPair{}, nil
	}
}

func TestGatewayAttachesBearerToken(t *testing.T) {
	vault := NewMemoryVault()
	seedVault(t, vault, "access-1", "refresh-1")

	transport := newScriptedTransport(func(req TransportRequest) (TransportResponse, error) {
		return TransportResponse{StatusCode: http.StatusOK, Body: []byte(`{}`)}, nil
	})
	gateway := mustGateway(t, testConfig(), vault, transport, mustCoordinator(t, vault, failingRenew(t)))

	res, err := gateway.Request(context.Background(), GatewayRequest{Method: "GET", Path: "/posts"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if res.Refreshed {
		t.Fatal("Refreshed = true for a first-try success")
	}

	requests := transport.Requests()
	if len(requests) != 1 {
		t.Fatalf("dispatched %d requests, want 1", len(requests))
	}
	if got := requests[0].Headers["Authorization"]; got != "Bearer access-1" {
		t.Fatalf("Authorization = %q, want Bearer access-1", got)
	}
	if got := requests[0].URL; got != "https://api.test/posts" {
		t.Fatalf("URL = %q", got)
	}
}

func TestGatewayRetriesOnceAfterRenewal(t *testing.T) {
	vault := NewMemoryVault()
	seedVault(t, vault, "stale-access", "refresh-1")

	transport := newScriptedTransport(func(req TransportRequest) (TransportResponse, error) {
		if req.Headers["Authorization"] == "Bearer fresh-access" {
			return TransportResponse{StatusCode: http.StatusOK, Body: []byte(`{"ok":true}`)}, nil
		}
		return TransportResponse{StatusCode: http.StatusUnauthorized}, nil
	})
	coordinator := mustCoordinator(t, vault, func(context.Context, string) (TokenPair, error) {
		return TokenPair{AccessToken: "fresh-access", RefreshToken: "refresh-2"}, nil
	})
	gateway := mustGateway(t, testConfig(), vault, transport, coordinator)

	res, err := gateway.Request(context.Background(), GatewayRequest{Method: "GET", Path: "/posts"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if !res.Refreshed {
		t.Fatal("Refreshed = false for a post-renewal success")
	}
	if got := coordinator.Renewals(); got != 1 {
		t.Fatalf("Renewals() = %d, want 1", got)
	}
	if got := len(transport.Requests()); got != 2 {
		t.Fatalf("dispatched %d requests, want 2", got)
	}
}

func TestGatewayConcurrentExpirySingleRenewal(t *testing.T) {
	vault := NewMemoryVault()
	seedVault(t, vault, "stale-access", "refresh-1")

	transport := newScriptedTransport(func(req TransportRequest) (TransportResponse, error) {
		if req.Headers["Authorization"] == "Bearer fresh-access" {
			return TransportResponse{StatusCode: http.StatusOK, Body: []byte(`{}`)}, nil
		}
		return TransportResponse{StatusCode: http.StatusUnauthorized}, nil
	})
	coordinator := mustCoordinator(t, vault, func(context.Context, string) (TokenPair, error) {
		time.Sleep(15 * time.Millisecond)
		return TokenPair{AccessToken: "fresh-access", RefreshToken: "refresh-2"}, nil
	})
	gateway := mustGateway(t, testConfig(), vault, transport, coordinator)

	const callers = 6
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = gateway.Request(context.Background(), GatewayRequest{
				Method: "GET",
				Path:   fmt.Sprintf("/posts/%d", idx),
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if got := coordinator.Renewals(); got != 1 {
		t.Fatalf("Renewals() = %d, want 1", got)
	}
}

func TestGatewaySecondRejectionForcesLogout(t *testing.T) {
	vault := NewMemoryVault()
	seedVault(t, vault, "stale-access", "refresh-1")

	transport := newScriptedTransport(func(TransportRequest) (TransportResponse, error) {
		return TransportResponse{StatusCode: http.StatusUnauthorized}, nil
	})
	coordinator := mustCoordinator(t, vault, func(context.Context, string) (TokenPair, error) {
		return TokenPair{AccessToken: "fresh-access", RefreshToken: "refresh-2"}, nil
	})
	gateway := mustGateway(t, testConfig(), vault, transport, coordinator)

	_, err := gateway.Request(context.Background(), GatewayRequest{Method: "GET", Path: "/posts"})
	if !IsAuthExpired(err) {
		t.Fatalf("expected auth-expired error, got %v", err)
	}
	if got := len(transport.Requests()); got != 2 {
		t.Fatalf("dispatched %d requests, want exactly 2 (no second retry)", got)
	}
	if _, found, _ := vault.Get(context.Background(), TokenNameAccess); found {
		t.Fatal("access token still present after forced logout")
	}
}

func TestGatewayRenewalFailureSurfacesAuthExpired(t *testing.T) {
	vault := NewMemoryVault()
	seedVault(t, vault, "stale-access", "refresh-1")

	transport := newScriptedTransport(func(TransportRequest) (TransportResponse, error) {
		return TransportResponse{StatusCode: http.StatusUnauthorized}, nil
	})
	coordinator := mustCoordinator(t, vault, func(context.Context, string) (TokenPair, error) {
		return TokenPair{}, fmt.Errorf("refresh endpoint rejected the token")
	})
	gateway := mustGateway(t, testConfig(), vault, transport, coordinator)

	_, err := gateway.Request(context.Background(), GatewayRequest{Method: "GET", Path: "/posts"})
	if !IsAuthExpired(err) {
		t.Fatalf("expected auth-expired error, got %v", err)
	}
	if _, found, _ := vault.Get(context.Background(), TokenNameRefresh); found {
		t.Fatal("refresh token still present after failed renewal")
	}
}

func TestGatewayMapsHTTPErrors(t *testing.T) {
	vault := NewMemoryVault()
	seedVault(t, vault, "access-1", "refresh-1")

	transport := newScriptedTransport(func(TransportRequest) (TransportResponse, error) {
		return TransportResponse{
			StatusCode: http.StatusInternalServerError,
			Body:       []byte(`{"message":"upstream exploded"}`),
		}, nil
	})
	gateway := mustGateway(t, testConfig(), vault, transport, mustCoordinator(t, vault, failingRenew(t)))

	_, err := gateway.Request(context.Background(), GatewayRequest{Method: "GET", Path: "/posts"})
	status, ok := HTTPStatus(err)
	if !ok || status != http.StatusInternalServerError {
		t.Fatalf("HTTPStatus = (%d, %v), want 500", status, ok)
	}
	if !strings.Contains(err.Error(), "upstream exploded") {
		t.Fatalf("error message %q does not carry the server message", err.Error())
	}
}

func TestGatewayMapsNetworkErrors(t *testing.T) {
	vault := NewMemoryVault()
	seedVault(t, vault, "access-1", "refresh-1")

	transport := newScriptedTransport(func(TransportRequest) (TransportResponse, error) {
		return TransportResponse{}, fmt.Errorf("dial tcp: connection refused")
	})
	gateway := mustGateway(t, testConfig(), vault, transport, mustCoordinator(t, vault, failingRenew(t)))

	_, err := gateway.Request(context.Background(), GatewayRequest{Method: "GET", Path: "/posts"})
	if !IsNetworkError(err) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestGatewayExpiredVaultEntryTriggersRenewal(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	vault := NewMemoryVault().WithClock(func() time.Time { return *clock })

	err := vault.Set(context.Background(), TokenPair{
		AccessToken:  "short-access",
		RefreshToken: "refresh-1",
	}, TokenTTLs{Access: time.Minute, Refresh: 24 * time.Hour})
	if err != nil {
		t.Fatalf("seed vault: %v", err)
	}

	// Past the access TTL the entry reads back as absent, so the first
	// dispatch goes out unauthenticated and collects a 401.
	advanced := now.Add(2 * time.Minute)
	clock = &advanced

	transport := newScriptedTransport(func(req TransportRequest) (TransportResponse, error) {
		if req.Headers["Authorization"] == "Bearer fresh-access" {
			return TransportResponse{StatusCode: http.StatusOK, Body: []byte(`{}`)}, nil
		}
		return TransportResponse{StatusCode: http.StatusUnauthorized}, nil
	})
	coordinator := mustCoordinator(t, vault, func(context.Context, string) (TokenPair, error) {
		return TokenPair{AccessToken: "fresh-access", RefreshToken: "refresh-2"}, nil
	})
	gateway := mustGateway(t, testConfig(), vault, transport, coordinator)

	res, err := gateway.Request(context.Background(), GatewayRequest{Method: "GET", Path: "/posts"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if !res.Refreshed {
		t.Fatal("Refreshed = false, expected the renewal path")
	}

	requests := transport.Requests()
	if len(requests) != 2 {
		t.Fatalf("dispatched %d requests, want 2", len(requests))
	}
	if _, ok := requests[0].Headers["Authorization"]; ok {
		t.Fatal("expired access token was still attached to the first dispatch")
	}
}

func TestGatewayRequestJSONDecodes(t *testing.T) {
	vault := NewMemoryVault()
	seedVault(t, vault, "access-1", "refresh-1")

	transport := newScriptedTransport(func(TransportRequest) (TransportResponse, error) {
		return TransportResponse{StatusCode: http.StatusOK, Body: []byte(`{"authenticated":true,"identity":{"id":"u1","username":"ada"}}`)}, nil
	})
	gateway := mustGateway(t, testConfig(), vault, transport, mustCoordinator(t, vault, failingRenew(t)))

	var check SessionCheck
	if _, err := gateway.RequestJSON(context.Background(), GatewayRequest{Method: "GET", Path: "/auth/session"}, &check); err != nil {
		t.Fatalf("request json: %v", err)
	}
	if !check.Authenticated || check.Identity.Username != "ada" {
		t.Fatalf("decoded check = %+v", check)
	}
}
