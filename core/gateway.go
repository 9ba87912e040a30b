package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type GatewayRequest struct {
	Method  string
	Path    string
	Headers map[string]string
	Query   map[string]string
	Body    []byte
	Timeout time.Duration
}

type GatewayResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	// Refreshed marks responses obtained on the post-renewal retry.
	Refreshed bool
}

// Gateway is the single entry point for authenticated requests. It attaches
// the access token, detects credential expiry, funnels renewal through the
// coordinator, and retries the original request at most once.
type Gateway struct {
	config    Config
	vault     CredentialVault
	transport TransportAdapter
	refresher *RefreshCoordinator
	logger    Logger
	metrics   MetricsRecorder
}

func NewGateway(
	cfg Config,
	vault CredentialVault,
	transport TransportAdapter,
	refresher *RefreshCoordinator,
	logger Logger,
	metrics MetricsRecorder,
) (*Gateway, error) {
	if vault == nil {
		return nil, fmt.Errorf("core: gateway requires a credential vault")
	}
	if transport == nil {
		return nil, fmt.Errorf("core: gateway requires a transport adapter")
	}
	if refresher == nil {
		return nil, fmt.Errorf("core: gateway requires a refresh coordinator")
	}
	if metrics == nil {
		metrics = NopMetricsRecorder{}
	}
	return &Gateway{
		config:    cfg,
		vault:     vault,
		transport: transport,
		refresher: refresher,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// Request dispatches an authenticated request. Expired credentials surface as
// a single 401, one renewal, and exactly one retry; a renewal failure clears
// the vault and returns an auth-expired error the caller must treat as a
// forced logout.
func (g *Gateway) Request(ctx context.Context, req GatewayRequest) (GatewayResponse, error) {
	if g == nil || g.transport == nil {
		return GatewayResponse{}, fmt.Errorf("core: gateway is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	accessToken, _, err := g.vault.Get(ctx, TokenNameAccess)
	if err != nil {
		storageErr := NewStorageError("core: read access token", err)
		logWithLevel(ctx, g.logger, "error", "gateway aborted, vault unavailable", map[string]any{
			"path":  req.Path,
			"error": storageErr.Error(),
		})
		return GatewayResponse{}, storageErr
	}

	res, err := g.dispatch(ctx, req, accessToken)
	if err != nil {
		return GatewayResponse{}, NewNetworkError("core: dispatch request", err)
	}
	if res.StatusCode != http.StatusUnauthorized {
		return g.finalize(req, res, false)
	}

	pair, refreshErr := g.refresher.Refresh(ctx)
	if refreshErr != nil {
		// The coordinator already cleared the vault on auth failures.
		return GatewayResponse{}, refreshErr
	}

	retryRes, retryErr := g.dispatch(ctx, req, pair.AccessToken)
	if retryErr != nil {
		return GatewayResponse{}, NewNetworkError("core: dispatch retried request", retryErr)
	}
	if retryRes.StatusCode == http.StatusUnauthorized {
		// The renewed token was rejected outright; no further retries.
		if clearErr := g.vault.Clear(ctx); clearErr != nil {
			logWithLevel(ctx, g.logger, "error", "vault clear failed", map[string]any{
				"error": clearErr.Error(),
			})
		}
		return GatewayResponse{}, NewAuthExpiredError("core: retried request rejected with 401", nil)
	}
	return g.finalize(req, retryRes, true)
}

// RequestJSON dispatches via Request and decodes a 2xx body into out.
func (g *Gateway) RequestJSON(ctx context.Context, req GatewayRequest, out any) (GatewayResponse, error) {
	res, err := g.Request(ctx, req)
	if err != nil {
		return res, err
	}
	if out == nil || len(res.Body) == 0 {
		return res, nil
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return res, newSessionError(
			fmt.Sprintf("core: decode response body for %s: %v", req.Path, err),
			goerrors.CategoryBadInput,
			SessionErrorBadInput,
		)
	}
	return res, nil
}

func (g *Gateway) dispatch(ctx context.Context, req GatewayRequest, accessToken string) (TransportResponse, error) {
	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	headers := make(map[string]string, len(req.Headers)+2)
	for key, value := range req.Headers {
		headers[key] = value
	}
	if strings.TrimSpace(accessToken) != "" {
		headers["Authorization"] = "Bearer " + accessToken
	}
	if len(req.Body) > 0 {
		if _, ok := headers["Content-Type"]; !ok {
			headers["Content-Type"] = "application/json"
		}
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = g.config.RequestTimeout
	}
	return g.transport.Do(ctx, TransportRequest{
		Method:  method,
		URL:     joinBaseURL(g.config.Endpoints.BaseURL, req.Path),
		Headers: headers,
		Query:   req.Query,
		Body:    req.Body,
		Timeout: timeout,
	})
}

func (g *Gateway) finalize(req GatewayRequest, res TransportResponse, refreshed bool) (GatewayResponse, error) {
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return GatewayResponse{}, NewHTTPError(res.StatusCode, httpErrorMessage(req.Path, res))
	}
	return GatewayResponse{
		StatusCode: res.StatusCode,
		Headers:    res.Headers,
		Body:       res.Body,
		Refreshed:  refreshed,
	}, nil
}

func httpErrorMessage(path string, res TransportResponse) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if len(res.Body) > 0 && json.Unmarshal(res.Body, &payload) == nil {
		if msg := strings.TrimSpace(payload.Message); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(payload.Error); msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("core: request to %s failed with status %d", path, res.StatusCode)
}

func joinBaseURL(baseURL string, path string) string {
	baseURL = strings.TrimSpace(baseURL)
	path = strings.TrimSpace(path)
	if baseURL == "" {
		return path
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
