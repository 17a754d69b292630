// Package linkedin implements the platform seam against LinkedIn's web
// endpoints. It authenticates with a stored cookie jar, performs exactly one
// HTTP call per invocation, and reports failures as classified platform
// errors. Retries and rate accounting happen above this package.
package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quietreach/reach-cli/internal/domain"
	"github.com/quietreach/reach-cli/internal/ports"
)

const maxResponseBytes = 1 << 20

type API struct {
	BaseURL     string
	LoginPath   string
	RefreshPath string
	ConnectPath string
	MessagePath string
	ProfilePath string
	ScrapePath  string
}

func DefaultAPI(baseURL string) API {
	return API{
		BaseURL:     baseURL,
		LoginPath:   "/uas/authenticate",
		RefreshPath: "/uas/refresh",
		ConnectPath: "/voyager/api/growth/invitations",
		MessagePath: "/voyager/api/messaging/conversations",
		ProfilePath: "/voyager/api/identity/profiles",
		ScrapePath:  "/voyager/api/identity/profiles",
	}
}

type Client struct {
	API            API
	HTTPClient     *http.Client
	Secrets        ports.SecretStore
	Clock          ports.Clock
	RequestTimeout time.Duration
	// SessionTTL bounds the session lifetime when the platform response
	// carries no expiry of its own.
	SessionTTL time.Duration
}

var _ ports.PlatformClient = (*Client)(nil)

type cookieEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type authResponse struct {
	SessionID string        `json:"session_id"`
	ExpiresAt string        `json:"expires_at"`
	Cookies   []cookieEntry `json:"cookies"`
}

type actionResponse struct {
	Detail string            `json:"detail"`
	Data   map[string]string `json:"data"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func (c *Client) Login(ctx context.Context, account domain.AccountID, email, password string) (domain.Session, string, error) {
	if strings.TrimSpace(email) == "" {
		return domain.Session{}, "", errors.New("email is required")
	}
	if password == "" {
		return domain.Session{}, "", errors.New("password is required")
	}

	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return domain.Session{}, "", fmt.Errorf("encode login request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.API.LoginPath, "", bytes.NewReader(body))
	if err != nil {
		return domain.Session{}, "", fmt.Errorf("login: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !successStatus(resp.StatusCode) {
		return domain.Session{}, "", fmt.Errorf("login: %s", decodeError(resp))
	}

	session, blob, err := c.decodeAuth(resp, account)
	if err != nil {
		return domain.Session{}, "", fmt.Errorf("login: %w", err)
	}

	return session, blob, nil
}

func (c *Client) Refresh(ctx context.Context, session domain.Session) (domain.Session, string, error) {
	cookie, err := c.cookieHeader(ctx, session)
	if err != nil {
		return domain.Session{}, "", fmt.Errorf("refresh: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.API.RefreshPath, cookie, nil)
	if err != nil {
		return domain.Session{}, "", fmt.Errorf("refresh: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !successStatus(resp.StatusCode) {
		return domain.Session{}, "", fmt.Errorf("refresh: %s", decodeError(resp))
	}

	refreshed, blob, err := c.decodeAuth(resp, session.AccountID)
	if err != nil {
		return domain.Session{}, "", fmt.Errorf("refresh: %w", err)
	}

	// The session keeps its identity across refreshes; only the cookie jar
	// and expiry rotate. Rate windows are keyed by the session ID upstream.
	refreshed.ID = session.ID
	refreshed.IssuedAt = session.IssuedAt
	refreshed.RefreshedAt = c.now()
	refreshed.CookieRef = session.CookieRef

	return refreshed, blob, nil
}

func (c *Client) Execute(ctx context.Context, request domain.ActionRequest, session domain.Session) (domain.RawResult, error) {
	cookie, err := c.cookieHeader(ctx, session)
	if err != nil {
		return domain.RawResult{}, domain.NewPlatformError(domain.PlatformAuthExpired, err.Error())
	}

	method, path, body, err := c.actionCall(request)
	if err != nil {
		return domain.RawResult{}, domain.NewPlatformError(domain.PlatformUnknown, err.Error())
	}

	resp, err := c.do(ctx, method, path, cookie, body)
	if err != nil {
		if ctx.Err() != nil {
			return domain.RawResult{}, ctx.Err()
		}
		return domain.RawResult{}, domain.NewPlatformError(domain.PlatformTransientNetwork, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	if !successStatus(resp.StatusCode) {
		return domain.RawResult{}, domain.NewPlatformError(classifyStatus(resp.StatusCode), decodeError(resp))
	}

	var payload actionResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		return domain.RawResult{}, domain.NewPlatformError(domain.PlatformUnknown, fmt.Sprintf("decode response: %v", err))
	}

	return domain.RawResult{
		StatusCode: resp.StatusCode,
		Detail:     payload.Detail,
		Data:       payload.Data,
	}, nil
}

func (c *Client) actionCall(request domain.ActionRequest) (method string, path string, body io.Reader, err error) {
	switch request.Kind {
	case domain.ActionConnect:
		data, err := json.Marshal(map[string]string{"invitee": request.Target})
		if err != nil {
			return "", "", nil, fmt.Errorf("encode connect request: %w", err)
		}
		return http.MethodPost, c.API.ConnectPath, bytes.NewReader(data), nil
	case domain.ActionMessage:
		data, err := json.Marshal(map[string]string{"recipient": request.Target, "body": request.Message})
		if err != nil {
			return "", "", nil, fmt.Errorf("encode message request: %w", err)
		}
		return http.MethodPost, c.API.MessagePath, bytes.NewReader(data), nil
	case domain.ActionViewProfile:
		return http.MethodGet, c.API.ProfilePath + "/" + url.PathEscape(request.Target), nil, nil
	case domain.ActionScrape:
		return http.MethodGet, c.API.ScrapePath + "/" + url.PathEscape(request.Target) + "?full=true", nil, nil
	default:
		return "", "", nil, fmt.Errorf("unsupported action kind %q", request.Kind)
	}
}

func (c *Client) decodeAuth(resp *http.Response, account domain.AccountID) (domain.Session, string, error) {
	var payload authResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return domain.Session{}, "", fmt.Errorf("decode auth response: %w", err)
	}
	if len(payload.Cookies) == 0 {
		return domain.Session{}, "", errors.New("auth response carries no cookies")
	}

	blob, err := json.Marshal(payload.Cookies)
	if err != nil {
		return domain.Session{}, "", fmt.Errorf("encode cookie jar: %w", err)
	}

	now := c.now()

	sessionID := payload.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	expiresAt := now.Add(c.sessionTTL())
	if payload.ExpiresAt != "" {
		parsed, err := time.Parse(time.RFC3339, payload.ExpiresAt)
		if err != nil {
			return domain.Session{}, "", fmt.Errorf("parse session expiry: %w", err)
		}
		expiresAt = parsed
	}

	return domain.Session{
		ID:        domain.SessionID(sessionID),
		AccountID: account,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, string(blob), nil
}

// cookieHeader resolves the session's cookie jar from the secret store and
// folds it into a single Cookie header value.
func (c *Client) cookieHeader(ctx context.Context, session domain.Session) (string, error) {
	if session.CookieRef == "" {
		return "", errors.New("session has no cookie reference")
	}

	blob, err := c.Secrets.Get(ctx, session.CookieRef)
	if err != nil {
		return "", fmt.Errorf("resolve cookie jar: %w", err)
	}

	var cookies []cookieEntry
	if err := json.Unmarshal([]byte(blob), &cookies); err != nil {
		return "", fmt.Errorf("decode cookie jar: %w", err)
	}
	if len(cookies) == 0 {
		return "", errors.New("cookie jar is empty")
	}

	pairs := make([]string, 0, len(cookies))
	for _, cookie := range cookies {
		pairs = append(pairs, cookie.Name+"="+cookie.Value)
	}

	return strings.Join(pairs, "; "), nil
}

func (c *Client) do(ctx context.Context, method, path, cookie string, body io.Reader) (*http.Response, error) {
	endpoint, err := buildAPIURL(c.API.BaseURL, path)
	if err != nil {
		return nil, err
	}

	requestCtx, cancel := c.requestContext(ctx)
	req, err := http.NewRequestWithContext(requestCtx, method, endpoint, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		cancel()
		return nil, err
	}

	resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelReadCloser ties the request-scoped context to the response body so
// the timeout stays armed until the caller finishes reading.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	requestTimeout := c.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	return context.WithTimeout(ctx, requestTimeout)
}

func (c *Client) now() time.Time {
	if c.Clock != nil {
		return c.Clock.Now()
	}
	return time.Now()
}

func (c *Client) sessionTTL() time.Duration {
	if c.SessionTTL > 0 {
		return c.SessionTTL
	}
	return 30 * 24 * time.Hour
}

func successStatus(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

func classifyStatus(code int) domain.PlatformErrorKind {
	switch {
	case code == http.StatusUnauthorized:
		return domain.PlatformAuthExpired
	case code == http.StatusForbidden || code == http.StatusTooManyRequests:
		return domain.PlatformBlocked
	case code == http.StatusNotFound:
		return domain.PlatformNotFound
	case code >= http.StatusInternalServerError:
		return domain.PlatformTransientNetwork
	default:
		return domain.PlatformUnknown
	}
}

func decodeError(resp *http.Response) string {
	var payload errorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil || payload.Message == "" {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}
	return payload.Message
}

func buildAPIURL(baseURL string, path string) (string, error) {
	if baseURL == "" {
		return "", errors.New("platform base url is required")
	}
	if path == "" {
		return "", errors.New("platform path is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse platform base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("platform base url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("platform base url host is required")
	}

	endpoint, err := parsed.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse platform path: %w", err)
	}
	return endpoint.String(), nil
}
