package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tristo-bit/skhoot-terminal/internal/models"
)

const defaultRequestTimeout = 10 * time.Second

// HTTPTransport talks to the local backend process over its REST surface.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport creates a transport for the backend at baseURL
// (e.g. http://127.0.0.1:3001). A nil client gets a default with a
// 10 second request timeout.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type createSessionRequest struct {
	Kind string `json:"kind"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
	Error     string `json:"error,omitempty"`
}

// CreateSession requests a new pseudo-terminal from the backend.
func (t *HTTPTransport) CreateSession(ctx context.Context, kind models.SessionKind, cols, rows int) (string, error) {
	body := createSessionRequest{Kind: string(kind), Cols: cols, Rows: rows}
	var out createSessionResponse
	status, err := t.doJSON(ctx, http.MethodPost, "/sessions", body, &out)
	if err != nil {
		return "", &CreationError{Reason: err.Error()}
	}
	if status != http.StatusOK && status != http.StatusCreated {
		reason := out.Error
		if reason == "" {
			reason = fmt.Sprintf("backend returned %d", status)
		}
		return "", &CreationError{Reason: reason}
	}
	if out.SessionID == "" {
		return "", &CreationError{Reason: "backend returned no session id"}
	}
	return out.SessionID, nil
}

type writeRequest struct {
	Data string `json:"data"`
}

// Write sends raw input to the session.
func (t *HTTPTransport) Write(ctx context.Context, sessionID, data string) error {
	status, err := t.doJSON(ctx, http.MethodPost, "/sessions/"+sessionID+"/input", writeRequest{Data: data}, nil)
	if err != nil {
		return &WriteError{SessionID: sessionID, Err: err}
	}
	if status == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if status >= 400 {
		return &WriteError{SessionID: sessionID, Err: fmt.Errorf("backend returned %d", status)}
	}
	return nil
}

type readResponse struct {
	Chunks []models.Chunk `json:"chunks"`
}

// Read drains output produced since the previous read. A 404 means the
// backend no longer knows the session; that is reported as
// ErrSessionNotFound so poll loops stop instead of ticking against a dead
// id forever. Callers that expect reads after close to be quiet consume
// from the broadcast buffer, not from here.
func (t *HTTPTransport) Read(ctx context.Context, sessionID string) ([]models.Chunk, error) {
	var out readResponse
	status, err := t.doJSON(ctx, http.MethodGet, "/sessions/"+sessionID+"/output", nil, &out)
	if err != nil {
		return nil, &ReadError{SessionID: sessionID, Err: err}
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if status >= 400 {
		return nil, &ReadError{SessionID: sessionID, Err: fmt.Errorf("backend returned %d", status)}
	}
	return out.Chunks, nil
}

type resizeRequest struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// Resize adjusts the pseudo-terminal geometry.
func (t *HTTPTransport) Resize(ctx context.Context, sessionID string, cols, rows int) error {
	status, err := t.doJSON(ctx, http.MethodPost, "/sessions/"+sessionID+"/resize", resizeRequest{Cols: cols, Rows: rows}, nil)
	if err != nil {
		return &ResizeError{SessionID: sessionID, Err: err}
	}
	if status == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if status >= 400 {
		return &ResizeError{SessionID: sessionID, Err: fmt.Errorf("backend returned %d", status)}
	}
	return nil
}

// CloseSession releases the remote resource. Unknown ids close cleanly so
// local cleanup is never blocked.
func (t *HTTPTransport) CloseSession(ctx context.Context, sessionID string) error {
	status, err := t.doJSON(ctx, http.MethodDelete, "/sessions/"+sessionID, nil, nil)
	if err != nil {
		return &WriteError{SessionID: sessionID, Err: err}
	}
	if status == http.StatusNotFound || status < 400 {
		return nil
	}
	return &WriteError{SessionID: sessionID, Err: fmt.Errorf("backend returned %d", status)}
}

type listSessionsResponse struct {
	Sessions []models.RemoteSession `json:"sessions"`
}

// ListSessions enumerates sessions the backend knows about.
func (t *HTTPTransport) ListSessions(ctx context.Context) ([]models.RemoteSession, error) {
	var out listSessionsResponse
	status, err := t.doJSON(ctx, http.MethodGet, "/sessions", nil, &out)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("list sessions: backend returned %d", status)
	}
	return out.Sessions, nil
}

// SessionHistory fetches the backend's retained scrollback for a session.
func (t *HTTPTransport) SessionHistory(ctx context.Context, sessionID string) ([]models.Chunk, error) {
	var out readResponse
	status, err := t.doJSON(ctx, http.MethodGet, "/sessions/"+sessionID+"/history", nil, &out)
	if err != nil {
		return nil, &ReadError{SessionID: sessionID, Err: err}
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if status >= 400 {
		return nil, &ReadError{SessionID: sessionID, Err: fmt.Errorf("backend returned %d", status)}
	}
	return out.Chunks, nil
}

type stateResponse struct {
	State string `json:"state"`
}

// SessionState reports the backend's lifecycle state for a session.
func (t *HTTPTransport) SessionState(ctx context.Context, sessionID string) (string, error) {
	var out stateResponse
	status, err := t.doJSON(ctx, http.MethodGet, "/sessions/"+sessionID+"/state", nil, &out)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if status >= 400 {
		return "", fmt.Errorf("session state: backend returned %d", status)
	}
	return out.State, nil
}

// doJSON performs a request with an optional JSON body, decoding a JSON
// response into out when non-nil. It returns the HTTP status so callers can
// map status codes to the error taxonomy.
func (t *HTTPTransport) doJSON(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 400 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	} else if out != nil {
		// Error bodies may still carry an error field.
		_ = json.NewDecoder(resp.Body).Decode(out)
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}

	return resp.StatusCode, nil
}
