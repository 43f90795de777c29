package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"archivio/internal"
	"archivio/internal/config"
)

type Client struct {
	cfg         config.Config
	httpClient  *http.Client
	limiter     *RateLimiter
	backoffBase time.Duration
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

// APIError is a non-2xx answer the caller has to interpret.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("archivio api error: status=%d", e.Status)
	}
	return fmt.Sprintf("archivio api error: status=%d detail=%s", e.Status, e.Detail)
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type verdictsPayload struct {
	Verdicts []internal.DuplicateVerdict `json:"verdicts"`
}

type confirmPayload struct {
	DocumentRef string `json:"document_ref"`
}

type conflictPayload struct {
	DuplicateInfo *internal.DuplicateInfo `json:"duplicate_info"`
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: time.Duration(cfg.APITimeoutMs) * time.Millisecond},
		limiter:     NewRateLimiter(cfg.APIRateLimitRPS),
		backoffBase: 250 * time.Millisecond,
	}
}

func (c *Client) GetSession(ctx context.Context, id string) (*internal.ImportSession, error) {
	var session internal.ImportSession
	if err := c.getJSON(ctx, "import-sessions/"+url.PathEscape(id), &session); err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	session.Verdicts = internal.VerdictSet{}
	session.NormalizePath()
	return &session, nil
}

// CreateSession uploads a source file or archive; the backend extracts the
// candidates and answers with the new session.
func (c *Client) CreateSession(ctx context.Context, kind internal.ImportKind, filename string, content []byte) (*internal.ImportSession, error) {
	buf := &bytes.Buffer{}
	form := multipart.NewWriter(buf)
	if err := form.WriteField("import_kind", string(kind)); err != nil {
		return nil, err
	}
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	status, body, err := c.send(ctx, http.MethodPost, "import-sessions", buf.Bytes(), form.FormDataContentType())
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if !isSuccess(status) {
		return nil, fmt.Errorf("create session: %w", &APIError{Status: status, Detail: describeErrorBody(body)})
	}
	data, err := decodeEnvelope(body)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	var session internal.ImportSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	session.NormalizePath()
	return &session, nil
}

// CheckDuplicates runs the session-scoped duplicate check in one round trip.
func (c *Client) CheckDuplicates(ctx context.Context, session *internal.ImportSession) (map[string]internal.DuplicateVerdict, error) {
	var payload verdictsPayload
	if err := c.getJSON(ctx, "import-sessions/"+url.PathEscape(session.ID)+"/duplicates", &payload); err != nil {
		return nil, fmt.Errorf("check duplicates %s: %w", session.ID, err)
	}
	out := make(map[string]internal.DuplicateVerdict, len(payload.Verdicts))
	for _, v := range payload.Verdicts {
		out[v.CandidateID] = v
	}
	return out, nil
}

// ConfirmCandidate commits one candidate. Conflicts and validation failures are
// reported through the response; the error is reserved for transport failures.
func (c *Client) ConfirmCandidate(ctx context.Context, sessionID, candidateID string, req internal.ConfirmRequest) (internal.CommitResponse, error) {
	blob, err := json.Marshal(req)
	if err != nil {
		return internal.CommitResponse{}, err
	}
	endpoint := candidateEndpoint(sessionID, candidateID) + "/confirm"
	status, body, err := c.send(ctx, http.MethodPost, endpoint, blob, "application/json")
	if err != nil {
		return internal.CommitResponse{}, fmt.Errorf("confirm %s: %w", candidateID, err)
	}

	switch {
	case isSuccess(status):
		data, err := decodeEnvelope(body)
		if err != nil {
			return internal.CommitResponse{Status: internal.CommitError, Detail: err.Error()}, nil
		}
		var payload confirmPayload
		if err := json.Unmarshal(data, &payload); err != nil || strings.TrimSpace(payload.DocumentRef) == "" {
			return internal.CommitResponse{Status: internal.CommitError, Detail: "confirm response without document_ref"}, nil
		}
		return internal.CommitResponse{Status: internal.CommitSuccess, DocumentRef: payload.DocumentRef}, nil
	case status == http.StatusConflict:
		return internal.CommitResponse{Status: internal.CommitConflict, DuplicateInfo: decodeDuplicateInfo(body), Detail: describeErrorBody(body)}, nil
	case status >= 400 && status < 500:
		return internal.CommitResponse{Status: internal.CommitError, Detail: describeErrorBody(body)}, nil
	default:
		return internal.CommitResponse{}, fmt.Errorf("confirm %s: %w", candidateID, &APIError{Status: status, Detail: describeErrorBody(body)})
	}
}

func (c *Client) SkipCandidate(ctx context.Context, sessionID, candidateID string) error {
	endpoint := candidateEndpoint(sessionID, candidateID) + "/skip"
	status, body, err := c.send(ctx, http.MethodPost, endpoint, []byte("{}"), "application/json")
	if err != nil {
		return fmt.Errorf("skip %s: %w", candidateID, err)
	}
	if !isSuccess(status) {
		return fmt.Errorf("skip %s: %w", candidateID, &APIError{Status: status, Detail: describeErrorBody(body)})
	}
	if _, err := decodeEnvelope(body); err != nil {
		return fmt.Errorf("skip %s: %w", candidateID, err)
	}
	return nil
}

func (c *Client) CommitWholeArchive(ctx context.Context, req internal.ArchiveCommitRequest) (internal.ArchiveCommitResponse, error) {
	blob, err := json.Marshal(req)
	if err != nil {
		return internal.ArchiveCommitResponse{}, err
	}
	status, body, err := c.send(ctx, http.MethodPost, "documents/archive-import", blob, "application/json")
	if err != nil {
		return internal.ArchiveCommitResponse{}, fmt.Errorf("commit archive %s: %w", req.ArchiveRef, err)
	}

	switch {
	case isSuccess(status):
		var apiResp apiResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return internal.ArchiveCommitResponse{}, fmt.Errorf("commit archive %s: %w", req.ArchiveRef, err)
		}
		var out internal.ArchiveCommitResponse
		if len(apiResp.Data) > 0 {
			if err := json.Unmarshal(apiResp.Data, &out); err != nil {
				return internal.ArchiveCommitResponse{}, fmt.Errorf("commit archive %s: %w", req.ArchiveRef, err)
			}
		}
		if apiResp.Success && out.DocumentRef != nil && *out.DocumentRef != "" {
			out.Success = true
		}
		if !apiResp.Success {
			out.Success = false
			out.Errors = append(out.Errors, formatErrors(apiResp.Errors)...)
		}
		return out, nil
	case status == http.StatusConflict:
		return internal.ArchiveCommitResponse{Success: false, DuplicateInfo: decodeDuplicateInfo(body)}, nil
	case status >= 400 && status < 500:
		return internal.ArchiveCommitResponse{Success: false, Errors: []string{describeErrorBody(body)}}, nil
	default:
		return internal.ArchiveCommitResponse{}, fmt.Errorf("commit archive %s: %w", req.ArchiveRef, &APIError{Status: status, Detail: describeErrorBody(body)})
	}
}

// ResolveArchive reports whether the originally uploaded archive still exists.
func (c *Client) ResolveArchive(ctx context.Context, archiveRef string) (bool, error) {
	if strings.TrimSpace(archiveRef) == "" {
		return false, nil
	}
	var meta map[string]any
	err := c.getJSON(ctx, "import-archives/"+url.PathEscape(archiveRef), &meta)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("resolve archive %s: %w", archiveRef, err)
	}
	return true, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	status, body, err := c.send(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return &APIError{Status: status, Detail: describeErrorBody(body)}
	}
	data, err := decodeEnvelope(body)
	if err != nil {
		return err
	}
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, out)
}

// send performs one logical request. GETs are retried on transport errors and
// on 429/5xx; other methods only on 429, which the server never processed.
func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte, contentType string) (int, []byte, error) {
	if strings.TrimSpace(c.cfg.APIToken) == "" {
		return 0, nil, errors.New("missing ARCHIVIO_API_TOKEN")
	}

	baseURL := strings.TrimRight(c.cfg.APIBaseURL, "/") + "/"
	u, err := url.Parse(baseURL + endpoint)
	if err != nil {
		return 0, nil, err
	}

	attempts := c.cfg.APIMaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.limiter.WaitTurn(ctx); err != nil {
			return 0, nil, err
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if method != http.MethodGet || ctx.Err() != nil {
				return 0, nil, err
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			if method != http.MethodGet {
				return 0, nil, readErr
			}
			continue
		}

		if isRetryable(method, resp.StatusCode) && attempt < attempts {
			lastErr = fmt.Errorf("archivio api status %d", resp.StatusCode)
			slog.Warn("retrying archivio api request", "method", method, "endpoint", endpoint, "status", resp.StatusCode, "attempt", attempt)
			if err := c.backoff(ctx, attempt); err != nil {
				return 0, nil, err
			}
			continue
		}
		return resp.StatusCode, body, nil
	}

	if lastErr == nil {
		lastErr = errors.New("archivio request failed")
	}
	return 0, nil, lastErr
}

func (c *Client) backoff(ctx context.Context, attempt int) error {
	jitter := time.Duration(rand.Intn(int(c.backoffBase/time.Millisecond)+1)) * time.Millisecond
	wait := c.backoffBase*time.Duration(1<<(attempt-1)) + jitter
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

func isRetryable(method string, status int) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	if method != http.MethodGet {
		return false
	}
	switch status {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func candidateEndpoint(sessionID, candidateID string) string {
	return "import-sessions/" + url.PathEscape(sessionID) + "/candidates/" + url.PathEscape(candidateID)
}

func decodeEnvelope(body []byte) (json.RawMessage, error) {
	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, err
	}
	if !apiResp.Success {
		return nil, fmt.Errorf("archivio api unsuccessful: %s", strings.Join(formatErrors(apiResp.Errors), "; "))
	}
	return apiResp.Data, nil
}

func decodeDuplicateInfo(body []byte) *internal.DuplicateInfo {
	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil || len(apiResp.Data) == 0 {
		return nil
	}
	var wrapped conflictPayload
	if err := json.Unmarshal(apiResp.Data, &wrapped); err == nil && wrapped.DuplicateInfo != nil {
		return wrapped.DuplicateInfo
	}
	var info internal.DuplicateInfo
	if err := json.Unmarshal(apiResp.Data, &info); err == nil && info.ExistingRef != "" {
		return &info
	}
	return nil
}
