package examapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPClient is the production Client: a thin JSON client over the exam
// service's REST endpoints, authenticated with a fixed service token.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewHTTPClient creates an HTTPClient. timeout bounds each call end to end.
func NewHTTPClient(baseURL, serviceToken string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   serviceToken,
		http:    &http.Client{Timeout: timeout},
	}
}

type startRequest struct {
	CandidateID int `json:"candidate_id"`
}

type submitRequest struct {
	Entries []SubmitEntry `json:"entries"`
}

func (c *HTTPClient) StartAttempt(ctx context.Context, examID string, candidateID int) (*AttemptPaper, error) {
	url := fmt.Sprintf("%s/exams/%s/attempts", c.baseURL, examID)

	resp, err := c.post(ctx, url, startRequest{CandidateID: candidateID})
	if err != nil {
		return nil, &LoadError{Kind: LoadTransport, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusNotFound:
		return nil, &LoadError{Kind: LoadNotFound, Message: readErrorMessage(resp.Body)}
	case http.StatusForbidden:
		return nil, &LoadError{Kind: LoadForbidden, Message: readErrorMessage(resp.Body)}
	default:
		return nil, &LoadError{
			Kind:    LoadTransport,
			Message: fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, readErrorMessage(resp.Body)),
		}
	}

	var paper AttemptPaper
	if err := json.NewDecoder(resp.Body).Decode(&paper); err != nil {
		return nil, &LoadError{Kind: LoadTransport, Message: "decode paper", Err: err}
	}
	if paper.AttemptID == "" {
		return nil, &LoadError{Kind: LoadTransport, Message: "paper without attempt id"}
	}
	return &paper, nil
}

func (c *HTTPClient) SubmitAttempt(ctx context.Context, attemptID string, entries []SubmitEntry) error {
	url := fmt.Sprintf("%s/attempts/%s/submit", c.baseURL, attemptID)

	resp, err := c.post(ctx, url, submitRequest{Entries: entries})
	if err != nil {
		return &SubmitError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return &SubmitError{
			Message: fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, readErrorMessage(resp.Body)),
		}
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return c.http.Do(req)
}

// readErrorMessage pulls a message out of an error body, tolerating both
// {"error": "..."} and {"message": "..."} shapes plus plain text.
func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
