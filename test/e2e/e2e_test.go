//go:build e2e
// +build e2e

// End-to-end flow against a running gateway. The server must be configured
// with EXAM_API_BASE_URL pointing at a stub exam service that issues a
// RULES_PENDING attempt for any exam id and accepts submissions; the JWT
// secret must match JWT_SECRET here so the suite can mint candidate tokens.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

const (
	defaultBaseURL = "http://localhost:8050"
	candidateID    = 424242
	examID         = "e2e-exam-1"
)

var (
	baseURL        string
	jwtSecret      string
	candidateToken string
	attemptID      string
)

func TestMain(m *testing.M) {
	// Load .env if present (ignore error)
	_ = godotenv.Load("../../.env")

	baseURL = os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	jwtSecret = os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		fmt.Println("JWT_SECRET must be set for the e2e suite")
		os.Exit(1)
	}

	token, err := mintCandidateToken()
	if err != nil {
		fmt.Printf("mint token: %v\n", err)
		os.Exit(1)
	}
	candidateToken = token

	os.Exit(m.Run())
}

// mintCandidateToken signs a candidate JWT the way the institute auth
// service would.
func mintCandidateToken() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"jti":          uuid.New().String(),
		"sub":          strconv.Itoa(candidateID),
		"iat":          now.Unix(),
		"exp":          now.Add(time.Hour).Unix(),
		"token_type":   "candidate",
		"candidate_id": candidateID,
		"name":         "E2E Candidate",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
}

type stateBody struct {
	Data struct {
		AttemptID        string            `json:"attempt_id"`
		Status           string            `json:"status"`
		RemainingSeconds int               `json:"remaining_seconds"`
		Answers          map[string]string `json:"answers"`
		MarkedForReview  []string          `json:"marked_for_review"`
		Questions        []struct {
			ID      string `json:"id"`
			Type    string `json:"type"`
			Options []struct {
				Key string `json:"key"`
			} `json:"options"`
		} `json:"questions"`
	} `json:"data"`
}

func TestAttemptFlow(t *testing.T) {
	var firstQID, firstOption string

	t.Run("StartAttempt", func(t *testing.T) {
		resp, err := post(fmt.Sprintf("/api/v1/exams/%s/attempt", examID), nil, candidateToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		var body stateBody
		decodeJSON(t, resp, &body)
		attemptID = body.Data.AttemptID
		if attemptID == "" {
			t.Fatal("attempt id missing")
		}
		if body.Data.Status != "RULES_PENDING" {
			t.Fatalf("expected RULES_PENDING, got %s", body.Data.Status)
		}
		if len(body.Data.Questions) == 0 {
			t.Fatal("paper has no questions")
		}
		firstQID = body.Data.Questions[0].ID
		if len(body.Data.Questions[0].Options) > 0 {
			firstOption = body.Data.Questions[0].Options[0].Key
		} else {
			firstOption = "7"
		}
		t.Logf("Attempt started: %s", attemptID)
	})

	t.Run("StartIsIdempotent", func(t *testing.T) {
		resp, err := post(fmt.Sprintf("/api/v1/exams/%s/attempt", examID), nil, candidateToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
		var body stateBody
		decodeJSON(t, resp, &body)
		if body.Data.AttemptID != attemptID {
			t.Fatalf("second start issued a new attempt: %s vs %s", body.Data.AttemptID, attemptID)
		}
	})

	t.Run("AcknowledgeRules", func(t *testing.T) {
		resp, err := post(fmt.Sprintf("/api/v1/attempts/%s/rules-ack", attemptID), nil, candidateToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
		var body stateBody
		decodeJSON(t, resp, &body)
		if body.Data.Status != "IN_PROGRESS" {
			t.Fatalf("expected IN_PROGRESS, got %s", body.Data.Status)
		}
		if body.Data.RemainingSeconds <= 0 {
			t.Fatal("countdown did not start")
		}
	})

	t.Run("AnswerOverStream", func(t *testing.T) {
		wsURL := strings.Replace(baseURL, "http", "ws", 1) +
			fmt.Sprintf("/ws/v1/attempts/%s/stream?token=%s", attemptID, candidateToken)
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("ws dial: %v", err)
		}
		defer conn.Close()

		send := func(payload map[string]interface{}) {
			if err := conn.WriteJSON(payload); err != nil {
				t.Fatalf("ws write: %v", err)
			}
			var reply struct {
				Event string `json:"event"`
			}
			if err := conn.ReadJSON(&reply); err != nil {
				t.Fatalf("ws read: %v", err)
			}
			if reply.Event == "error" {
				t.Fatalf("stream rejected %v", payload)
			}
		}

		send(map[string]interface{}{"action": "answer", "q_id": firstQID, "value": firstOption})
		send(map[string]interface{}{"action": "review", "q_id": firstQID, "marked": true})
		send(map[string]interface{}{"action": "visibility", "hidden": true})
		send(map[string]interface{}{"action": "visibility", "hidden": false})
		t.Logf("Answer and review saved over stream")
	})

	t.Run("StateSurvivesReload", func(t *testing.T) {
		resp, err := get(fmt.Sprintf("/api/v1/attempts/%s/state", attemptID), candidateToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
		var body stateBody
		decodeJSON(t, resp, &body)
		if got := body.Data.Answers[firstQID]; got != firstOption {
			t.Fatalf("answer lost across reload: got %q want %q", got, firstOption)
		}
		marked := false
		for _, qid := range body.Data.MarkedForReview {
			if qid == firstQID {
				marked = true
			}
		}
		if !marked {
			t.Fatal("review mark lost across reload")
		}
	})

	t.Run("Submit", func(t *testing.T) {
		resp, err := post(fmt.Sprintf("/api/v1/attempts/%s/submit", attemptID), nil, candidateToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
		var body stateBody
		decodeJSON(t, resp, &body)
		if body.Data.Status != "COMPLETED" {
			t.Fatalf("expected COMPLETED, got %s", body.Data.Status)
		}
	})

	t.Run("SubmittedAttemptIsGone", func(t *testing.T) {
		resp, err := get(fmt.Sprintf("/api/v1/attempts/%s/state", attemptID), candidateToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404 for purged attempt, got %d: %s", resp.StatusCode, readBody(resp))
		}
	})

	t.Run("RejectsMissingToken", func(t *testing.T) {
		resp, err := get(fmt.Sprintf("/api/v1/attempts/%s/state", attemptID), "")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	})
}

// Helpers

func post(path string, body interface{}, token string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest("POST", baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

func get(path string, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

func readBody(resp *http.Response) string {
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("json decode: %v", err)
	}
}
