package examapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStartAttemptSuccess(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody startRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"attempt_id": "att-42",
			"exam":       map[string]interface{}{"title": "Mock", "duration_minutes": 60},
			"questions": []map[string]interface{}{
				{"id": "q1", "options": []string{"x", "y"}},
			},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "svc-token", 5*time.Second)
	paper, err := c.StartAttempt(context.Background(), "exam-1", 99)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if gotPath != "/exams/exam-1/attempts" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer svc-token" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotBody.CandidateID != 99 {
		t.Errorf("candidate id = %d, want 99", gotBody.CandidateID)
	}
	if paper.AttemptID != "att-42" || paper.Exam.DurationMinutes != 60 || len(paper.Questions) != 1 {
		t.Errorf("paper = %+v", paper)
	}
}

func TestStartAttemptErrorKinds(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind LoadKind
		wantMsg  string
	}{
		{"not found", http.StatusNotFound, `{"error":"no such exam"}`, LoadNotFound, "no such exam"},
		{"forbidden", http.StatusForbidden, `{"message":"not registered"}`, LoadForbidden, "not registered"},
		{"server error", http.StatusInternalServerError, `boom`, LoadTransport, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewHTTPClient(srv.URL, "", 5*time.Second)
			_, err := c.StartAttempt(context.Background(), "exam-1", 1)

			var loadErr *LoadError
			if !errors.As(err, &loadErr) {
				t.Fatalf("err = %v, want *LoadError", err)
			}
			if loadErr.Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", loadErr.Kind, tt.wantKind)
			}
			if tt.wantMsg != "" && loadErr.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", loadErr.Message, tt.wantMsg)
			}
		})
	}
}

func TestStartAttemptTransportFailure(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1", "", 500*time.Millisecond)
	_, err := c.StartAttempt(context.Background(), "exam-1", 1)

	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("err = %v, want *LoadError", err)
	}
	if loadErr.Kind != LoadTransport {
		t.Errorf("kind = %s, want TRANSPORT", loadErr.Kind)
	}
}

func TestStartAttemptRejectsPaperWithoutID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"questions":[]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", 5*time.Second)
	_, err := c.StartAttempt(context.Background(), "exam-1", 1)
	var loadErr *LoadError
	if !errors.As(err, &loadErr) || loadErr.Kind != LoadTransport {
		t.Fatalf("err = %v, want transport LoadError", err)
	}
}

func TestSubmitAttempt(t *testing.T) {
	var gotPath string
	var gotBody submitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", 5*time.Second)
	entries := []SubmitEntry{{QuestionID: "q1", SelectedOption: "b", TimeTaken: 13}}
	if err := c.SubmitAttempt(context.Background(), "att-42", entries); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if gotPath != "/attempts/att-42/submit" {
		t.Errorf("path = %q", gotPath)
	}
	if len(gotBody.Entries) != 1 || gotBody.Entries[0].QuestionID != "q1" {
		t.Errorf("entries = %+v", gotBody.Entries)
	}
}

func TestSubmitAttemptFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"scoring backlog"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", 5*time.Second)
	err := c.SubmitAttempt(context.Background(), "att-42", nil)

	var submitErr *SubmitError
	if !errors.As(err, &submitErr) {
		t.Fatalf("err = %v, want *SubmitError", err)
	}
}
