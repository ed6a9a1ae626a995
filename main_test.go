package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dealhunter-base/pkg/api"
	"dealhunter-base/pkg/config"
)

func TestRunHandler(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		runInProgress  bool
		expectedStatus int
		expectedDetail string
	}{
		{
			name:           "Wrong method",
			method:         "GET",
			expectedStatus: http.StatusMethodNotAllowed,
			expectedDetail: "Use POST to trigger a run.",
		},
		{
			name:           "Run already in progress",
			method:         "POST",
			runInProgress:  true,
			expectedStatus: http.StatusConflict,
			expectedDetail: "A run is already in progress.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &app{cfg: config.Config{}}
			a.running.Store(tt.runInProgress)

			req, err := http.NewRequest(tt.method, "/run", nil)
			if err != nil {
				t.Fatal(err)
			}

			rr := httptest.NewRecorder()
			http.HandlerFunc(a.runHandler).ServeHTTP(rr, req)

			if status := rr.Code; status != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v",
					status, tt.expectedStatus)
			}

			expectedContentType := "application/problem+json"
			if contentType := rr.Header().Get("Content-Type"); contentType != expectedContentType {
				t.Errorf("handler returned wrong content type: got %v want %v",
					contentType, expectedContentType)
			}

			var pd api.ProblemDetails
			if err := json.Unmarshal(rr.Body.Bytes(), &pd); err != nil {
				t.Errorf("handler returned invalid JSON: %v. Body: %s", err, rr.Body.String())
			}
			if pd.Status != tt.expectedStatus {
				t.Errorf("JSON status mismatch: got %v want %v", pd.Status, tt.expectedStatus)
			}
			if !strings.Contains(pd.Detail, tt.expectedDetail) {
				t.Errorf("JSON detail mismatch: got %q, want substring %q", pd.Detail, tt.expectedDetail)
			}
		})
	}
}

func TestHealthHandler(t *testing.T) {
	a := &app{cfg: config.Config{}}

	req, err := http.NewRequest("GET", "/healthz", nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	http.HandlerFunc(a.healthHandler).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("health returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("health returned invalid JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("health status mismatch: got %v", body["status"])
	}
	if body["run_in_progress"] != false {
		t.Errorf("expected run_in_progress false, got %v", body["run_in_progress"])
	}
}

func TestRootHandlerUnknownPath(t *testing.T) {
	a := &app{cfg: config.Config{}}

	req, err := http.NewRequest("GET", "/nope", nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	http.HandlerFunc(a.rootHandler).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown path, got %v", rr.Code)
	}
}
