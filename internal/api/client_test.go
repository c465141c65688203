package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestClientGetDecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/books" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count": 3}`))
	}))
	defer srv.Close()

	var result struct {
		Count int `json:"count"`
	}
	client := NewClient(srv.URL)
	if err := client.Get(context.Background(), "/api/books", &result); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if result.Count != 3 {
		t.Errorf("count = %d, want 3", result.Count)
	}
}

func TestClientPostSendsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["subject"] != "Physics" {
			t.Errorf("subject = %v, want Physics", body["subject"])
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	err := client.Post(context.Background(), "/api/books/b1/retry-section",
		map[string]string{"subject": "Physics"}, nil)
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
}

func TestClientErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantSub string
	}{
		{
			name:    "structured error envelope",
			status:  http.StatusNotFound,
			body:    `{"error": "book not found"}`,
			wantSub: "server error (404): book not found",
		},
		{
			name:    "plain text error body",
			status:  http.StatusInternalServerError,
			body:    "something broke",
			wantSub: "server error (500): something broke",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(srv.URL)
			err := client.Get(context.Background(), "/whatever", nil)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.wantSub)
			}
		})
	}
}

func TestClientPostFile(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "paper.pdf")
	if err := os.WriteFile(pdfPath, []byte("%PDF-1.4 test"), 0o644); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "paper.pdf" {
			t.Errorf("filename = %q, want paper.pdf", hdr.Filename)
		}
		if got := r.FormValue("exam_name"); got != "NEET" {
			t.Errorf("exam_name = %q, want NEET", got)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"queued": true}`))
	}))
	defer srv.Close()

	var result struct {
		Queued bool `json:"queued"`
	}
	client := NewClient(srv.URL)
	err := client.PostFile(context.Background(), "/api/books/upload", "file", pdfPath,
		map[string]string{"exam_name": "NEET"}, &result)
	if err != nil {
		t.Fatalf("PostFile failed: %v", err)
	}
	if !result.Queued {
		t.Error("queued = false, want true")
	}
}

func TestClientPostFileMissingFile(t *testing.T) {
	client := NewClient("http://localhost:0")
	err := client.PostFile(context.Background(), "/api/books/upload", "file",
		filepath.Join(t.TempDir(), "missing.pdf"), nil, nil)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "failed to open file") {
		t.Errorf("error = %q, want open-file failure", err.Error())
	}
}
