package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testImage() image.Image {
	return image.NewGray(image.Rect(0, 0, 4, 4))
}

func newTestMistral(t *testing.T, url string) *MistralEngine {
	t.Helper()
	e, err := NewMistral(MistralOptions{
		APIKey:     "test-key",
		URL:        url,
		Retries:    2,
		RetryDelay: time.Millisecond,
		Timeout:    5 * time.Second,
	})
	if err != nil {
		t.Fatalf("new mistral: %v", err)
	}
	return e
}

func TestMistralRecognizeSendsImageAndStripsMarkdown(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var body struct {
			Model    string `json:"model"`
			Document struct {
				Type     string `json:"type"`
				ImageURL string `json:"image_url"`
			} `json:"document"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Document.Type != "image_url" || !strings.HasPrefix(body.Document.ImageURL, "data:image/png;base64,") {
			t.Errorf("unexpected document %+v", body.Document)
		}
		if body.Model != defaultMistralModel {
			t.Errorf("unexpected model %q", body.Model)
		}
		_ = json.NewEncoder(w).Encode(OCRResponse{Pages: []OCRPage{{Index: 0, Markdown: "# Title\n\nSome **bold** text."}}})
	}))
	defer srv.Close()

	text, err := newTestMistral(t, srv.URL).Recognize(context.Background(), testImage(), "eng")
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if text != "Title\n\nSome bold text." {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestMistralRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(OCRResponse{Pages: []OCRPage{{Markdown: "ok"}}})
	}))
	defer srv.Close()

	text, err := newTestMistral(t, srv.URL).Recognize(context.Background(), testImage(), "eng")
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if text != "ok" || calls.Load() != 3 {
		t.Fatalf("expected success on third call, got %q after %d calls", text, calls.Load())
	}
}

func TestMistralDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"auth"}}`))
	}))
	defer srv.Close()

	_, err := newTestMistral(t, srv.URL).Recognize(context.Background(), testImage(), "eng")
	var oe *Error
	if !errors.As(err, &oe) || oe.Engine != "mistral" {
		t.Fatalf("expected *Error, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "bad key" {
		t.Fatalf("expected wrapped APIError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("client errors must not be retried, got %d calls", calls.Load())
	}
}

func TestMistralEmptyResponseFails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pages":[]}`))
	}))
	defer srv.Close()

	e := newTestMistral(t, srv.URL)
	e.opts.Retries = 0
	if _, err := e.Recognize(context.Background(), testImage(), "eng"); err == nil {
		t.Fatalf("expected error for empty page list")
	}
}

func TestMistralConcurrencyLimit(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		_ = json.NewEncoder(w).Encode(OCRResponse{Pages: []OCRPage{{Markdown: "x"}}})
	}))
	defer srv.Close()

	e, err := NewMistral(MistralOptions{APIKey: "k", URL: srv.URL, MaxConcurrent: 2})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 6)
	for i := 0; i < 6; i++ {
		go func() {
			_, err := e.Recognize(context.Background(), testImage(), "eng")
			done <- err
		}()
	}
	for i := 0; i < 6; i++ {
		if err := <-done; err != nil {
			t.Fatalf("recognize: %v", err)
		}
	}
	if peak.Load() > 2 {
		t.Fatalf("expected at most 2 concurrent requests, saw %d", peak.Load())
	}
}

func TestNewMistralRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := NewMistral(MistralOptions{}); err == nil {
		t.Fatalf("expected missing key error")
	}
}
