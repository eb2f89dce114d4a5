package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joseph-ayodele/ocrbatch/internal/ocr"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/v1beta/",
		Model:   "gemini-test",
		Prompt:  "read it",
		Timeout: 5 * time.Second,
	}, slog.New(slog.DiscardHandler))
	return c, srv
}

func TestRecognizeSuccess(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-test:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		var req generateRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		parts := req.Contents[0].Parts
		if parts[0].Text != "read it" {
			t.Errorf("prompt = %q", parts[0].Text)
		}
		data, _ := base64.StdEncoding.DecodeString(parts[1].InlineData.Data)
		if string(data) != "jpegbytes" || parts[1].InlineData.MIMEType != "image/jpeg" {
			t.Errorf("inline data = %q (%s)", data, parts[1].InlineData.MIMEType)
		}
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"Hello "},{"text":"world\n"}]},"finishReason":"STOP"}]}`)
	})

	out := c.Recognize(context.Background(), []byte("jpegbytes"), "1")
	if out.Kind != ocr.KindSuccess || out.Text != "Hello world" {
		t.Fatalf("Recognize() = %+v", out)
	}
}

func TestRecognizeClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ocr.Kind
	}{
		{"rate limit", 429, `{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`, ocr.KindRateLimited},
		{"bad key", 400, `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`, ocr.KindFatal},
		{"overloaded", 503, `{"error":{"code":503,"message":"The model is overloaded.","status":"UNAVAILABLE"}}`, ocr.KindTransient},
		{"internal", 500, `{"error":{"code":500,"message":"An internal error has occurred.","status":"INTERNAL"}}`, ocr.KindTransient},
		{"html gateway page", 502, `<html>bad gateway</html>`, ocr.KindTransient},
		{"other", 404, `{"error":{"code":404,"message":"models/x is not found","status":"NOT_FOUND"}}`, ocr.KindEmpty},
		{"blank text", 200, `{"candidates":[{"content":{"parts":[{"text":"   "}]}}]}`, ocr.KindEmpty},
		{"blocked", 200, `{"promptFeedback":{"blockReason":"SAFETY"}}`, ocr.KindEmpty},
		{"garbage", 200, `not json`, ocr.KindEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			if got := c.Recognize(context.Background(), []byte("x"), "1"); got.Kind != tt.want {
				t.Errorf("Recognize() kind = %v, want %v (reason %q)", got.Kind, tt.want, got.Reason)
			}
		})
	}
}

func TestRecognizeMakesExactlyOneRequest(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(503)
	})

	out := c.Recognize(context.Background(), []byte("x"), "1")
	if out.Kind != ocr.KindTransient {
		t.Errorf("kind = %v", out.Kind)
	}
	if calls.Load() != 1 {
		t.Errorf("requests = %d, want exactly 1", calls.Load())
	}
}

func TestRecognizeTransportFailureIsTransient(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	out := c.Recognize(context.Background(), []byte("x"), "1")
	if out.Kind != ocr.KindTransient {
		t.Errorf("kind = %v (%s), want transient", out.Kind, out.Reason)
	}
	if strings.TrimSpace(out.Reason) == "" {
		t.Errorf("expected a transport reason, got %q", out.Reason)
	}
}

func TestRecognizeTruncatedBodyIsTransient(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		defer conn.Close()
		_, _ = io.WriteString(conn, "HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: 500\r\n\r\n"+
			`{"candidates":[{"content":{"parts":[{"text":"cut`)
	})

	out := c.Recognize(context.Background(), []byte("x"), "1")
	if out.Kind != ocr.KindTransient {
		t.Errorf("kind = %v (%s), want transient", out.Kind, out.Reason)
	}
}

func TestRecognizeTimeoutIsTransient(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	c.cfg.Timeout = 50 * time.Millisecond
	c.http.Timeout = 0

	if out := c.Recognize(context.Background(), []byte("x"), "1"); out.Kind != ocr.KindTransient {
		t.Errorf("kind = %v (%s), want transient", out.Kind, out.Reason)
	}
}
