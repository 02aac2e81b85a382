package httpx

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const acceptEncodingGzip = "gzip"

func TestAcceptsGzip(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"gzip", true},
		{"br, GZIP;q=0.8", true},
		{"gzip;q=0", false},
		{"gzip; q=0.000", false},
		{"x-gzip", false},
		{"deflate", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := acceptsGzip(tt.header); got != tt.want {
			t.Errorf("acceptsGzip(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestCompression(t *testing.T) {
	payload := strings.Repeat(`{"message":"Sending batch 1 of 4"}`, 200)
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, payload)
	})

	tests := []struct {
		name           string
		acceptEncoding string
		method         string
		upgrade        bool
		expectGzip     bool
	}{
		{"client accepts gzip", "gzip, deflate", http.MethodGet, false, true},
		{"gzip disabled by q=0", "gzip;q=0", http.MethodGet, false, false},
		{"client does not accept gzip", "deflate", http.MethodGet, false, false},
		{"no accept-encoding header", "", http.MethodGet, false, false},
		{"head request", acceptEncodingGzip, http.MethodHead, false, false},
		{"websocket upgrade", acceptEncodingGzip, http.MethodGet, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/dispatch/logs", nil)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			if tt.upgrade {
				req.Header.Set("Upgrade", "websocket")
			}
			rec := httptest.NewRecorder()
			Compression(CompressionConfig{})(handler).ServeHTTP(rec, req)

			resp := rec.Result()
			defer resp.Body.Close()

			gotGzip := resp.Header.Get("Content-Encoding") == "gzip"
			if gotGzip != tt.expectGzip {
				t.Fatalf("expected gzip=%v, got Content-Encoding %q", tt.expectGzip, resp.Header.Get("Content-Encoding"))
			}
			if !gotGzip || tt.method == http.MethodHead {
				return
			}
			gr, err := gzip.NewReader(resp.Body)
			if err != nil {
				t.Fatalf("failed to create gzip reader: %v", err)
			}
			defer gr.Close()
			body, err := io.ReadAll(gr)
			if err != nil {
				t.Fatalf("failed to read decompressed body: %v", err)
			}
			if string(body) != payload {
				t.Fatal("decompressed content mismatch")
			}
		})
	}
}

func TestCompressionSkipsNoContentAndBinary(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
	}{
		{"204 No Content", http.StatusNoContent, ""},
		{"304 Not Modified", http.StatusNotModified, ""},
		{"binary body", http.StatusOK, "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				}
				w.WriteHeader(tt.status)
			})
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Accept-Encoding", acceptEncodingGzip)
			rec := httptest.NewRecorder()
			Compression(CompressionConfig{Level: 6})(handler).ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rec.Code)
			}
			if rec.Header().Get("Content-Encoding") == "gzip" {
				t.Fatal("expected response to stay uncompressed")
			}
		})
	}
}
