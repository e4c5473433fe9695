package escalation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func reportServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if r.Header.Get("x-apikey") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		hash := strings.TrimPrefix(r.URL.Path, "/files/")
		switch hash {
		case "bad":
			fmt.Fprint(w, `{"data":{"id":"bad","attributes":{"last_analysis_stats":{"malicious":12,"undetected":50}}}}`)
		case "good":
			fmt.Fprint(w, `{"data":{"id":"good","attributes":{"last_analysis_stats":{"malicious":0,"harmless":70}}}}`)
		case "broken":
			fmt.Fprint(w, `{"data":`)
		case "boom":
			http.Error(w, "upstream exploded", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestVirusTotalVerdicts(t *testing.T) {
	srv := reportServer(t, nil)
	defer srv.Close()
	vt, err := NewVirusTotal(srv.URL+"/", "secret", 0, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer vt.Close()

	cases := []struct {
		hash    string
		want    Verdict
		wantErr bool
	}{
		{"bad", VerdictMalicious, false},
		{"good", VerdictClean, false},
		{"never-seen", VerdictUnknown, false},
		{"", VerdictUnknown, false},
		{"broken", VerdictUnknown, true},
		{"boom", VerdictUnknown, true},
	}
	for _, tc := range cases {
		got, err := vt.Check(context.Background(), tc.hash)
		if (err != nil) != tc.wantErr {
			t.Errorf("%q: unexpected error state %v", tc.hash, err)
		}
		if got != tc.want {
			t.Errorf("%q: verdict %v, want %v", tc.hash, got, tc.want)
		}
	}
}

func TestVirusTotalRequiresKey(t *testing.T) {
	if _, err := NewVirusTotal("", " ", 4, 0); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestVirusTotalRejectsBadKey(t *testing.T) {
	srv := reportServer(t, nil)
	defer srv.Close()
	vt, err := NewVirusTotal(srv.URL, "wrong", 0, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if v, err := vt.Check(context.Background(), "bad"); err == nil || v != VerdictUnknown {
		t.Fatalf("expected unknown with error, got %v, %v", v, err)
	}
}

func TestVirusTotalRateLimited(t *testing.T) {
	var hits atomic.Int64
	srv := reportServer(t, &hits)
	defer srv.Close()
	vt, err := NewVirusTotal(srv.URL, "secret", 1, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := vt.Check(context.Background(), "good"); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = vt.Check(ctx, "good")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("limited request must not reach the server, hits=%d", hits.Load())
	}
}

func TestVerdictJSON(t *testing.T) {
	b, err := VerdictMalicious.MarshalJSON()
	if err != nil || string(b) != `"malicious"` {
		t.Fatalf("unexpected json %s, %v", b, err)
	}
}
