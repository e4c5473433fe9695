package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"edrwatch/logger"
)

const (
	DefaultReputationURL     = "https://www.virustotal.com/api/v3"
	DefaultRequestsPerMinute = 4
)

type fileReport struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			LastAnalysisStats struct {
				Malicious  int `json:"malicious"`
				Suspicious int `json:"suspicious"`
				Harmless   int `json:"harmless"`
				Undetected int `json:"undetected"`
			} `json:"last_analysis_stats"`
		} `json:"attributes"`
	} `json:"data"`
}

// VirusTotal queries the v3 file report endpoint by hash.
type VirusTotal struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewVirusTotal builds a client limited to perMinute requests. A
// non-positive perMinute disables limiting.
func NewVirusTotal(baseURL, apiKey string, perMinute int, timeout time.Duration) (*VirusTotal, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("reputation API key is required")
	}
	if baseURL == "" {
		baseURL = DefaultReputationURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid reputation URL: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
	return &VirusTotal{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
	}, nil
}

func (vt *VirusTotal) Name() string { return "virustotal" }

// Check maps last_analysis_stats.malicious to a verdict. Hashes the service
// has never seen are unknown.
func (vt *VirusTotal) Check(ctx context.Context, fingerprint string) (Verdict, error) {
	if fingerprint == "" {
		return VerdictUnknown, nil
	}
	if err := vt.limiter.Wait(ctx); err != nil {
		return VerdictUnknown, fmt.Errorf("%w: %v", ErrRateLimited, err)
	}

	endpoint := vt.baseURL + "/files/" + url.PathEscape(fingerprint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return VerdictUnknown, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-apikey", vt.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := vt.client.Do(req)
	if err != nil {
		return VerdictUnknown, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		logger.Infof("Hash not found by reputation service: %s", fingerprint)
		return VerdictUnknown, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return VerdictUnknown, fmt.Errorf("reputation service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var report fileReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return VerdictUnknown, fmt.Errorf("decode report: %w", err)
	}
	stats := report.Data.Attributes.LastAnalysisStats
	logger.Infof("Reputation result for %s: %d malicious, %d suspicious, %d harmless, %d undetected",
		fingerprint, stats.Malicious, stats.Suspicious, stats.Harmless, stats.Undetected)
	if stats.Malicious > 0 {
		return VerdictMalicious, nil
	}
	return VerdictClean, nil
}

func (vt *VirusTotal) Close() {
	vt.client.CloseIdleConnections()
}
