/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	client.go: Batched uploader with client-credentials auth
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tagspot/tagspot/common"
)

const (
	tokenTimeout = 10 * time.Second
	// refresh a token this long before it actually expires so uploads
	// never block on a refresh mid-cycle
	refreshEarly = 2 * time.Minute
)

// Client uploads health reports and record batches. Every upload method
// returns a plain bool: any failure category (timeout, HTTP status, network,
// malformed body) is logged and swallowed, never raised to the caller. When
// the token refresh fails uploads proceed unauthenticated and the server
// decides.
type Client struct {
	httpClient *http.Client

	mu             sync.Mutex
	cfg            common.APIConfig
	clientID       string
	clientSecret   string
	token          string
	tokenExpiresAt time.Time
}

func NewClient(cfg common.APIConfig) *Client {
	c := &Client{httpClient: &http.Client{}}
	c.UpdateConfig(cfg)
	return c
}

// UpdateConfig re-caches config values after a reload. Credentials stored
// obfuscated are revealed here, once, not on every request.
func (c *Client) UpdateConfig(cfg common.APIConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
	c.clientID = common.Reveal(cfg.ClientID)
	c.clientSecret = common.Reveal(cfg.ClientSecret)
}

func (c *Client) UserName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.UserName
}

func (c *Client) config() common.APIConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// RefreshToken runs the client-credentials grant. On any failure the
// previous token (if any) is left untouched.
func (c *Client) RefreshToken() bool {
	c.mu.Lock()
	authURL := c.cfg.Auth0URL
	body := map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"audience":      c.cfg.Audience,
		"grant_type":    "client_credentials",
		"scope":         "create:scans",
	}
	c.mu.Unlock()

	if authURL == "" {
		return false
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), tokenTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, authURL, bytes.NewReader(payload))
	if err != nil {
		common.Log().Errorw("token request build failed", "error", err)
		return false
	}
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		common.Log().Errorw("token refresh failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		common.Log().Errorw("token refresh failed", "status", resp.StatusCode)
		return false
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil || tok.AccessToken == "" {
		common.Log().Errorw("token response malformed", "error", err)
		return false
	}

	expiresIn := tok.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}

	c.mu.Lock()
	c.token = tok.AccessToken
	c.tokenExpiresAt = time.Now().Add(time.Duration(expiresIn)*time.Second - time.Minute)
	c.mu.Unlock()
	common.Log().Debugw("access token refreshed")
	return true
}

// applyHeaders refreshes the token when it is missing or inside the early
// refresh window, then sets the standard upload headers.
func (c *Client) applyHeaders(req *http.Request) {
	c.mu.Lock()
	needRefresh := c.token == "" || !time.Now().Before(c.tokenExpiresAt.Add(-refreshEarly))
	c.mu.Unlock()

	if needRefresh {
		if !c.RefreshToken() {
			common.Log().Warnw("token refresh failed, proceeding without authentication")
		}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("accept", "application/json")
	req.Header.Set("idempotency-Key", "1")

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// adaptiveTimeout scales with the batch size: 15s base plus 2s per 50
// records, capped at 60s, so big batches on a slow cellular link still get
// through.
func adaptiveTimeout(recordCount int) time.Duration {
	secs := 15 + (recordCount/50)*2
	if secs < 15 {
		secs = 15
	}
	if secs > 60 {
		secs = 60
	}
	return time.Duration(secs) * time.Second
}

// postJSON uploads body to url and reports whether the server's envelope
// signalled success. Failure categories are distinguished in logs only.
func (c *Client) postJSON(url string, body interface{}, timeout time.Duration, what string) bool {
	payload, err := json.Marshal(body)
	if err != nil {
		common.Log().Errorw("upload payload marshal failed", "what", what, "error", err)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		common.Log().Errorw("upload request build failed", "what", what, "error", err)
		return false
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			common.Log().Errorw("upload timed out", "what", what, "timeout", timeout.String(), "bytes", len(payload))
		} else {
			common.Log().Errorw("upload network error", "what", what, "error", err)
		}
		return false
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		common.Log().Errorw("upload response read failed", "what", what, "error", err)
		return false
	}

	if resp.StatusCode >= 400 {
		common.Log().Errorw("upload rejected", "what", what, "status", resp.StatusCode, "body", string(raw))
		return false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		common.Log().Errorw("upload response not json", "what", what, "error", err)
		return false
	}
	if !env.ok() {
		common.Log().Warnw("upload refused by server", "what", what,
			"isSuccess", env.IsSuccess, "status", env.Status,
			"errors", string(env.Errors), "validationErrors", string(env.ValidationErrors))
		return false
	}
	return true
}

// UploadHealth posts the periodic device status report. Returns false
// immediately when no health endpoint is configured.
func (c *Client) UploadHealth(rfidUp bool, gpsStatusText string, lat, lon float64) bool {
	cfg := c.config()
	if cfg.HealthURL == "" {
		return false
	}

	rfidStatus := "Disconnected"
	if rfidUp {
		rfidStatus = "Connected"
	}
	payload := healthPayload{
		UserName:   cfg.UserName,
		RFIDStatus: rfidStatus,
		GPSStatus:  gpsStatusText,
		MACAddress: common.MACAddressDashed(),
		Lat:        lat,
		Lng:        lon,
		DateTime:   common.FormatLocalTime(time.Now()),
	}
	ok := c.postJSON(cfg.HealthURL, payload, tokenTimeout, "health")
	if ok {
		common.Log().Debugw("health uploaded", "user", cfg.UserName, "rfid", rfidStatus, "gps", gpsStatusText)
	}
	return ok
}

// UploadRecords posts one batch of scans. Returns false immediately when no
// record endpoint is configured.
func (c *Client) UploadRecords(batch []RecordPayload) bool {
	cfg := c.config()
	if cfg.RecordURL == "" {
		return false
	}

	timeout := adaptiveTimeout(len(batch))
	common.Log().Debugw("uploading records", "count", len(batch), "timeout", timeout.String())

	ok := c.postJSON(cfg.RecordURL, batch, timeout, "records")
	if ok {
		common.Log().Debugw("records uploaded", "count", len(batch), "user", cfg.UserName)
	}
	return ok
}
