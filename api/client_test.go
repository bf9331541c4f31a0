/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	client_test.go
*/
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagspot/tagspot/common"
)

func TestEnvelopeOK(t *testing.T) {
	cases := []struct {
		body string
		want bool
	}{
		{`{"isSuccess": true, "status": "Ok"}`, true},
		{`{"metadata": {"code": "200"}}`, true},
		{`{"isSuccess": true, "status": "Error"}`, false},
		{`{"isSuccess": false, "status": "Ok"}`, false},
		{`{"metadata": {"code": "500"}}`, false},
		{`{}`, false},
	}
	for _, c := range cases {
		var env envelope
		require.NoError(t, json.Unmarshal([]byte(c.body), &env))
		assert.Equal(t, c.want, env.ok(), "body %s", c.body)
	}
}

func TestAdaptiveTimeout(t *testing.T) {
	assert.Equal(t, 15*time.Second, adaptiveTimeout(0))
	assert.Equal(t, 15*time.Second, adaptiveTimeout(49))
	assert.Equal(t, 17*time.Second, adaptiveTimeout(50))
	assert.Equal(t, 29*time.Second, adaptiveTimeout(350))
	assert.Equal(t, 60*time.Second, adaptiveTimeout(5000))
}

func TestUploadRecordsNoURLConfigured(t *testing.T) {
	c := NewClient(common.APIConfig{})
	assert.False(t, c.UploadRecords([]RecordPayload{{TagName: "x"}}))
	assert.False(t, c.UploadHealth(true, "Connected", 1, 2))
}

func TestUploadRecordsEnvelopes(t *testing.T) {
	for _, body := range []string{
		`{"isSuccess": true, "status": "Ok"}`,
		`{"metadata": {"code": "200"}}`,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "1", r.Header.Get("idempotency-Key"))
			w.Write([]byte(body))
		}))
		c := NewClient(common.APIConfig{RecordURL: srv.URL})
		assert.True(t, c.UploadRecords([]RecordPayload{{TagName: "x"}}), "body %s", body)
		srv.Close()
	}
}

func TestUploadRecordsFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"refused": func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"isSuccess": false, "status": "Error", "errors": ["bad site"]}`))
		},
		"http error": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
		"not json": func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("<html>proxy error</html>"))
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()
			c := NewClient(common.APIConfig{RecordURL: srv.URL})
			assert.False(t, c.UploadRecords([]RecordPayload{{TagName: "x"}}))
		})
	}
}

func TestTokenRefreshAndReuse(t *testing.T) {
	var tokenCalls int32
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		var grant map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&grant))
		assert.Equal(t, "client_credentials", grant["grant_type"])
		assert.Equal(t, "create:scans", grant["scope"])
		assert.Equal(t, "my-id", grant["client_id"])
		w.Write([]byte(`{"access_token": "tok-123", "expires_in": 3600}`))
	}))
	defer auth.Close()

	var gotAuth string
	records := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"isSuccess": true, "status": "Ok"}`))
	}))
	defer records.Close()

	c := NewClient(common.APIConfig{
		Auth0URL:  auth.URL,
		RecordURL: records.URL,
		ClientID:  "my-id",
	})

	require.True(t, c.UploadRecords([]RecordPayload{{TagName: "x"}}))
	assert.Equal(t, "Bearer tok-123", gotAuth)

	// a still-valid token is reused, not refreshed per request
	require.True(t, c.UploadRecords([]RecordPayload{{TagName: "y"}}))
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
}

func TestUploadProceedsUnauthenticatedOnRefreshFailure(t *testing.T) {
	var gotAuth *string
	records := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := r.Header.Get("Authorization")
		gotAuth = &v
		w.Write([]byte(`{"isSuccess": true, "status": "Ok"}`))
	}))
	defer records.Close()

	// no token endpoint configured at all
	c := NewClient(common.APIConfig{RecordURL: records.URL})
	assert.True(t, c.UploadRecords([]RecordPayload{{TagName: "x"}}))
	require.NotNil(t, gotAuth)
	assert.Empty(t, *gotAuth)
}

func TestUploadHealthPayload(t *testing.T) {
	var got healthPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"isSuccess": true, "status": "Ok"}`))
	}))
	defer srv.Close()

	c := NewClient(common.APIConfig{HealthURL: srv.URL, UserName: "TagspotUser"})
	require.True(t, c.UploadHealth(true, "External GPS Connected", 37.75, -122.45))

	assert.Equal(t, "TagspotUser", got.UserName)
	assert.Equal(t, "Connected", got.RFIDStatus)
	assert.Equal(t, "External GPS Connected", got.GPSStatus)
	assert.Equal(t, 37.75, got.Lat)
	assert.Equal(t, -122.45, got.Lng)
	assert.NotEmpty(t, got.DateTime)
}

func TestRevealedCredentialsUsedForGrant(t *testing.T) {
	secret := common.Conceal("s3cret")
	var gotSecret string
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var grant map[string]string
		_ = json.NewDecoder(r.Body).Decode(&grant)
		gotSecret = grant["client_secret"]
		w.Write([]byte(`{"access_token": "t"}`))
	}))
	defer auth.Close()

	c := NewClient(common.APIConfig{Auth0URL: auth.URL, ClientSecret: secret})
	require.True(t, c.RefreshToken())
	assert.Equal(t, "s3cret", gotSecret)
}
