package apiclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mivvo/internal/apiclient"
)

func newTestClient(t *testing.T, handler http.Handler) *apiclient.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := apiclient.New(server.URL, "secret", "owner-1")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestClientSendsAuthAndOwnerHeaders(t *testing.T) {
	var gotAuth, gotOwner string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotOwner = r.Header.Get("X-Owner-ID")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"account_id":"owner-1","balance":"50"}`))
	}))

	balance, err := client.Balance(context.Background())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Balance != "50" {
		t.Fatalf("balance = %q, want 50", balance.Balance)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotOwner != "owner-1" {
		t.Fatalf("owner header = %q", gotOwner)
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":"insufficient funds"}`))
	}))

	_, err := client.RequestAnalyze(context.Background(), "r-1")
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", apiErr.Status)
	}
	if apiErr.Message != "insufficient funds" {
		t.Fatalf("message = %q", apiErr.Message)
	}
}

func TestClientWrapsTransportFailures(t *testing.T) {
	client, err := apiclient.New("127.0.0.1:1", "", "owner-1")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Health(context.Background())
	if !errors.Is(err, apiclient.ErrDaemonUnavailable) {
		t.Fatalf("err = %v, want ErrDaemonUnavailable", err)
	}
}

func TestClientUploadsRawBody(t *testing.T) {
	var gotKind, gotContentType string
	var gotLen int64
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKind = r.URL.Query().Get("kind")
		gotContentType = r.Header.Get("Content-Type")
		gotLen = r.ContentLength
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1,"report_id":"r-1","kind":"image","size":4}`))
	}))

	asset, err := client.UploadAsset(context.Background(), "r-1", "image", []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if asset.ID != 1 || asset.Kind != "image" {
		t.Fatalf("asset = %+v", asset)
	}
	if gotKind != "image" || gotContentType != "application/octet-stream" || gotLen != 4 {
		t.Fatalf("kind=%q contentType=%q len=%d", gotKind, gotContentType, gotLen)
	}
}
