package qstash

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPublish(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/publish/https://hooks.example.com/reservations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		if r.Header.Get("Upstash-Deduplication-Id") != "s1:reservation.confirmed" {
			t.Errorf("unexpected dedup id %q", r.Header.Get("Upstash-Deduplication-Id"))
		}
		if r.Header.Get("Upstash-Retries") != "3" {
			t.Errorf("unexpected retries %q", r.Header.Get("Upstash-Retries"))
		}
		if r.Header.Get("Upstash-Forward-X-Event-Type") != "reservation.confirmed" {
			t.Errorf("missing forwarded header")
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["type"] != "reservation.confirmed" {
			t.Errorf("unexpected body %v err=%v", body, err)
		}
		_, _ = w.Write([]byte(`{"messageId":"msg_1"}`))
	}))
	t.Cleanup(server.Close)

	client := MustNew(Config{URL: server.URL, Token: "tok", Destination: "https://hooks.example.com/reservations", Retries: 3})
	id, err := client.Publish(context.Background(), map[string]string{"type": "reservation.confirmed"}, PublishOptions{
		DeduplicationID: "s1:reservation.confirmed",
		Headers:         map[string]string{"X-Event-Type": "reservation.confirmed"},
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if id != "msg_1" {
		t.Fatalf("unexpected message id %q", id)
	}
}

func TestPublishHTTPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid token"}`))
	}))
	t.Cleanup(server.Close)

	client := MustNew(Config{URL: server.URL, Token: "bad", Destination: "https://hooks.example.com/x"})
	if _, err := client.Publish(context.Background(), map[string]string{}, PublishOptions{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewClientValidates(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{URL: "https://qstash.upstash.io", Destination: "https://x.example.com"}); err == nil {
		t.Fatal("expected error without token")
	}
	if _, err := NewClient(Config{URL: "https://qstash.upstash.io", Token: "t", Destination: "not a url"}); err == nil {
		t.Fatal("expected error for bad destination")
	}
}
