package voice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{URL: server.URL, APIKey: "secret"}, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestCallCompleted(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/calls" || r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("unexpected request %s auth=%q", r.URL.Path, r.Header.Get("Authorization"))
		}
		var req CallRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if req.To != "+34911111111" || req.Language != "es-ES" {
			t.Errorf("unexpected call request: %+v", req)
		}
		_, _ = w.Write([]byte(`{"call_id":"c1","status":"completed","notes":"Mesa confirmada","schedule_deviation":"21:30 en vez de 21:00","confirmed_time":"21:30"}`))
	})

	res, err := client.Call(context.Background(), CallRequest{To: "+34911111111", Mission: "Reservar mesa"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if res.Status != CallCompleted || res.ConfirmedTime != "21:30" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCallUnreachable(t *testing.T) {
	t.Parallel()

	byStatus := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"call_id":"c2","status":"unreachable"}`))
	})
	if _, err := byStatus.Call(context.Background(), CallRequest{To: "+34000", Mission: "m"}); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}

	byCode := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`invalid number`))
	})
	if _, err := byCode.Call(context.Background(), CallRequest{To: "abc", Mission: "m"}); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}

	if _, err := byCode.Call(context.Background(), CallRequest{Mission: "m"}); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable for empty number, got %v", err)
	}
}

func TestCallServerError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := client.Call(context.Background(), CallRequest{To: "+34911111111", Mission: "m"})
	if err == nil || errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected generic error, got %v", err)
	}
}
