package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// commandServer records the last Redis command and answers with result.
func commandServer(t *testing.T, result string, got *[]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			t.Errorf("decode command: %v", err)
		}
		fmt.Fprintf(w, `{"result":%s}`, result)
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestUpstashStore(t *testing.T, server *httptest.Server, opts ...StoreOption) *UpstashRedisStore {
	t.Helper()
	opts = append([]StoreOption{WithHTTPClient(server.Client())}, opts...)
	store, err := NewUpstashRedisStore(UpstashRedisConfig{URL: server.URL, Token: "token"}, opts...)
	if err != nil {
		t.Fatalf("NewUpstashRedisStore() error = %v", err)
	}
	return store
}

func quoted(t *testing.T, payload []byte) string {
	t.Helper()
	encoded, err := json.Marshal(string(payload))
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return string(encoded)
}

func TestUpstashRedisStoreRedisKey(t *testing.T) {
	t.Parallel()

	store := &UpstashRedisStore{keyPrefix: defaultStoreKeyPrefix}
	got, err := store.redisKey(" abc ")
	if err != nil {
		t.Fatalf("redisKey() error = %v", err)
	}
	if got != "concierge:session:abc" {
		t.Fatalf("redisKey() = %q, want %q", got, "concierge:session:abc")
	}
	if _, err := store.redisKey("   "); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("redisKey() error = %v, want ErrInvalidSession", err)
	}
}

func TestUpstashRedisStoreSaveWritesEnvelope(t *testing.T) {
	t.Parallel()

	var got []any
	store := newTestUpstashStore(t, commandServer(t, `"OK"`, &got), WithTTL(90*time.Second), WithKeyPrefix("test:"))

	if err := store.Save(context.Background(), sampleSession("session-1")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if len(got) != 5 || got[0] != "SET" || got[1] != "test:session:session-1" || got[3] != "EX" || got[4] != float64(90) {
		t.Fatalf("unexpected command: %#v", got)
	}

	var env sessionEnvelope
	if err := json.Unmarshal([]byte(got[2].(string)), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Version != payloadVersion || len(env.Session) == 0 {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestUpstashRedisStoreSaveWithoutTTL(t *testing.T) {
	t.Parallel()

	var got []any
	store := newTestUpstashStore(t, commandServer(t, `"OK"`, &got), WithTTL(0))

	if err := store.Save(context.Background(), NewSession("s", time.Now())); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected SET without expiry, got %#v", got)
	}
}

func TestUpstashRedisStoreLoadSlidesTTL(t *testing.T) {
	t.Parallel()

	payload, err := encodeSession(sampleSession("session-2"))
	if err != nil {
		t.Fatalf("encodeSession() error = %v", err)
	}
	var got []any
	store := newTestUpstashStore(t, commandServer(t, quoted(t, payload), &got), WithTTL(time.Hour))

	st, err := store.Load(context.Background(), "session-2")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if st.Knowledge.Intent.Location != "Navalcarnero" || len(st.Conversation) != 1 {
		t.Fatalf("Load() lost state: %#v", st)
	}
	if len(got) != 4 || got[0] != "GETEX" || got[1] != "concierge:session:session-2" || got[3] != float64(3600) {
		t.Fatalf("unexpected command: %#v", got)
	}
}

func TestUpstashRedisStoreLoadLegacyPayload(t *testing.T) {
	t.Parallel()

	seed := NewSession("session-3", time.Now().UTC())
	seed.AppendTurn(SpeakerUser, "Busco restaurante en Navalcarnero", time.Now().UTC())
	bare, err := json.Marshal(seed)
	if err != nil {
		t.Fatalf("marshal seed: %v", err)
	}
	var got []any
	store := newTestUpstashStore(t, commandServer(t, quoted(t, bare), &got), WithTTL(0))

	st, err := store.Load(context.Background(), "session-3")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if st.SessionID != "session-3" || len(st.Conversation) != 1 {
		t.Fatalf("unexpected session %#v", st)
	}
	if got[0] != "GET" {
		t.Fatalf("expected plain GET without ttl, got %#v", got)
	}
}

func TestUpstashRedisStoreLoadRejectsNewerPayload(t *testing.T) {
	t.Parallel()

	var got []any
	newer := []byte(`{"v":99,"session":{"session_id":"s"}}`)
	store := newTestUpstashStore(t, commandServer(t, quoted(t, newer), &got))

	if _, err := store.Load(context.Background(), "s"); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("Load() error = %v, want ErrUnsupportedVersion", err)
	}
}

func TestUpstashRedisStoreLoadMissing(t *testing.T) {
	t.Parallel()

	var got []any
	store := newTestUpstashStore(t, commandServer(t, `null`, &got))

	if _, err := store.Load(context.Background(), "missing"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load() error = %v, want ErrStateNotFound", err)
	}
}

func TestUpstashRedisStoreDelete(t *testing.T) {
	t.Parallel()

	var got []any
	store := newTestUpstashStore(t, commandServer(t, `1`, &got))

	if err := store.Delete(context.Background(), "session-4"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(got) != 2 || got[0] != "DEL" || got[1] != "concierge:session:session-4" {
		t.Fatalf("unexpected command: %#v", got)
	}
}

func TestUpstashRedisStoreRedisError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"WRONGPASS invalid password"}`)
	}))
	t.Cleanup(server.Close)
	store := newTestUpstashStore(t, server)

	if err := store.Delete(context.Background(), "s"); err == nil {
		t.Fatal("expected redis error")
	}
}

func TestUpstashRedisStoreSaveRejectsEmptySession(t *testing.T) {
	t.Parallel()

	store := &UpstashRedisStore{}
	if err := store.Save(context.Background(), NewSession(" ", time.Now())); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("Save() error = %v, want ErrInvalidSession", err)
	}
	if err := store.Save(context.Background(), nil); !errors.Is(err, ErrNilSessionState) {
		t.Fatalf("Save(nil) error = %v, want ErrNilSessionState", err)
	}
}

func TestTTLSecondsRoundsUp(t *testing.T) {
	t.Parallel()

	if got := ttlSeconds(1500 * time.Millisecond); got != 2 {
		t.Fatalf("ttlSeconds(1.5s) = %d, want 2", got)
	}
	if got := ttlSeconds(time.Millisecond); got != 1 {
		t.Fatalf("ttlSeconds(1ms) = %d, want 1", got)
	}
}
