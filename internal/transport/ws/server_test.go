package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"jobtrack.gg/internal/jobs"
	"jobtrack.gg/internal/leaderboard"
	"jobtrack.gg/internal/protocol"
	"jobtrack.gg/internal/tracks"
)

type memDB struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func (m *memDB) LoadProfile(_ context.Context, actorID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blobs[actorID], nil
}

func (m *memDB) SaveProfile(_ context.Context, actorID string, data []byte, _ []jobs.TrackRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[actorID] = data
	return nil
}

type noSource struct{}

func (noSource) TopActors(context.Context, string, int) ([]string, error) { return nil, nil }
func (noSource) CountActors(context.Context, string) (int, error)         { return 0, nil }

func newTestServer(t *testing.T) (*httptest.Server, *jobs.Manager) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "miner.yaml"), []byte("whitelist: [STONE]\n"), 0o644); err != nil {
		t.Fatalf("write track: %v", err)
	}
	set, err := tracks.Load(dir, 10, nil, nil)
	if err != nil {
		t.Fatalf("load tracks: %v", err)
	}
	provider := tracks.NewProvider(set)

	mgr := jobs.NewManager(&memDB{blobs: map[string][]byte{}}, logger)
	hub := NewHub()
	stats := jobs.NewDebugStats(hub, hub)
	effects := jobs.NewEffectQueue(nil, hub, nil, logger)
	t.Cleanup(effects.Close)
	proc := jobs.NewProcessor(mgr, provider, stats, effects)
	lb := leaderboard.NewCache(noSource{}, func() []string { return provider.Current().IDs() }, 10, logger)

	srv := NewServer(hub, proc, mgr, provider, lb, stats, 2, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, mgr
}

func dialActor(t *testing.T, url, actorID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	hello, err := json.Marshal(protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ActorName:       "steve",
		ActorID:         actorID,
	})
	if err != nil {
		t.Fatalf("marshal hello: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(msg, &welcome); err != nil || welcome.Type != protocol.TypeWelcome {
		t.Fatalf("welcome: %s (%v)", msg, err)
	}
	return conn
}

func waitUnloaded(t *testing.T, mgr *jobs.Manager, actorID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := mgr.Get(actorID); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("profile for %s never unloaded", actorID)
}

func TestServer_DisconnectUnloads(t *testing.T) {
	ts, mgr := newTestServer(t)

	conn := dialActor(t, ts.URL, "actor-1")
	if _, ok := mgr.Get("actor-1"); !ok {
		t.Fatalf("profile not loaded after handshake")
	}
	conn.Close()
	waitUnloaded(t, mgr, "actor-1")
}

func TestServer_ReconnectKeepsLiveSessionLoaded(t *testing.T) {
	ts, mgr := newTestServer(t)

	first := dialActor(t, ts.URL, "actor-1")
	second := dialActor(t, ts.URL, "actor-1")
	defer second.Close()

	// The replaced connection's teardown must not unload the profile the
	// live session is using.
	first.Close()
	time.Sleep(100 * time.Millisecond)
	if _, ok := mgr.Get("actor-1"); !ok {
		t.Fatalf("stale connection teardown unloaded the live session")
	}

	second.Close()
	waitUnloaded(t, mgr, "actor-1")
}
