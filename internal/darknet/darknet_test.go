package darknet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chiquitav2/wg-dark/internal/darknet/client"
	"github.com/chiquitav2/wg-dark/internal/darknet/config"
	"github.com/chiquitav2/wg-dark/internal/darknet/state"
	"github.com/chiquitav2/wg-dark/internal/darknet/wireguard"
	"github.com/chiquitav2/wg-dark/internal/shared/events"
	"github.com/chiquitav2/wg-dark/internal/shared/logger"
	"github.com/chiquitav2/wg-dark/pkg/api"
)

// coordServer is a coordination server plus status listener for tests.
type coordServer struct {
	*httptest.Server

	mu         sync.Mutex
	joinStatus int
	joins      []api.JoinRequest
	status     http.HandlerFunc
}

func newCoordServer(t *testing.T) *coordServer {
	t.Helper()
	cs := &coordServer{joinStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("/join", func(w http.ResponseWriter, r *http.Request) {
		var req api.JoinRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		cs.mu.Lock()
		cs.joins = append(cs.joins, req)
		status := cs.joinStatus
		cs.mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(api.JoinResponse{Address: "10.13.37.5/24", PublicKey: "PK"})
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		handler := cs.status
		cs.mu.Unlock()
		if handler == nil {
			_ = json.NewEncoder(w).Encode(api.StatusResponse{})
			return
		}
		handler(w, r)
	})

	cs.Server = httptest.NewServer(mux)
	t.Cleanup(cs.Close)
	return cs
}

func (cs *coordServer) setJoinStatus(status int) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.joinStatus = status
}

func (cs *coordServer) setStatusHandler(h http.HandlerFunc) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.status = h
}

func (cs *coordServer) joinRequests() []api.JoinRequest {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]api.JoinRequest(nil), cs.joins...)
}

// invite returns an invite code pointing at the server.
func (cs *coordServer) invite(code string) string {
	return strings.TrimPrefix(cs.URL, "http://") + ":" + code
}

func (cs *coordServer) client() *client.Client {
	return client.NewClient(logger.NewDiscard(),
		client.WithScheme("http"),
		client.WithStatusURL(cs.URL+"/status"))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Interface:           "wgdark0",
		StateDir:            filepath.Join(t.TempDir(), "state"),
		Scheme:              "http",
		PollInterval:        20,
		RequestTimeout:      5,
		UserAgent:           "wg-dark",
		MTU:                 wireguard.DefaultMTU,
		ListenPort:          wireguard.DefaultListenPort,
		Subnet:              wireguard.DefaultSubnet,
		PersistentKeepalive: wireguard.DefaultPersistentKeepalive,
		LogLevel:            "info",
		LogFormat:           "json",
	}
}

type harness struct {
	cfg    *config.Config
	server *coordServer
	fake   *wireguard.FakeController
	store  *state.Store
	bus    *events.Bus
	conn   *Connector
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		cfg:    testConfig(t),
		server: newCoordServer(t),
		fake:   wireguard.NewFakeController(),
		bus:    events.NewBus(logger.NewDiscard()),
	}
	h.store = state.NewStore(h.cfg.StateDir, logger.NewDiscard())

	conn, err := NewConnector(Options{
		Config:      h.cfg,
		Coordinator: h.server.client(),
		Controller:  h.fake,
		Store:       h.store,
		Bus:         h.bus,
		Logger:      logger.NewDiscard(),
	})
	require.NoError(t, err)
	h.conn = conn
	return h
}

func (h *harness) join(t *testing.T) *Session {
	t.Helper()
	session, err := h.conn.Join(context.Background(), h.server.invite("abc123"))
	require.NoError(t, err)
	return session
}

// opsWithout drops the operations a property does not care about.
func opsWithout(ops []string, drop ...string) []string {
	skip := make(map[string]bool, len(drop))
	for _, d := range drop {
		skip[d] = true
	}
	var out []string
	for _, op := range ops {
		if !skip[op] {
			out = append(out, op)
		}
	}
	return out
}
