package darknet

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chiquitav2/wg-dark/internal/darknet/wireguard"
	"github.com/chiquitav2/wg-dark/internal/shared/errors"
	"github.com/chiquitav2/wg-dark/internal/shared/events"
	"github.com/chiquitav2/wg-dark/internal/shared/logger"
)

func TestConnector_JoinBringsInterfaceUpInOrder(t *testing.T) {
	h := newHarness(t)

	session := h.join(t)

	assert.Equal(t, StateActive, session.State())
	assert.Equal(t, []string{
		wireguard.OpCreateInterface,
		wireguard.OpSetAddress,
		wireguard.OpSetLinkUp,
		wireguard.OpSetPrivateKey,
		wireguard.OpAddPeerConfig,
	}, opsWithout(h.fake.Ops(), wireguard.OpSetMTU, wireguard.OpAddRoute))
	assert.Equal(t, 1, h.fake.Count(wireguard.OpAddPeerConfig))

	calls := h.fake.Calls()
	peer := calls[len(calls)-1]
	assert.Contains(t, peer.Args[0], "PublicKey = PK")
	assert.Contains(t, peer.Args[0], "AllowedIPs = 10.13.37.0/24")
	assert.Contains(t, peer.Args[0], "PersistentKeepalive = 25")

	joins := h.server.joinRequests()
	require.Len(t, joins, 1)
	assert.Equal(t, "abc123", joins[0].Invite)
	assert.Equal(t, session.KeyPair().PublicKey, joins[0].PublicKey)

	assert.Equal(t, "10.13.37.5/24", session.Address())
	assert.Equal(t, "PK", session.ServerPublicKey())
	assert.True(t, session.Interface().IsUp())
}

func TestConnector_JoinPersistsDarknet(t *testing.T) {
	h := newHarness(t)
	session := h.join(t)

	saved, err := h.store.Load("wgdark0")
	require.NoError(t, err)
	assert.Equal(t, session.KeyPair().PrivateKey, saved.Config.PrivateKey)
	assert.Equal(t, wireguard.DefaultListenPort, saved.Config.ListenPort)
	require.Len(t, saved.Config.PeerList, 1)
	assert.Equal(t, "PK", saved.Config.PeerList[0].PublicKey)
	assert.Equal(t, session.ID(), saved.Record.SessionID)
	assert.Equal(t, "10.13.37.5/24", saved.Record.Address)
	assert.Equal(t, session.Endpoint(), saved.Record.Endpoint)
}

func TestConnector_JoinForbidden(t *testing.T) {
	h := newHarness(t)
	h.server.setJoinStatus(http.StatusForbidden)

	session, err := h.conn.Join(context.Background(), h.server.invite("abc123"))
	require.Error(t, err)

	var serverErr *errors.ServerError
	require.True(t, stderrors.As(err, &serverErr))
	assert.Equal(t, http.StatusForbidden, serverErr.Status)

	assert.Empty(t, h.fake.Calls())
	assert.Equal(t, StateTerminated, session.State())
	assert.Nil(t, session.Interface())

	_, statErr := os.Stat(h.store.ConfPath("wgdark0"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestConnector_JoinMalformedInvite(t *testing.T) {
	h := newHarness(t)

	session, err := h.conn.Join(context.Background(), "onlytwo:fields")

	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeMalformedInvite))
	assert.Empty(t, h.server.joinRequests())
	assert.Empty(t, h.fake.Calls())
	assert.Equal(t, StateTerminated, session.State())
}

func TestConnector_JoinBringUpFailureHasNoRollback(t *testing.T) {
	h := newHarness(t)
	h.fake.FailOn(wireguard.OpSetLinkUp, "Operation not permitted")

	session, err := h.conn.Join(context.Background(), h.server.invite("abc123"))

	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInterfaceCommand))
	assert.Equal(t, StateTerminated, session.State())
	assert.Zero(t, h.fake.Count(wireguard.OpDestroyInterface))
	assert.Zero(t, h.fake.Count(wireguard.OpAddPeerConfig))
}

func TestConnector_JoinPublishesStateChanges(t *testing.T) {
	h := newHarness(t)

	var states []string
	require.NoError(t, h.bus.Subscribe(events.TypeStateChanged, events.TypedHandler(
		func(_ context.Context, e *events.StateChanged) error {
			states = append(states, e.To)
			return nil
		})))

	h.join(t)
	assert.Equal(t, []string{"joining", "active"}, states)
}

func TestConnector_StartRestoresSavedDarknet(t *testing.T) {
	h := newHarness(t)
	joined := h.join(t)
	require.NoError(t, h.store.AppendPeers("wgdark0", wireguard.PeerStanza{PublicKey: "LATER", AllowedIPs: "10.13.37.9/32"}.Render()))

	fresh := wireguard.NewFakeController()
	conn, err := NewConnector(Options{
		Config:     h.cfg,
		Controller: fresh,
		Store:      h.store,
		Logger:     logger.NewDiscard(),
	})
	require.NoError(t, err)

	session, err := conn.Start(context.Background(), "wgdark0")
	require.NoError(t, err)

	assert.Equal(t, StateActive, session.State())
	assert.Equal(t, joined.KeyPair().PrivateKey, session.KeyPair().PrivateKey)
	assert.Equal(t, joined.KeyPair().PublicKey, session.KeyPair().PublicKey)
	assert.Equal(t, "10.13.37.5/24", session.Address())
	assert.Empty(t, h.server.joinRequests()[1:])

	assert.Equal(t, 1, fresh.Count(wireguard.OpAddPeerConfig))
	merged := fresh.Merged("wgdark0")
	assert.Contains(t, merged, "PrivateKey = "+joined.KeyPair().PrivateKey)
	assert.Contains(t, merged, "PublicKey = PK")
	assert.Contains(t, merged, "PublicKey = LATER")

	// The config file still holds every saved stanza.
	saved, err := h.store.Load("wgdark0")
	require.NoError(t, err)
	assert.Len(t, saved.Config.PeerList, 2)
	assert.Equal(t, session.ID(), saved.Record.SessionID)
	assert.True(t, joined.JoinedAt().Equal(saved.Record.JoinedAt))
}

func TestConnector_FailedStartKeepsSavedPeers(t *testing.T) {
	h := newHarness(t)
	h.join(t)
	require.NoError(t, h.store.AppendPeers("wgdark0", wireguard.PeerStanza{PublicKey: "LATER", AllowedIPs: "10.13.37.9/32"}.Render()))
	before, err := os.ReadFile(h.store.ConfPath("wgdark0"))
	require.NoError(t, err)

	fresh := wireguard.NewFakeController()
	fresh.FailOn(wireguard.OpAddPeerConfig, "Operation not permitted")
	conn, err := NewConnector(Options{
		Config:     h.cfg,
		Controller: fresh,
		Store:      h.store,
		Logger:     logger.NewDiscard(),
	})
	require.NoError(t, err)

	session, err := conn.Start(context.Background(), "wgdark0")
	require.Error(t, err)
	assert.Equal(t, StateTerminated, session.State())

	after, err := os.ReadFile(h.store.ConfPath("wgdark0"))
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	saved, err := h.store.Load("wgdark0")
	require.NoError(t, err)
	assert.Len(t, saved.Config.PeerList, 2)
}

func TestConnector_StartedInterfacePersistsNewPeers(t *testing.T) {
	h := newHarness(t)
	h.join(t)

	conn, err := NewConnector(Options{
		Config:     h.cfg,
		Controller: wireguard.NewFakeController(),
		Store:      h.store,
		Logger:     logger.NewDiscard(),
	})
	require.NoError(t, err)
	session, err := conn.Start(context.Background(), "wgdark0")
	require.NoError(t, err)

	require.NoError(t, session.Interface().AddPeer(context.Background(),
		wireguard.PeerStanza{PublicKey: "NEWCOMER", AllowedIPs: "10.13.37.12/32"}.Render()))

	saved, err := h.store.Load("wgdark0")
	require.NoError(t, err)
	require.Len(t, saved.Config.PeerList, 2)
	assert.Equal(t, "NEWCOMER", saved.Config.PeerList[1].PublicKey)
}

func TestConnector_RepeatedStatusKeepsOneStanzaPerPeer(t *testing.T) {
	h := newHarness(t)
	session := h.join(t)

	status := wireguard.PeerStanza{PublicKey: "NEIGHBOUR", Endpoint: "198.51.100.4:1337", AllowedIPs: "10.13.37.8/32"}.Render()
	for i := 0; i < 5; i++ {
		require.NoError(t, session.Interface().AddPeer(context.Background(), status))
	}

	assert.Equal(t, 6, h.fake.Count(wireguard.OpAddPeerConfig))
	saved, err := h.store.Load("wgdark0")
	require.NoError(t, err)
	require.Len(t, saved.Config.PeerList, 2)
	assert.Equal(t, "PK", saved.Config.PeerList[0].PublicKey)
	assert.Equal(t, "NEIGHBOUR", saved.Config.PeerList[1].PublicKey)
}

func TestConnector_FailedJoinLeavesReportingToCaller(t *testing.T) {
	h := newHarness(t)
	h.server.setJoinStatus(http.StatusForbidden)

	var buf bytes.Buffer
	cfg := logger.DefaultConfig()
	cfg.Format = logger.FormatJSON
	cfg.Level = logger.LevelDebug
	cfg.Writer = &buf
	conn, err := NewConnector(Options{
		Config:      h.cfg,
		Coordinator: h.server.client(),
		Controller:  h.fake,
		Store:       h.store,
		Logger:      logger.New(cfg),
	})
	require.NoError(t, err)

	_, err = conn.Join(context.Background(), h.server.invite("abc123"))
	require.Error(t, err)

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.NotEqual(t, "ERROR", entry["level"], "unexpected error entry: %s", line)
	}
}

func TestConnector_StartMissingConfig(t *testing.T) {
	h := newHarness(t)

	session, err := h.conn.Start(context.Background(), "ghost")

	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeMissingConfig))
	assert.Equal(t, StateTerminated, session.State())
	assert.Empty(t, h.fake.Calls())
}

func TestConnector_StartRejectsBadName(t *testing.T) {
	h := newHarness(t)

	_, err := h.conn.Start(context.Background(), "../etc/passwd")
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeConfiguration))
}

func TestNewConnector_RequiresCollaborators(t *testing.T) {
	_, err := NewConnector(Options{})
	assert.Error(t, err)

	_, err = NewConnector(Options{Config: testConfig(t)})
	assert.Error(t, err)
}
