package state

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chiquitav2/wg-dark/internal/darknet/wireguard"
	"github.com/chiquitav2/wg-dark/internal/shared/errors"
	"github.com/chiquitav2/wg-dark/internal/shared/logger"
)

const testPrivateKey = "yAnz5TF+lXXJte14tji3zlMNq+hd2rYUIgJBgB3fBmk="

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "wg-dark"), logger.NewDiscard())
}

func testRecord(name string) *Record {
	return &Record{
		Name:            name,
		SessionID:       "5f0c8e1e-8f5a-4a53-9d55-7c1e0d3c2a11",
		Address:         "10.13.37.5/24",
		PublicKey:       "HIgo9xNzJMWLKASShiTqIybxZ0U3wGLiUeJ1PKf8ykw=",
		ServerPublicKey: "PK",
		Endpoint:        "203.0.113.7:1337",
		JoinedAt:        time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
	}
}

func TestStore_MirrorsAppliedStanzas(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.WriteInterface("wgdark0", wireguard.RenderInterface(testPrivateKey, 1337)))
	require.NoError(t, s.AppendPeers("wgdark0", wireguard.PeerStanza{PublicKey: "PK", Endpoint: "203.0.113.7:1337"}.Render()))
	require.NoError(t, s.AppendPeers("wgdark0", "[Peer]\nPublicKey = OTHER"))
	require.NoError(t, s.SaveRecord(testRecord("wgdark0")))

	info, err := os.Stat(s.ConfPath("wgdark0"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	d, err := s.Load("wgdark0")
	require.NoError(t, err)
	assert.Equal(t, testPrivateKey, d.Config.PrivateKey)
	assert.Equal(t, 1337, d.Config.ListenPort)
	require.Len(t, d.Config.PeerList, 2)
	assert.Equal(t, "PK", d.Config.PeerList[0].PublicKey)
	assert.Equal(t, "OTHER", d.Config.PeerList[1].PublicKey)
	assert.Equal(t, testRecord("wgdark0"), d.Record)
}

func TestStore_AppendPeersSkipsSavedKeys(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteInterface("wgdark0", wireguard.RenderInterface(testPrivateKey, 1337)))

	status := "[Peer]\nPublicKey = PK\nPresharedKey = c2VjcmV0\nAllowedIPs = 10.13.37.1/32\n\n" +
		"[Peer]\nPublicKey = OTHER\nAllowedIPs = 10.13.37.6/32\n"
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendPeers("wgdark0", status))
	}
	require.NoError(t, s.AppendPeers("wgdark0", "[Peer]\nPublicKey = OTHER\n\n[Peer]\nPublicKey = LATE\n"))

	data, err := os.ReadFile(s.ConfPath("wgdark0"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "PublicKey = PK"))
	assert.Equal(t, 1, strings.Count(string(data), "PublicKey = OTHER"))
	assert.Contains(t, string(data), "PresharedKey = c2VjcmV0")

	require.NoError(t, s.SaveRecord(testRecord("wgdark0")))
	d, err := s.Load("wgdark0")
	require.NoError(t, err)
	require.Len(t, d.Config.PeerList, 3)
	assert.Equal(t, "LATE", d.Config.PeerList[2].PublicKey)
}

func TestStore_AppendPeersRejectsGarbage(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WriteInterface("wgdark0", wireguard.RenderInterface(testPrivateKey, 1337)))

	err := s.AppendPeers("wgdark0", "not a config")
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeConfiguration))

	data, err := os.ReadFile(s.ConfPath("wgdark0"))
	require.NoError(t, err)
	assert.Equal(t, wireguard.RenderInterface(testPrivateKey, 1337), string(data))
}

func TestStore_WriteInterfaceStartsFresh(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.WriteInterface("wgdark0", wireguard.RenderInterface(testPrivateKey, 1337)))
	require.NoError(t, s.AppendPeers("wgdark0", "[Peer]\nPublicKey = OLD\n"))
	require.NoError(t, s.WriteInterface("wgdark0", wireguard.RenderInterface(testPrivateKey, 1338)))

	data, err := os.ReadFile(s.ConfPath("wgdark0"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "OLD")
	assert.Contains(t, string(data), "ListenPort = 1338")
}

func TestStore_LoadMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load("nope")
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeMissingConfig))

	// conf present but no record
	require.NoError(t, s.WriteInterface("half", wireguard.RenderInterface(testPrivateKey, 1337)))
	_, err = s.Load("half")
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeMissingConfig))
}

func TestStore_LoadRejectsConfigWithoutKey(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AppendPeers("keyless", "[Peer]\nPublicKey = PK\n"))
	require.NoError(t, s.SaveRecord(testRecord("keyless")))

	_, err := s.Load("keyless")
	assert.Error(t, err)
}

func TestStore_ListAndRemove(t *testing.T) {
	s := newTestStore(t)

	for _, name := range []string{"zeta", "alpha"} {
		require.NoError(t, s.WriteInterface(name, wireguard.RenderInterface(testPrivateKey, 1337)))
		require.NoError(t, s.SaveRecord(testRecord(name)))
	}
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "broken.yaml"), []byte(":\n\t- nope"), 0o600))

	records, err := s.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "alpha", records[0].Name)
	assert.Equal(t, "zeta", records[1].Name)

	require.NoError(t, s.Remove("alpha"))
	require.NoError(t, s.Remove("alpha"))

	_, err = os.Stat(s.ConfPath("alpha"))
	assert.True(t, os.IsNotExist(err))

	records, err = s.List()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestStore_ListEmptyDir(t *testing.T) {
	records, err := newTestStore(t).List()
	require.NoError(t, err)
	assert.Empty(t, records)
}
