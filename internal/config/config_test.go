package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/portalgate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portalgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, domain.DefaultTimeout, cfg.Timeout)
	assert.Equal(t, domain.DefaultPeerTimeout, cfg.PeerTimeout)
	assert.Equal(t, "memory", cfg.Store.Kind)
	assert.Len(t, cfg.InstanceID, 36, "generated uuid")
	assert.Empty(t, cfg.Peers)
}

func TestLoad_File(t *testing.T) {
	chdir(t, t.TempDir())
	path := writeFile(t, `
instance_id: node-a
listen: ":9000"
timeout: 10m
peer_timeout: 2s
ents: [ac_lyon, ac_grenoble]
peers:
  - id: node-a
    address: http://a:9000
  - id: node-b
    address: http://b:9000
store:
  kind: redis
  redis:
    addr: redis:6379
    db: 2
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "node-a", cfg.InstanceID)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, 10*time.Minute, cfg.Timeout)
	assert.Equal(t, 2*time.Second, cfg.PeerTimeout)
	assert.Equal(t, []string{"ac_lyon", "ac_grenoble"}, cfg.ENTs)
	assert.Equal(t, PeerList{
		{ID: "node-a", Address: "http://a:9000"},
		{ID: "node-b", Address: "http://b:9000"},
	}, cfg.Peers)
	assert.Equal(t, "redis", cfg.Store.Kind)
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, 2, cfg.Store.Redis.DB)
	assert.Equal(t, "portalgate:session:", cfg.Store.Redis.Prefix, "untouched defaults survive")
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	chdir(t, t.TempDir())
	path := writeFile(t, "instance_id: from-file\ntimeout: 1m\n")

	t.Setenv("PORTALGATE_INSTANCE_ID", "from-env")
	t.Setenv("PORTALGATE_PEERS", "b=http://b:8080, c=http://c:8080")
	t.Setenv("PORTALGATE_STORE_REDIS_DB", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.InstanceID)
	assert.Equal(t, time.Minute, cfg.Timeout)
	assert.Equal(t, PeerList{
		{ID: "b", Address: "http://b:8080"},
		{ID: "c", Address: "http://c:8080"},
	}, cfg.Peers)
	assert.Equal(t, 3, cfg.Store.Redis.DB)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PORTALGATE_LISTEN=:7070\n"), 0o600))
	t.Setenv("PORTALGATE_LISTEN", "")
	os.Unsetenv("PORTALGATE_LISTEN")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Listen)
}

func TestLoad_UnknownKey(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := Load(writeFile(t, "instanceid: typo\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Timeout = 0
	cfg.Store.Kind = "etcd"
	cfg.Peers = PeerList{{ID: "x"}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
	assert.Contains(t, err.Error(), "etcd")
	assert.Contains(t, err.Error(), "peers[0]")
}

func TestStoreConfig_Encryption(t *testing.T) {
	enc, err := Default().Store.Encryption()
	require.NoError(t, err)
	assert.Nil(t, enc)

	chdir(t, t.TempDir())
	t.Setenv("PORTALGATE_STORE_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(make([]byte, 32)))
	cfg, err := Load("")
	require.NoError(t, err)
	enc, err = cfg.Store.Encryption()
	require.NoError(t, err)
	assert.NotNil(t, enc)

	cfg.Store.EncryptionKey = base64.StdEncoding.EncodeToString([]byte("too short"))
	assert.ErrorContains(t, cfg.Validate(), "encryption_key")
}

func TestPeerList_UnmarshalText(t *testing.T) {
	var list PeerList
	require.NoError(t, list.UnmarshalText([]byte("a=http://a,,b=http://b")))
	assert.Len(t, list, 2)

	assert.Error(t, list.UnmarshalText([]byte("no-address")))
}
