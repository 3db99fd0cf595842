package torrentfile

import (
	"bytes"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTorrent(t *testing.T, announce string) []byte {
	t.Helper()

	info := metainfo.Info{
		Name:        "demo",
		PieceLength: 16384,
		Length:      1,
		Pieces:      make([]byte, 20),
	}
	infoBytes, err := bencode.Marshal(info)
	require.NoError(t, err)

	mi := metainfo.MetaInfo{
		InfoBytes: infoBytes,
		Announce:  announce,
	}

	var buf bytes.Buffer
	require.NoError(t, mi.Write(&buf))
	return buf.Bytes()
}

func TestInfoHash(t *testing.T) {
	content := buildTorrent(t, "https://tracker.example.com/announce.php?passkey=abc")

	hash, err := InfoHash(content)
	require.NoError(t, err)
	assert.Len(t, hash, 40)
}

func TestInfoHashRejectsGarbage(t *testing.T) {
	_, err := InfoHash([]byte("not a torrent"))
	assert.Error(t, err)
}

func TestRewriteAnnounce(t *testing.T) {
	content := buildTorrent(t, "https://tracker.example.com/announce.php?passkey=abc123")

	rewritten, err := RewriteAnnounce(content, "http://proxy.lan:8080/announce", 7)
	require.NoError(t, err)

	mi, err := metainfo.Load(bytes.NewReader(rewritten))
	require.NoError(t, err)

	u, err := url.Parse(mi.Announce)
	require.NoError(t, err)
	assert.Equal(t, "proxy.lan:8080", u.Host)
	assert.Equal(t, "/announce", u.Path)
	// 原查询参数保留，uid 注入
	assert.Equal(t, "abc123", u.Query().Get("passkey"))
	assert.Equal(t, "7", u.Query().Get("uid"))
}

func TestRewriteAnnounceKeepsInfoHash(t *testing.T) {
	content := buildTorrent(t, "https://tracker.example.com/announce.php?passkey=abc")

	before, err := InfoHash(content)
	require.NoError(t, err)

	rewritten, err := RewriteAnnounce(content, "http://proxy.lan/announce", 1)
	require.NoError(t, err)

	after, err := InfoHash(rewritten)
	require.NoError(t, err)
	assert.Equal(t, before, after, "announce rewrite must not change the info dict")
}

func TestRewriteAnnounceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.torrent")
	require.NoError(t, os.WriteFile(path, buildTorrent(t, "https://tracker.example.com/announce?a=1"), 0644))

	require.NoError(t, RewriteAnnounceFile(path, "http://proxy.lan/announce", 9))

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	mi, err := metainfo.Load(bytes.NewReader(content))
	require.NoError(t, err)
	assert.Contains(t, mi.Announce, "proxy.lan")
	assert.Contains(t, mi.Announce, "uid=9")
}
