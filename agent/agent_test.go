package agent

import (
	"context"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"pt-butler/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAgent(t *testing.T) (*Client, string) {
	t.Helper()

	root := t.TempDir()
	srv := httptest.NewServer(NewServer(config.AgentConfig{
		Token:    "secret",
		DataRoot: root,
	}).Router())
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, _ := strings.Cut(u.Host, ":")
	port, _ := strconv.Atoi(portStr)

	return NewClient(host, port, "secret"), root
}

func seed(t *testing.T, root, site string, uid int64, siteID string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(root, site, strconv.FormatInt(uid, 10), siteID)
	require.NoError(t, os.MkdirAll(dir, 0755))
	for name, content := range files {
		sub := filepath.Join(dir, filepath.Dir(name))
		require.NoError(t, os.MkdirAll(sub, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
}

func TestListFiles(t *testing.T) {
	cl, root := newTestAgent(t)
	ctx := context.Background()

	seed(t, root, "hdsky", 7, "100", map[string]string{"movie.mkv": "done"})
	seed(t, root, "hdsky", 7, "101", map[string]string{"sub/ep1.mkv.!qB": "partial"})
	seed(t, root, "hdsky", 7, "102", map[string]string{"iso/disc.part": "partial"})
	// 非数字命名的目录不属于托管条目
	seed(t, root, "hdsky", 7, "manual", map[string]string{"x.bin": "x"})

	items, err := cl.ListFiles(ctx, 7, "hdsky")
	require.NoError(t, err)
	require.Len(t, items, 3)

	byID := map[int64]FileItem{}
	for _, it := range items {
		byID[it.SiteID] = it
	}
	assert.True(t, byID[100].Downloaded)
	assert.False(t, byID[101].Downloaded, "nested .!qB marker means incomplete")
	assert.False(t, byID[102].Downloaded, ".part marker means incomplete")
	assert.False(t, byID[100].CreatedAt.IsZero())
}

func TestListFilesEmptyUser(t *testing.T) {
	cl, _ := newTestAgent(t)

	items, err := cl.ListFiles(context.Background(), 42, "nosite")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFreeSpace(t *testing.T) {
	cl, root := newTestAgent(t)

	free, err := cl.FreeSpace(context.Background(), 7, "hdsky", root)
	require.NoError(t, err)
	assert.Greater(t, free, int64(0))
}

func TestFreeSpaceMissingPathFallsBack(t *testing.T) {
	cl, _ := newTestAgent(t)

	free, err := cl.FreeSpace(context.Background(), 7, "hdsky", "/does/not/exist")
	require.NoError(t, err)
	assert.Greater(t, free, int64(0))
}

func TestRemoveFiles(t *testing.T) {
	cl, root := newTestAgent(t)
	ctx := context.Background()

	seed(t, root, "hdsky", 7, "100", map[string]string{"movie.mkv": "done"})
	require.NoError(t, cl.RemoveFiles(ctx, 7, "hdsky", 100))

	_, err := os.Stat(filepath.Join(root, "hdsky", "7", "100"))
	assert.True(t, os.IsNotExist(err))

	// 已不存在时再删一次仍视为成功
	require.NoError(t, cl.RemoveFiles(ctx, 7, "hdsky", 100))
}

func TestTokenRejected(t *testing.T) {
	cl, _ := newTestAgent(t)
	cl.token = "wrong"

	_, err := cl.ListFiles(context.Background(), 7, "hdsky")
	assert.Error(t, err)
}

func TestUnreachable(t *testing.T) {
	cl := NewClient("127.0.0.1", 1, "")

	_, err := cl.ListFiles(context.Background(), 7, "hdsky")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
}
