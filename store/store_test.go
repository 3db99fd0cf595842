package store

import (
	"testing"
	"time"

	"pt-butler/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Torrent{},
		&models.Downloader{},
		&models.Server{},
		&models.User{},
	))
	return New(db)
}

func freeTorrent(uid int64, siteID int64, until time.Time) models.Torrent {
	pub := until.Add(-24 * time.Hour)
	return models.Torrent{
		Site:        "hdsky",
		SiteID:      siteID,
		UID:         uid,
		Title:       "demo",
		Size:        1 << 30,
		URL:         "https://hdsky.example/download.php?id=1",
		Free:        true,
		FreeUntil:   &until,
		PublishedAt: &pub,
	}
}

func TestUpsertTorrentsKeepsUnique(t *testing.T) {
	st := newTestStore(t)
	until := time.Now().Add(time.Hour)

	first := freeTorrent(7, 100, until)
	require.NoError(t, st.UpsertTorrents([]models.Torrent{first}))

	second := freeTorrent(7, 100, until)
	second.Title = "renamed"
	second.Size = 2 << 30
	require.NoError(t, st.UpsertTorrents([]models.Torrent{second}))

	var count int64
	require.NoError(t, st.db.Model(&models.Torrent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var got models.Torrent
	require.NoError(t, st.db.Where("site = ? AND site_id = ? AND uid = ?", "hdsky", 100, 7).First(&got).Error)
	assert.Equal(t, "renamed", got.Title)
	assert.Equal(t, int64(2<<30), got.Size)
}

func TestGetEligibleTorrents(t *testing.T) {
	st := newTestStore(t)
	now := time.Now()

	eligible := freeTorrent(7, 100, now.Add(time.Hour))
	expired := freeTorrent(7, 101, now.Add(-time.Hour))
	notFree := freeTorrent(7, 102, now.Add(time.Hour))
	notFree.Free = false
	otherUser := freeTorrent(8, 100, now.Add(time.Hour))
	taken := freeTorrent(7, 103, now.Add(time.Hour))

	require.NoError(t, st.UpsertTorrents([]models.Torrent{eligible, expired, notFree, otherUser, taken}))
	require.NoError(t, st.CreateDownloadRecord("hdsky", 103, 7, "42", "abc", 1))

	got, err := st.GetEligibleTorrents(7, "hdsky", now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(100), got[0].SiteID)
}

func TestGetEligibleTorrentsAfterSoftDelete(t *testing.T) {
	st := newTestStore(t)
	now := time.Now()

	require.NoError(t, st.UpsertTorrents([]models.Torrent{freeTorrent(7, 100, now.Add(time.Hour))}))
	require.NoError(t, st.CreateDownloadRecord("hdsky", 100, 7, "42", "abc", 1))

	got, err := st.GetEligibleTorrents(7, "hdsky", now)
	require.NoError(t, err)
	assert.Empty(t, got)

	// 软删除后条目重新可选
	require.NoError(t, st.SoftDeleteDownloadRecord(7, "hdsky", 100))
	got, err = st.GetEligibleTorrents(7, "hdsky", now)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCreateDownloadRecordUpdatesExisting(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.CreateDownloadRecord("hdsky", 100, 7, "1", "aaa", 1))
	require.NoError(t, st.CreateDownloadRecord("hdsky", 100, 7, "2", "bbb", 3))

	var count int64
	require.NoError(t, st.db.Model(&models.Downloader{}).
		Where("uid = ? AND site = ? AND site_id = ? AND is_delete = ?", 7, "hdsky", 100, false).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)

	rec, err := st.GetDownloadRecord(7, "hdsky", 100)
	require.NoError(t, err)
	assert.Equal(t, "2", rec.TransID)
	assert.Equal(t, "bbb", rec.Hash)
	assert.Equal(t, uint(3), rec.ServerID)
}

func TestGetDownloadRecordByTransID(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.CreateDownloadRecord("hdsky", 100, 7, "55", "abc", 2))

	rec, err := st.GetDownloadRecordByTransID(7, 2, "55")
	require.NoError(t, err)
	assert.Equal(t, int64(100), rec.SiteID)

	_, err = st.GetDownloadRecordByTransID(7, 2, "99")
	assert.Error(t, err)
}

func TestUpdateTorrentHashAndAssignServer(t *testing.T) {
	st := newTestStore(t)
	until := time.Now().Add(time.Hour)

	require.NoError(t, st.UpsertTorrents([]models.Torrent{freeTorrent(7, 100, until)}))
	require.NoError(t, st.UpdateTorrentHash(7, "hdsky", 100, "deadbeef"))
	require.NoError(t, st.AssignServer(7, "hdsky", 100, 2))

	var got models.Torrent
	require.NoError(t, st.db.Where("uid = ? AND site_id = ?", 7, 100).First(&got).Error)
	assert.Equal(t, "deadbeef", got.Hash)
	require.NotNil(t, got.ServerID)
	assert.Equal(t, uint(2), *got.ServerID)
}

func TestGetItemsBySiteIDs(t *testing.T) {
	st := newTestStore(t)
	until := time.Now().Add(time.Hour)

	require.NoError(t, st.UpsertTorrents([]models.Torrent{
		freeTorrent(7, 100, until),
		freeTorrent(7, 101, until),
	}))
	require.NoError(t, st.CreateDownloadRecord("hdsky", 100, 7, "11", "aaa", 2))

	items, err := st.GetItemsBySiteIDs(7, "hdsky", []int64{100, 101, 999})
	require.NoError(t, err)
	require.Len(t, items, 2)

	byID := map[int64]TorrentRecord{}
	for _, it := range items {
		byID[it.SiteID] = it
	}
	assert.Equal(t, "11", byID[100].TransID)
	assert.Equal(t, uint(2), byID[100].RecServerID)
	assert.Equal(t, "aaa", byID[100].Hash, "record hash backfills empty torrent hash")
	assert.Empty(t, byID[101].TransID)
}

func TestGetServersForUser(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.db.Create(&models.Server{Name: "s1", IP: "10.0.0.1", ClientType: "qbittorrent"}).Error)
	require.NoError(t, st.db.Create(&models.Server{Name: "s2", IP: "10.0.0.2", ClientType: "transmission"}).Error)

	servers, err := st.GetServersForUser([]uint{1, 2, 9})
	require.NoError(t, err)
	assert.Len(t, servers, 2)

	servers, err = st.GetServersForUser(nil)
	require.NoError(t, err)
	assert.Empty(t, servers)
}
