// Package store 数据访问层：种子、下载记录、服务器、账号
package store

import (
	"fmt"
	"time"

	"pt-butler/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// GetUser 按 id 取账号
func (s *Store) GetUser(uid int64) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, uid).Error; err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", uid, err)
	}
	return &user, nil
}

// GetEligibleTorrents 取该账号在站点上免费、未过期且尚无下载记录的种子
func (s *Store) GetEligibleTorrents(uid int64, site string, now time.Time) ([]models.Torrent, error) {
	var torrents []models.Torrent
	err := s.db.
		Where("uid = ? AND site = ? AND free = ? AND free_until > ?", uid, site, true, now).
		Where("NOT EXISTS (SELECT 1 FROM downloaders d WHERE d.uid = torrents.uid"+
			" AND d.site = torrents.site AND d.site_id = torrents.site_id AND d.is_delete = ?)", false).
		Order("published_at").
		Find(&torrents).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible torrents: %w", err)
	}
	return torrents, nil
}

// UpsertTorrents 以 (site, site_id, uid) 为键写入或更新种子条目
func (s *Store) UpsertTorrents(items []models.Torrent) error {
	if len(items) == 0 {
		return nil
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "site"}, {Name: "site_id"}, {Name: "uid"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "size", "url", "free", "free_until", "published_at", "updated_at",
		}),
	}).Create(&items).Error
	if err != nil {
		return fmt.Errorf("failed to upsert torrents: %w", err)
	}
	return nil
}

// UpdateTorrentHash 本地下载后补写内容哈希
func (s *Store) UpdateTorrentHash(uid int64, site string, siteID int64, hash string) error {
	err := s.db.Model(&models.Torrent{}).
		Where("uid = ? AND site = ? AND site_id = ?", uid, site, siteID).
		Updates(map[string]interface{}{
			"hash":       hash,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update torrent hash: %w", err)
	}
	return nil
}

// AssignServer 记录种子被分到的服务器
func (s *Store) AssignServer(uid int64, site string, siteID int64, serverID uint) error {
	err := s.db.Model(&models.Torrent{}).
		Where("uid = ? AND site = ? AND site_id = ?", uid, site, siteID).
		Update("server_id", serverID).Error
	if err != nil {
		return fmt.Errorf("failed to assign server: %w", err)
	}
	return nil
}

// CreateDownloadRecord 建立下载记录
// 同键已有未删除记录时更新而不是再插一条，保持唯一不变量
func (s *Store) CreateDownloadRecord(site string, siteID, uid int64, transID, hash string, serverID uint) error {
	var existing models.Downloader
	err := s.db.Where("uid = ? AND site = ? AND site_id = ? AND is_delete = ?",
		uid, site, siteID, false).First(&existing).Error

	if err == nil {
		existing.TransID = transID
		existing.Hash = hash
		existing.ServerID = serverID
		if err := s.db.Save(&existing).Error; err != nil {
			return fmt.Errorf("failed to update download record: %w", err)
		}
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return fmt.Errorf("failed to check download record: %w", err)
	}

	record := models.Downloader{
		UID:      uid,
		Site:     site,
		SiteID:   siteID,
		ServerID: serverID,
		TransID:  transID,
		Hash:     hash,
	}
	if err := s.db.Create(&record).Error; err != nil {
		return fmt.Errorf("failed to create download record: %w", err)
	}
	return nil
}

// GetDownloadRecord 取未删除的下载记录
func (s *Store) GetDownloadRecord(uid int64, site string, siteID int64) (*models.Downloader, error) {
	var record models.Downloader
	err := s.db.Where("uid = ? AND site = ? AND site_id = ? AND is_delete = ?",
		uid, site, siteID, false).First(&record).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get download record: %w", err)
	}
	return &record, nil
}

// GetDownloadRecordByTransID 按服务器内传输 id 反查记录
func (s *Store) GetDownloadRecordByTransID(uid int64, serverID uint, transID string) (*models.Downloader, error) {
	var record models.Downloader
	err := s.db.Where("uid = ? AND server_id = ? AND trans_id = ? AND is_delete = ?",
		uid, serverID, transID, false).First(&record).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get download record by trans id: %w", err)
	}
	return &record, nil
}

// SoftDeleteDownloadRecord 回收后软删除，保留审计痕迹
func (s *Store) SoftDeleteDownloadRecord(uid int64, site string, siteID int64) error {
	err := s.db.Model(&models.Downloader{}).
		Where("uid = ? AND site = ? AND site_id = ? AND is_delete = ?", uid, site, siteID, false).
		Updates(map[string]interface{}{
			"is_delete":  true,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to soft delete download record: %w", err)
	}
	return nil
}

// GetServersForUser 按账号配置的服务器 id 列表取服务器配置
func (s *Store) GetServersForUser(serverIDs []uint) ([]models.Server, error) {
	if len(serverIDs) == 0 {
		return nil, nil
	}
	var servers []models.Server
	if err := s.db.Where("id IN ?", serverIDs).Find(&servers).Error; err != nil {
		return nil, fmt.Errorf("failed to get servers: %w", err)
	}
	return servers, nil
}

// TorrentRecord 种子条目连同下载记录字段，回收与完成判定用
type TorrentRecord struct {
	models.Torrent
	TransID     string
	RecServerID uint
}

// GetItemsBySiteIDs 取种子条目并连出下载记录的 serverId/hash/transId
func (s *Store) GetItemsBySiteIDs(uid int64, site string, siteIDs []int64) ([]TorrentRecord, error) {
	if len(siteIDs) == 0 {
		return nil, nil
	}

	var torrents []models.Torrent
	err := s.db.Where("uid = ? AND site = ? AND site_id IN ?", uid, site, siteIDs).
		Find(&torrents).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get items by site ids: %w", err)
	}

	records := make([]TorrentRecord, 0, len(torrents))
	for _, t := range torrents {
		rec := TorrentRecord{Torrent: t}
		var dl models.Downloader
		err := s.db.Where("uid = ? AND site = ? AND site_id = ? AND is_delete = ?",
			uid, site, t.SiteID, false).First(&dl).Error
		if err == nil {
			rec.TransID = dl.TransID
			rec.RecServerID = dl.ServerID
			if rec.Hash == "" {
				rec.Hash = dl.Hash
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
