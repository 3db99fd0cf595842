package models

import (
	"time"
)

// Torrent 站点上发现的一个种子条目
// 唯一键 (site, site_id, uid)，通过 upsert 维护，不做物理删除
type Torrent struct {
	ID          uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	Site        string     `json:"site" gorm:"size:32;not null;uniqueIndex:idx_site_sid_uid"`
	SiteID      int64      `json:"site_id" gorm:"uniqueIndex:idx_site_sid_uid"`
	UID         int64      `json:"uid" gorm:"column:uid;uniqueIndex:idx_site_sid_uid"`
	Title       string     `json:"title" gorm:"size:512"`
	Size        int64      `json:"size" gorm:"default:0"`
	URL         string     `json:"url" gorm:"type:text"`
	Hash        string     `json:"hash" gorm:"size:64;index"`
	Free        bool       `json:"free" gorm:"default:false;index"`
	FreeUntil   *time.Time `json:"free_until"`
	PublishedAt *time.Time `json:"published_at"`
	ServerID    *uint      `json:"server_id"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// Downloader 下载记录：某个种子被交给某台服务器的事实
// 同一 (uid, site, site_id) 最多一条未删除记录；回收时软删除，保留审计
type Downloader struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	UID       int64     `json:"uid" gorm:"column:uid;not null;index:idx_dl_uid_site"`
	Site      string    `json:"site" gorm:"size:32;not null;index:idx_dl_uid_site"`
	SiteID    int64     `json:"site_id" gorm:"not null"`
	ServerID  uint      `json:"server_id" gorm:"not null;index"`
	TransID   string    `json:"trans_id" gorm:"size:64"`
	Hash      string    `json:"hash" gorm:"size:64"`
	IsDelete  bool      `json:"is_delete" gorm:"default:false;index"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Server 远程下载服务器配置
type Server struct {
	ID               uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	Name             string `json:"name" gorm:"size:64"`
	IP               string `json:"ip" gorm:"size:64;not null"`
	Port             int    `json:"port" gorm:"default:0"`
	ClientType       string `json:"client_type" gorm:"size:32;not null"` // qbittorrent / transmission
	Username         string `json:"username" gorm:"size:128"`
	Password         string `json:"password" gorm:"size:128"`
	FileDownloadPath string `json:"file_download_path" gorm:"size:512"`
	MinFreeSpace     int64  `json:"min_free_space" gorm:"default:0"` // 磁盘保留下限（字节）
	MinStaySize      int64  `json:"min_stay_size" gorm:"default:0"`
	IsBox            bool   `json:"is_box" gorm:"default:false"` // box 类服务器服务非 VIP 账号
	AgentPort        int    `json:"agent_port" gorm:"default:9501"`
}

// User PT 账号
type User struct {
	ID           int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	Name         string     `json:"name" gorm:"size:128"`
	Site         string     `json:"site" gorm:"size:32;index"`
	Cookie       string     `json:"cookie" gorm:"type:text"`
	Vip          bool       `json:"vip" gorm:"default:false"`
	ServerIDs    string     `json:"server_ids" gorm:"size:256"` // 逗号分隔的服务器 id 列表
	UseProxy     bool       `json:"use_proxy" gorm:"default:false"`
	ProxyHost    string     `json:"proxy_host" gorm:"size:256"`
	VipExpiredAt *time.Time `json:"vip_expired_at"`
	CreatedAt    time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}
