package config

import (
	"fmt"

	"pt-butler/models"
)

// Session 一次 user+site 运行的上下文
// 站点、账号和配置全部显式携带，组件构造时传入，不依赖任何进程级全局变量
type Session struct {
	Site string
	UID  int64
	User *models.User
	Cfg  *Config
}

func NewSession(cfg *Config, user *models.User, site string) (*Session, error) {
	if user == nil {
		return nil, fmt.Errorf("session requires a user")
	}
	if site == "" {
		return nil, fmt.Errorf("session requires a site")
	}
	return &Session{
		Site: site,
		UID:  user.ID,
		User: user,
		Cfg:  cfg,
	}, nil
}

// TorrentFileName 本地缓存种子文件名：{site}_{siteId}_{uid}.torrent
func (s *Session) TorrentFileName(siteID int64) string {
	return fmt.Sprintf("%s_%d_%d.torrent", s.Site, siteID, s.UID)
}

// ArchiveKey 对象存储备份路径：{site}/{uid}/{siteId}.torrent
func (s *Session) ArchiveKey(siteID int64) string {
	return fmt.Sprintf("%s/%d/%d.torrent", s.Site, s.UID, siteID)
}
