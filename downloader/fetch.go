package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"pt-butler/models"
	"pt-butler/torrentfile"

	log "github.com/sirupsen/logrus"
)

// fetchedItem 抓取成功（或本地已有）的种子与其本地文件
type fetchedItem struct {
	item models.Torrent
	path string
}

// SelectBatch 取候选并按批次上限截断
// 候选多于上限时只取一小批，把积压摊到后续多轮，避免单轮打爆带宽和磁盘
func (c *Controller) SelectBatch() ([]models.Torrent, error) {
	items, err := c.store.GetEligibleTorrents(c.sess.UID, c.sess.Site, c.now())
	if err != nil {
		return nil, fmt.Errorf("failed to select eligible torrents: %w", err)
	}
	c.report.Eligible = len(items)

	if len(items) > c.sess.Cfg.Download.BatchCeiling {
		items = items[:c.sess.Cfg.Download.BatchSize]
	}
	c.report.Selected = len(items)
	return items, nil
}

// Fetch 逐项下载种子文件到本地缓存目录
// 本地已有的跳过下载（上一轮中断的进度不重做）；单项失败删掉残片继续下一项
func (c *Controller) Fetch(ctx context.Context, items []models.Torrent) []fetchedItem {
	var fetched []fetchedItem

	for _, item := range items {
		path := filepath.Join(c.sess.Cfg.Download.TempDir, c.sess.TorrentFileName(item.SiteID))

		if _, err := os.Stat(path); err == nil {
			c.report.SkippedExisting++
			fetched = append(fetched, fetchedItem{item: item, path: path})
			continue
		}

		if err := c.fetchOne(ctx, item, path); err != nil {
			log.Warnf("fetch %s/%d for user %d failed: %v", c.sess.Site, item.SiteID, c.sess.UID, err)
			os.Remove(path)
			c.report.FetchFailed++
			continue
		}

		c.report.Fetched++
		fetched = append(fetched, fetchedItem{item: item, path: path})

		// 固定间隔，压住对源站的请求频率
		if c.fetchDelay > 0 {
			select {
			case <-time.After(c.fetchDelay):
			case <-ctx.Done():
				return fetched
			}
		}
	}
	return fetched
}

func (c *Controller) fetchOne(ctx context.Context, item models.Torrent, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.URL, nil)
	if err != nil {
		return err
	}
	if c.sess.User.Cookie != "" {
		req.Header.Set("Cookie", c.sess.User.Cookie)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return err
	}
	return nil
}

// Archive 把抓到的种子备份到对象存储，失败只记日志不影响分发
func (c *Controller) Archive(items []fetchedItem) {
	if c.storage == nil {
		return
	}

	for _, fi := range items {
		key := c.sess.ArchiveKey(fi.item.SiteID)
		if _, err := c.storage.PutFile(key, fi.path); err != nil {
			log.Warnf("archive %s failed: %v", key, err)
		}
	}
}

// RewriteProxy 账号配置了 tracker 代理时，原地改写种子的 announce
func (c *Controller) RewriteProxy(items []fetchedItem) {
	if !c.sess.User.UseProxy || c.sess.User.ProxyHost == "" {
		return
	}

	for _, fi := range items {
		if err := torrentfile.RewriteAnnounceFile(fi.path, c.sess.User.ProxyHost, c.sess.UID); err != nil {
			log.Warnf("proxy rewrite %s/%d failed: %v", c.sess.Site, fi.item.SiteID, err)
		}
	}
}
