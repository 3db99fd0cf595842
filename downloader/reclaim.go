package downloader

import (
	"context"
	"sort"
	"strings"

	"pt-butler/client"
	"pt-butler/store"

	log "github.com/sirupsen/logrus"
)

// RemoveExpired 巡检每台服务器：agent 扫出已下载完成的条目，
// 与数据库交叉比对，免费期已过（或根本不免费）的逐个移除。
// 单台 agent 不可达跳过该服务器，单项移除失败继续后面的条目。
func (c *Controller) RemoveExpired(ctx context.Context) {
	for _, serverID := range c.reg.ServerIDs() {
		cfg, err := c.reg.GetConfig(serverID)
		if err != nil {
			continue
		}

		ag := c.agents(cfg.IP, cfg.AgentPort)
		files, err := ag.ListFiles(ctx, c.sess.UID, c.sess.Site)
		if err != nil {
			log.Warnf("remove pass: server %d agent unreachable: %v", serverID, err)
			continue
		}

		// 完成 = 目录内不再有半成品文件
		var finished []int64
		for _, f := range files {
			if f.Downloaded {
				finished = append(finished, f.SiteID)
			}
		}
		if len(finished) == 0 {
			continue
		}

		records, err := c.store.GetItemsBySiteIDs(c.sess.UID, c.sess.Site, finished)
		if err != nil {
			log.Warnf("remove pass: server %d query failed: %v", serverID, err)
			continue
		}

		for _, rec := range records {
			if !c.expired(rec) {
				continue
			}
			// 哨兵记录从未真正进过客户端，没有可移除的传输，也不计数
			if rec.TransID == "" || rec.TransID == corruptSentinel {
				continue
			}
			if err := c.removeOne(ctx, serverID, rec); err != nil {
				log.Warnf("remove %s/%d on server %d failed: %v", c.sess.Site, rec.SiteID, serverID, err)
				continue
			}
			c.report.Removed++
		}
	}
}

// expired 免费期判定：从未免费、没有截止时间、或截止时间不晚于当前时刻
// 恰好等于当前时刻也算过期
func (c *Controller) expired(rec store.TorrentRecord) bool {
	if !rec.Free || rec.FreeUntil == nil {
		return true
	}
	return !rec.FreeUntil.After(c.now())
}

func (c *Controller) removeOne(ctx context.Context, serverID uint, rec store.TorrentRecord) error {
	cl, err := c.reg.GetClient(serverID)
	if err != nil {
		return err
	}
	if err := cl.RemoveTorrent(ctx, rec.TransID); err != nil {
		return err
	}

	return c.store.SoftDeleteDownloadRecord(c.sess.UID, c.sess.Site, rec.SiteID)
}

// ReclaimSpace 逐台服务器在空间下限之下做贪心回收：
// 按客户端活跃时间升序弹出最久未动的传输，跳过下载/校验中的和
// 不在托管目录下的，删一个把其体积计回可用空间，直到达标或无候选。
// 候选耗尽仍在下限之下时给出持续低空间告警，不会无限循环。
func (c *Controller) ReclaimSpace(ctx context.Context) {
	for _, serverID := range c.reg.ServerIDs() {
		cfg, err := c.reg.GetConfig(serverID)
		if err != nil {
			continue
		}

		ag := c.agents(cfg.IP, cfg.AgentPort)
		free, err := ag.FreeSpace(ctx, c.sess.UID, c.sess.Site, cfg.OriFileDownloadPath)
		if err != nil {
			log.Warnf("reclaim: server %d agent unreachable: %v", serverID, err)
			continue
		}
		if free >= cfg.MinFreeSpace {
			continue
		}

		cl, err := c.reg.GetClient(serverID)
		if err != nil {
			continue
		}
		torrents, err := cl.GetTorrents(ctx)
		if err != nil {
			log.Warnf("reclaim: server %d list failed: %v", serverID, err)
			continue
		}

		free = c.reclaimServer(ctx, serverID, cfg.OriFileDownloadPath, cfg.MinStaySize, free, cfg.MinFreeSpace, torrents)

		if free < cfg.MinFreeSpace {
			// 候选用尽仍未达标，只能告警等人工处理
			log.Warnf("reclaim: server %d still below floor, free=%d floor=%d", serverID, free, cfg.MinFreeSpace)
			c.report.LowSpaceServers = append(c.report.LowSpaceServers, serverID)
		}
	}
}

func (c *Controller) reclaimServer(ctx context.Context, serverID uint, root string,
	minStaySize, free, floor int64, torrents []client.Torrent) int64 {

	// 最久未活跃的排前面
	sort.Slice(torrents, func(i, j int) bool {
		return torrents[i].ActivityAt.Before(torrents[j].ActivityAt)
	})

	// 按完整路径段比较，/data 不能匹配到 /database 这样的同级目录
	rootPrefix := strings.TrimRight(root, "/") + "/"

	for _, t := range torrents {
		if free >= floor {
			break
		}
		// 进行中的下载永不驱逐
		if client.IsActiveState(t.State) {
			continue
		}
		// 托管目录之外的不归我们管
		if !strings.HasPrefix(t.SavePath, rootPrefix) {
			continue
		}
		// 太小的条目回收意义不大，留着
		if minStaySize > 0 && t.Size < minStaySize {
			continue
		}

		if err := c.evict(ctx, serverID, t); err != nil {
			log.Warnf("reclaim: evict %s on server %d failed: %v", t.ID, serverID, err)
			continue
		}

		free += t.Size
		c.report.Evicted++
		c.report.ReclaimedBytes += t.Size
	}
	return free
}

func (c *Controller) evict(ctx context.Context, serverID uint, t client.Torrent) error {
	cl, err := c.reg.GetClient(serverID)
	if err != nil {
		return err
	}
	if err := cl.RemoveTorrent(ctx, t.ID); err != nil {
		return err
	}

	// 能对上下载记录就顺手软删，对不上的（历史遗留）只删传输
	if rec, err := c.store.GetDownloadRecordByTransID(c.sess.UID, serverID, t.ID); err == nil {
		if err := c.store.SoftDeleteDownloadRecord(c.sess.UID, c.sess.Site, rec.SiteID); err != nil {
			log.Warnf("reclaim: soft delete record for %s failed: %v", t.ID, err)
		}
	}
	return nil
}
