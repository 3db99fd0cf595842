package downloader

import (
	"context"
	"errors"
	"os"
	"strconv"

	"pt-butler/client"
	"pt-butler/policy"
	"pt-butler/torrentfile"

	log "github.com/sirupsen/logrus"
)

// Distribute 把抓到的种子逐个分派到服务器并落库
// 服务器选择走批内洗牌一次的轮转队列；损坏种子落哨兵记录，
// 真实失败不落记录（下轮会重新入选）
func (c *Controller) Distribute(ctx context.Context, items []fetchedItem) {
	if len(items) == 0 {
		return
	}

	ring := c.pol.NewBatch(c.sess.User.Vip)

	for _, fi := range items {
		result := c.distributeOne(ctx, ring, fi)
		c.persist(fi, result)
	}
}

func (c *Controller) distributeOne(ctx context.Context, ring *policy.Ring, fi fetchedItem) Result {
	content, err := os.ReadFile(fi.path)
	if err != nil {
		log.Warnf("distribute %s/%d: read local file failed: %v", c.sess.Site, fi.item.SiteID, err)
		return Result{Outcome: OutcomeFailed}
	}

	// 本地内容一到手就算 infohash，损坏哨兵也要回写种子行的 hash
	hash, err := torrentfile.InfoHash(content)
	if err != nil {
		log.Debugf("distribute %s/%d: infohash parse failed: %v", c.sess.Site, fi.item.SiteID, err)
	}

	serverID, ok := ring.Next()
	if !ok {
		log.Warnf("distribute %s/%d: no eligible servers", c.sess.Site, fi.item.SiteID)
		return Result{Outcome: OutcomeFailed, Hash: hash}
	}

	cfg, err := c.reg.GetConfig(serverID)
	if err != nil {
		log.Warnf("distribute %s/%d: %v", c.sess.Site, fi.item.SiteID, err)
		return Result{Outcome: OutcomeFailed, Hash: hash}
	}
	cl, err := c.reg.GetClient(serverID)
	if err != nil {
		log.Warnf("distribute %s/%d: %v", c.sess.Site, fi.item.SiteID, err)
		return Result{Outcome: OutcomeFailed, Hash: hash}
	}

	savePath := cfg.FileDownloadPath + "/" + strconv.FormatInt(fi.item.SiteID, 10)
	transID, err := cl.AddTorrent(ctx, content, savePath, hash)

	switch {
	case err == nil:
		// 添加成功才压回队尾，保证批内均匀
		ring.Requeue(serverID)
		return Result{Outcome: OutcomeDistributed, TransID: transID, Hash: hash, ServerID: serverID}

	case errors.Is(err, client.ErrCorruptTorrent):
		// 种子本身的问题，服务器无辜，照常回队
		ring.Requeue(serverID)
		log.Warnf("distribute %s/%d to server %d: corrupt torrent", c.sess.Site, fi.item.SiteID, serverID)
		return Result{Outcome: OutcomeCorrupt, Hash: hash, ServerID: serverID}

	default:
		log.Warnf("distribute %s/%d to server %d failed: %v", c.sess.Site, fi.item.SiteID, serverID, err)
		return Result{Outcome: OutcomeFailed, Hash: hash, ServerID: serverID}
	}
}

// persist 按结果落库：真实失败不留痕，其余回写 hash 并建下载记录
func (c *Controller) persist(fi fetchedItem, result Result) {
	site, uid, siteID := c.sess.Site, c.sess.UID, fi.item.SiteID

	switch result.Outcome {
	case OutcomeFailed:
		c.report.DistributeFailed++
		return

	case OutcomeCorrupt:
		c.report.Corrupt++
		if result.Hash != "" {
			if err := c.store.UpdateTorrentHash(uid, site, siteID, result.Hash); err != nil {
				log.Warnf("persist %s/%d: %v", site, siteID, err)
			}
		}
		// 哨兵记录：不是真的在下，但记住试过，避免反复重试
		if err := c.store.CreateDownloadRecord(site, siteID, uid, corruptSentinel, corruptSentinel, result.ServerID); err != nil {
			log.Warnf("persist %s/%d: %v", site, siteID, err)
		}

	case OutcomeDistributed:
		c.report.Distributed++
		if err := c.store.UpdateTorrentHash(uid, site, siteID, result.Hash); err != nil {
			log.Warnf("persist %s/%d: %v", site, siteID, err)
		}
		if err := c.store.AssignServer(uid, site, siteID, result.ServerID); err != nil {
			log.Warnf("persist %s/%d: %v", site, siteID, err)
		}
		if err := c.store.CreateDownloadRecord(site, siteID, uid, result.TransID, result.Hash, result.ServerID); err != nil {
			log.Warnf("persist %s/%d: %v", site, siteID, err)
		}
	}
}
