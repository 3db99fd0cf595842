// Package downloader 生命周期控制器：一次 user+site 会话内
// 选种 → 抓取 → 归档 → 分发 → 记录，之后的独立巡检里
// 检出完成、过期移除、低空间回收。
package downloader

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"pt-butler/agent"
	"pt-butler/config"
	"pt-butler/models"
	"pt-butler/notify"
	"pt-butler/policy"
	"pt-butler/registry"
	"pt-butler/store"

	log "github.com/sirupsen/logrus"
)

// Store 控制器依赖的数据访问面
type Store interface {
	GetEligibleTorrents(uid int64, site string, now time.Time) ([]models.Torrent, error)
	UpdateTorrentHash(uid int64, site string, siteID int64, hash string) error
	AssignServer(uid int64, site string, siteID int64, serverID uint) error
	CreateDownloadRecord(site string, siteID, uid int64, transID, hash string, serverID uint) error
	GetDownloadRecordByTransID(uid int64, serverID uint, transID string) (*models.Downloader, error)
	SoftDeleteDownloadRecord(uid int64, site string, siteID int64) error
	GetItemsBySiteIDs(uid int64, site string, siteIDs []int64) ([]store.TorrentRecord, error)
}

// ObjectStorage 种子备份用的对象存储面
type ObjectStorage interface {
	PutFile(key, path string) (string, error)
}

// AgentClient 远程 agent 的调用面
type AgentClient interface {
	FreeSpace(ctx context.Context, uid int64, site, path string) (int64, error)
	ListFiles(ctx context.Context, uid int64, site string) ([]agent.FileItem, error)
	RemoveFiles(ctx context.Context, uid int64, site string, siteID int64) error
}

// AgentFactory 按服务器地址构造 agent 客户端
type AgentFactory func(ip string, port int) AgentClient

// Outcome 单个种子分发的结果
type Outcome int

const (
	OutcomeDistributed Outcome = iota
	OutcomeCorrupt             // 种子损坏，终态，记哨兵不再重试
	OutcomeFailed              // 真实失败，不落记录，下轮重新入选
)

// 损坏哨兵在下载记录里的落库形态
const corruptSentinel = "0"

// Result 分发结果
type Result struct {
	Outcome  Outcome
	TransID  string
	Hash     string
	ServerID uint
}

// Report 会话聚合报告
type Report struct {
	Site string
	UID  int64

	Eligible        int
	Selected        int
	Fetched         int
	SkippedExisting int
	FetchFailed     int

	Distributed      int
	Corrupt          int
	DistributeFailed int

	Removed        int
	Evicted        int
	ReclaimedBytes int64

	// 回收后仍低于空间下限的服务器
	LowSpaceServers []uint
}

func (r *Report) String() string {
	msg := fmt.Sprintf("[%s/%d] 候选 %d 选取 %d | 抓取 %d 跳过 %d 失败 %d | 分发 %d 损坏 %d 失败 %d | 移除 %d 驱逐 %d 回收 %.2fGB",
		r.Site, r.UID,
		r.Eligible, r.Selected,
		r.Fetched, r.SkippedExisting, r.FetchFailed,
		r.Distributed, r.Corrupt, r.DistributeFailed,
		r.Removed, r.Evicted, float64(r.ReclaimedBytes)/(1<<30))
	if len(r.LowSpaceServers) > 0 {
		msg += fmt.Sprintf(" | 低空间告警: %v", r.LowSpaceServers)
	}
	return msg
}

// Controller 生命周期控制器，串行执行，状态只属于本会话
type Controller struct {
	sess     *config.Session
	store    Store
	reg      *registry.Registry
	pol      *policy.Policy
	storage  ObjectStorage // 可为 nil，未配置对象存储时跳过归档
	agents   AgentFactory
	notifier notify.Notifier

	httpc      *http.Client
	fetchDelay time.Duration
	now        func() time.Time

	report Report
}

func NewController(sess *config.Session, st Store, reg *registry.Registry, pol *policy.Policy,
	storage ObjectStorage, agents AgentFactory, notifier notify.Notifier) *Controller {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Controller{
		sess:     sess,
		store:    st,
		reg:      reg,
		pol:      pol,
		storage:  storage,
		agents:   agents,
		notifier: notifier,
		httpc: &http.Client{
			Timeout: sess.Cfg.Download.FetchTimeout,
		},
		fetchDelay: sess.Cfg.Download.FetchDelay,
		now:        time.Now,
		report:     Report{Site: sess.Site, UID: sess.UID},
	}
}

// Report 当前会话的聚合报告
func (c *Controller) Report() *Report {
	return &c.report
}

// Registry 本会话的服务器注册表
func (c *Controller) Registry() *registry.Registry {
	return c.reg
}

// Policy 本会话的分发策略
func (c *Controller) Policy() *policy.Policy {
	return c.pol
}

// Run 执行完整会话：分发新种、移除过期、回收空间，最后上报
// 单项失败在各阶段内部消化，只有会话级初始化错误会冒到这里
func (c *Controller) Run(ctx context.Context) error {
	if err := c.reg.Load(ctx); err != nil {
		c.notifier.Send(ctx, fmt.Sprintf("[%s/%d] 会话启动失败: %v", c.sess.Site, c.sess.UID, err))
		return err
	}

	items, err := c.SelectBatch()
	if err != nil {
		c.notifier.Send(ctx, fmt.Sprintf("[%s/%d] 选种失败: %v", c.sess.Site, c.sess.UID, err))
		return err
	}

	fetched := c.Fetch(ctx, items)
	c.Archive(fetched)
	c.RewriteProxy(fetched)
	c.Distribute(ctx, fetched)

	c.RemoveExpired(ctx)
	c.ReclaimSpace(ctx)

	log.Info(c.report.String())
	c.notifier.Send(ctx, c.report.String())
	return nil
}
