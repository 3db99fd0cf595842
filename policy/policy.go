// Package policy 分发策略：批内洗牌一次的轮转选择、vip/box 服务器类别
// 过滤，以及保持客户端标签与账号归属一致的对账操作。
package policy

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"pt-butler/registry"

	log "github.com/sirupsen/logrus"
)

// Ring 显式环形队列
// 批次开始时洗牌一次，之后取队头、成功后压回队尾，
// 批内负载均匀摊开，只要还有两台候选就不会连续命中同一台
type Ring struct {
	ids []uint
}

func NewRing(ids []uint) *Ring {
	out := make([]uint, len(ids))
	copy(out, ids)
	return &Ring{ids: out}
}

// Next 弹出队头；队列为空时第二个返回值为 false
func (r *Ring) Next() (uint, bool) {
	if len(r.ids) == 0 {
		return 0, false
	}
	id := r.ids[0]
	r.ids = r.ids[1:]
	return id, true
}

// Requeue 压回队尾，添加成功后调用
func (r *Ring) Requeue(id uint) {
	r.ids = append(r.ids, id)
}

func (r *Ring) Len() int {
	return len(r.ids)
}

type Policy struct {
	reg  *registry.Registry
	rand *rand.Rand
}

func New(reg *registry.Registry) *Policy {
	return &Policy{
		reg:  reg,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRand 固定随机源，仅测试使用
func (p *Policy) SetRand(r *rand.Rand) {
	p.rand = r
}

// EligibleServers 按账号类别过滤：box 类服务器服务非 VIP 账号，
// 非 box 服务器服务 VIP 账号
func (p *Policy) EligibleServers(vip bool) []uint {
	var eligible []uint
	for _, id := range p.reg.ServerIDs() {
		cfg, err := p.reg.GetConfig(id)
		if err != nil {
			continue
		}
		if cfg.IsBox == vip {
			continue
		}
		eligible = append(eligible, id)
	}
	return eligible
}

// NewBatch 为一个分发批次构造洗牌后的轮转队列
func (p *Policy) NewBatch(vip bool) *Ring {
	ids := p.EligibleServers(vip)
	p.rand.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
	return NewRing(ids)
}

// SyncTags 标签对账：遍历每台服务器的活跃传输，从落盘路径反推
// {site}/{uid} 并补打标签，运维从客户端界面即可看出归属。
// 幂等：标签已存在时跳过；单个传输出错不会中断外层循环。
func (p *Policy) SyncTags(ctx context.Context) {
	for _, serverID := range p.reg.ServerIDs() {
		cl, err := p.reg.GetClient(serverID)
		if err != nil {
			continue
		}

		torrents, err := cl.GetTorrents(ctx)
		if err != nil {
			log.Warnf("tag sync: list server %d failed: %v", serverID, err)
			continue
		}

		for _, t := range torrents {
			tag, ok := OwnerTag(t.SavePath)
			if !ok {
				continue
			}
			if hasTag(t.Tags, tag) {
				continue
			}
			if err := cl.AddTags(ctx, t.Hash, tag); err != nil {
				log.Warnf("tag sync: tag %s on server %d failed: %v", t.Hash, serverID, err)
			}
		}
	}
}

// OwnerTag 从落盘路径反推归属标签
// 路径末三段约定为 .../{site}/{uid}/{siteId}，标签取 "{site}/{uid}"
func OwnerTag(savePath string) (string, bool) {
	segs := strings.Split(strings.Trim(savePath, "/"), "/")
	if len(segs) < 3 {
		return "", false
	}
	site := segs[len(segs)-3]
	uid := segs[len(segs)-2]
	if site == "" || uid == "" {
		return "", false
	}
	return site + "/" + uid, true
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
