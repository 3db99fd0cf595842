// Package registry 维护一次运行期间账号可用的下载服务器及其客户端会话
package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pt-butler/client"
	"pt-butler/config"
	"pt-butler/models"

	log "github.com/sirupsen/logrus"
)

// ErrServerNotFound 服务器未注册或本轮初始化失败
var ErrServerNotFound = errors.New("server not registered")

// ServerConfig 服务器配置连同本轮派生的路径
// FileDownloadPath 是追加了 {site}/{uid} 的用户级落盘路径，
// OriFileDownloadPath 保留未加后缀的根路径，查磁盘空间用
type ServerConfig struct {
	models.Server
	FileDownloadPath    string
	OriFileDownloadPath string
}

// ServerSource 服务器配置的来源，生产环境由 store 实现
type ServerSource interface {
	GetServersForUser(serverIDs []uint) ([]models.Server, error)
}

type Registry struct {
	sess   *config.Session
	source ServerSource

	clients map[uint]client.Client
	configs map[uint]*ServerConfig
	order   []uint

	// 测试替换用，默认 client.New
	newClient func(*models.Server, client.Options) (client.Client, error)
}

func New(sess *config.Session, source ServerSource) *Registry {
	return &Registry{
		sess:      sess,
		source:    source,
		clients:   make(map[uint]client.Client),
		configs:   make(map[uint]*ServerConfig),
		newClient: client.New,
	}
}

// SetClientFactory 替换客户端构造函数，仅测试使用
func (r *Registry) SetClientFactory(fn func(*models.Server, client.Options) (client.Client, error)) {
	r.newClient = fn
}

// Load 加载账号绑定的全部服务器并逐台建立客户端会话
// 每轮只加载一次：已有条目时直接返回，防止重复建会话
func (r *Registry) Load(ctx context.Context) error {
	if len(r.configs) > 0 {
		return nil
	}

	serverIDs := ParseServerIDs(r.sess.User.ServerIDs)
	if len(serverIDs) == 0 {
		return fmt.Errorf("user %d has no servers configured", r.sess.UID)
	}

	servers, err := r.source.GetServersForUser(serverIDs)
	if err != nil {
		return fmt.Errorf("failed to load servers: %w", err)
	}

	opts := client.Options{
		RetryCount:  r.sess.Cfg.Download.RetryCount,
		CallTimeout: r.sess.Cfg.Download.CallTimeout,
	}

	for i := range servers {
		srv := servers[i]
		cfg := &ServerConfig{
			Server:              srv,
			OriFileDownloadPath: srv.FileDownloadPath,
			FileDownloadPath: fmt.Sprintf("%s/%s/%d",
				strings.TrimRight(srv.FileDownloadPath, "/"), r.sess.Site, r.sess.UID),
		}

		cl, err := r.newClient(&srv, opts)
		if err != nil {
			log.Warnf("server %d (%s) client build failed, unavailable this run: %v", srv.ID, srv.IP, err)
			continue
		}
		if err := cl.Init(ctx); err != nil {
			// 单台会话失败只记日志，其余服务器照常可用
			log.Warnf("server %d (%s) session init failed, unavailable this run: %v", srv.ID, srv.IP, err)
			continue
		}

		r.clients[srv.ID] = cl
		r.configs[srv.ID] = cfg
		r.order = append(r.order, srv.ID)
	}

	if len(r.configs) == 0 {
		return fmt.Errorf("no usable servers for user %d", r.sess.UID)
	}

	log.Infof("registry loaded %d/%d servers for user %d", len(r.configs), len(servers), r.sess.UID)
	return nil
}

// GetClient 取服务器的客户端会话
func (r *Registry) GetClient(serverID uint) (client.Client, error) {
	cl, ok := r.clients[serverID]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrServerNotFound, serverID)
	}
	return cl, nil
}

// GetConfig 取服务器配置
func (r *Registry) GetConfig(serverID uint) (*ServerConfig, error) {
	cfg, ok := r.configs[serverID]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrServerNotFound, serverID)
	}
	return cfg, nil
}

// ServerIDs 本轮可用的服务器 id，按加载顺序
func (r *Registry) ServerIDs() []uint {
	out := make([]uint, len(r.order))
	copy(out, r.order)
	return out
}

// ParseServerIDs 解析账号上逗号分隔的服务器 id 列表
func ParseServerIDs(raw string) []uint {
	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids
}
