// Package client 把两种下载器协议（qBittorrent cookie HTTP API 与
// Transmission JSON-RPC）归一成一个能力接口，控制器不直接接触底层协议。
package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pt-butler/models"
)

var (
	// ErrAuth 登录被拒，对本轮该服务器不可用
	ErrAuth = errors.New("client authentication rejected")
	// ErrAddTorrent 添加种子重试耗尽
	ErrAddTorrent = errors.New("add torrent failed after retries")
	// ErrCorruptTorrent 种子文件损坏，终态，不再重试
	ErrCorruptTorrent = errors.New("invalid or corrupt torrent file")
	// ErrTimeout 单次调用超过固定超时
	ErrTimeout = errors.New("client call timed out")
)

// Torrent 远端一个活跃传输的快照
type Torrent struct {
	ID         string
	Hash       string
	Name       string
	SavePath   string
	Size       int64
	State      string
	Tags       []string
	ActivityAt time.Time
}

// Client 下载器能力接口
// 两个实现的语义并不对称：qBittorrent 支持枚举和打标签但 add 不返回独立
// 传输 id（用 infohash 代替）；Transmission 返回传输 id 但不支持枚举和
// 标签，对应方法实现为安全空操作而不是报错。
type Client interface {
	// Init 建立会话，幂等：已有会话时直接返回
	Init(ctx context.Context) error
	// AddTorrent 以原始种子内容添加，落盘到 savePath，返回传输 id
	AddTorrent(ctx context.Context, content []byte, savePath, hash string) (string, error)
	// AddTorrentURL 以 URL/磁力添加，tag 与 fileName 为展示提示
	AddTorrentURL(ctx context.Context, url, savePath, hash, tag, fileName string) (string, error)
	// RemoveTorrent 删除传输与数据；传输已不存在视为成功
	RemoveTorrent(ctx context.Context, id string) error
	// GetTorrents 枚举活跃传输；某个实现恒返回空列表，调用方须容忍
	GetTorrents(ctx context.Context) ([]Torrent, error)
	// AddTags 尽力而为，失败由调用方记录日志
	AddTags(ctx context.Context, hash, tag string) error
}

// Options 适配器公共参数
type Options struct {
	RetryCount  int           // 添加种子的重试上限，无退避
	CallTimeout time.Duration // 单次 add/remove 调用超时
}

func (o *Options) setDefaults() {
	if o.RetryCount <= 0 {
		o.RetryCount = 3
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 60 * time.Second
	}
}

// New 按服务器配置的客户端类型构造适配器
func New(server *models.Server, opts Options) (Client, error) {
	opts.setDefaults()

	switch server.ClientType {
	case "qbittorrent":
		return NewQBittorrent(server, opts), nil
	case "transmission":
		return NewTransmission(server, opts)
	default:
		return nil, fmt.Errorf("unknown client type: %s", server.ClientType)
	}
}

// IsActiveState 传输是否处于下载/校验中，回收时不得驱逐
func IsActiveState(state string) bool {
	switch state {
	case "downloading", "metaDL", "stalledDL", "queuedDL", "forcedDL", "allocating":
		return true
	}
	return strings.HasPrefix(state, "checking")
}

// callWithTimeout 给一次调用套上硬超时，防止无响应的远端拖死整轮会话
func callWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}

// retryAdd 有界循环重试，损坏种子立即终止
func retryAdd(attempts int, fn func() (string, error)) (string, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		id, err := fn()
		if err == nil {
			return id, nil
		}
		if errors.Is(err, ErrCorruptTorrent) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("%w: %v", ErrAddTorrent, lastErr)
}
