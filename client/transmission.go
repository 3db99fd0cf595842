package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"pt-butler/models"

	"github.com/hekmon/transmissionrpc/v3"
	log "github.com/sirupsen/logrus"
)

// Transmission 基于 transmissionrpc 客户端库的适配器
// 协议不对称：add 返回真实传输 id，但这里不做枚举和打标签，
// GetTorrents 恒返回空列表，AddTags 为空操作
type Transmission struct {
	server *models.Server
	opts   Options

	rpc     *transmissionrpc.Client
	session bool
}

func NewTransmission(server *models.Server, opts Options) (*Transmission, error) {
	endpoint, err := url.Parse(fmt.Sprintf("http://%s:%s@%s:%d/transmission/rpc",
		url.QueryEscape(server.Username), url.QueryEscape(server.Password), server.IP, server.Port))
	if err != nil {
		return nil, fmt.Errorf("invalid transmission endpoint: %w", err)
	}

	rpc, err := transmissionrpc.New(endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create transmission client: %w", err)
	}

	return &Transmission{
		server: server,
		opts:   opts,
		rpc:    rpc,
	}, nil
}

// Init 做一次 RPC 版本握手确认会话可用，幂等
func (t *Transmission) Init(ctx context.Context) error {
	if t.session {
		return nil
	}

	err := callWithTimeout(ctx, t.opts.CallTimeout, func(ctx context.Context) error {
		ok, version, minimum, err := t.rpc.RPCVersion(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("transmission rpc version %d below minimum %d", version, minimum)
		}
		return nil
	})
	if err != nil {
		if strings.Contains(err.Error(), "401") || strings.Contains(err.Error(), "Unauthorized") {
			return fmt.Errorf("%w: %v", ErrAuth, err)
		}
		return fmt.Errorf("transmission handshake failed: %w", err)
	}

	t.session = true
	return nil
}

func (t *Transmission) AddTorrent(ctx context.Context, content []byte, savePath, hash string) (string, error) {
	meta := base64.StdEncoding.EncodeToString(content)
	return retryAdd(t.opts.RetryCount, func() (string, error) {
		return t.addOnce(ctx, transmissionrpc.TorrentAddPayload{
			DownloadDir: &savePath,
			MetaInfo:    &meta,
		}, hash)
	})
}

func (t *Transmission) AddTorrentURL(ctx context.Context, torrentURL, savePath, hash, tag, fileName string) (string, error) {
	// 协议不支持 tag 和重命名提示，忽略
	return retryAdd(t.opts.RetryCount, func() (string, error) {
		return t.addOnce(ctx, transmissionrpc.TorrentAddPayload{
			DownloadDir: &savePath,
			Filename:    &torrentURL,
		}, hash)
	})
}

func (t *Transmission) addOnce(ctx context.Context, payload transmissionrpc.TorrentAddPayload, hash string) (string, error) {
	var added transmissionrpc.Torrent
	err := callWithTimeout(ctx, t.opts.CallTimeout, func(ctx context.Context) error {
		var err error
		added, err = t.rpc.TorrentAdd(ctx, payload)
		return err
	})
	if err != nil {
		// 守护进程对损坏种子返回固定的英文错误串，映射成结构化哨兵
		if strings.Contains(err.Error(), "invalid or corrupt torrent file") {
			return "", ErrCorruptTorrent
		}
		return "", err
	}

	if added.ID != nil {
		return strconv.FormatInt(*added.ID, 10), nil
	}
	if added.HashString != nil {
		return *added.HashString, nil
	}
	return hash, nil
}

func (t *Transmission) RemoveTorrent(ctx context.Context, id string) error {
	transferID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return fmt.Errorf("transmission transfer id %q is not numeric: %w", id, err)
	}

	err = callWithTimeout(ctx, t.opts.CallTimeout, func(ctx context.Context) error {
		return t.rpc.TorrentRemove(ctx, transmissionrpc.TorrentRemovePayload{
			IDs:             []int64{transferID},
			DeleteLocalData: true,
		})
	})
	if err != nil {
		// 已不存在的传输当作删除成功
		if strings.Contains(err.Error(), "not found") {
			return nil
		}
		return err
	}
	return nil
}

// GetTorrents 该协议封装不提供枚举，恒返回空列表，调用方须容忍
func (t *Transmission) GetTorrents(ctx context.Context) ([]Torrent, error) {
	return nil, nil
}

// AddTags 协议不支持标签，空操作
func (t *Transmission) AddTags(ctx context.Context, hash, tag string) error {
	log.Debugf("transmission does not support tags, skipping tag %q for %s", tag, hash)
	return nil
}
