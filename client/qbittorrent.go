package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pt-butler/models"

	qbittorrent "github.com/autobrr/go-qbittorrent"
	log "github.com/sirupsen/logrus"
)

// QBittorrent 基于 autobrr/go-qbittorrent 客户端库的适配器
// add 不返回独立传输 id，约定用 infohash 充当 id
type QBittorrent struct {
	rpc  *qbittorrent.Client
	opts Options

	loggedIn bool
}

func NewQBittorrent(server *models.Server, opts Options) *QBittorrent {
	return &QBittorrent{
		rpc: qbittorrent.NewClient(qbittorrent.Config{
			Host:     fmt.Sprintf("http://%s:%d", server.IP, server.Port),
			Username: server.Username,
			Password: server.Password,
		}),
		opts: opts,
	}
}

// Init 登录换取会话 cookie，幂等
// 会话过期后的重新登录由库在请求层自动处理
func (q *QBittorrent) Init(ctx context.Context) error {
	if q.loggedIn {
		return nil
	}

	err := callWithTimeout(ctx, q.opts.CallTimeout, func(ctx context.Context) error {
		return q.rpc.LoginCtx(ctx)
	})
	if err != nil {
		return fmt.Errorf("%w: qbittorrent login: %v", ErrAuth, err)
	}

	q.loggedIn = true
	return nil
}

func (q *QBittorrent) AddTorrent(ctx context.Context, content []byte, savePath, hash string) (string, error) {
	opts := map[string]string{
		"savepath": savePath,
	}
	return retryAdd(q.opts.RetryCount, func() (string, error) {
		err := callWithTimeout(ctx, q.opts.CallTimeout, func(ctx context.Context) error {
			return q.mapAddError(q.rpc.AddTorrentFromMemoryCtx(ctx, content, opts))
		})
		if err != nil {
			return "", err
		}
		// add 接口不返回 id，按约定回传 infohash
		return hash, nil
	})
}

func (q *QBittorrent) AddTorrentURL(ctx context.Context, torrentURL, savePath, hash, tag, fileName string) (string, error) {
	opts := map[string]string{
		"savepath": savePath,
	}
	if tag != "" {
		opts["tags"] = tag
	}
	if fileName != "" {
		opts["rename"] = fileName
	}
	return retryAdd(q.opts.RetryCount, func() (string, error) {
		err := callWithTimeout(ctx, q.opts.CallTimeout, func(ctx context.Context) error {
			return q.mapAddError(q.rpc.AddTorrentFromUrlCtx(ctx, torrentURL, opts))
		})
		if err != nil {
			return "", err
		}
		return hash, nil
	})
}

// mapAddError 把库上抛的 HTTP 415 归一成损坏哨兵
// 库不暴露结构化状态码，只能在适配器边界匹配报错文本
func (q *QBittorrent) mapAddError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "415") || strings.Contains(msg, "unsupported media type") {
		return ErrCorruptTorrent
	}
	return err
}

func (q *QBittorrent) RemoveTorrent(ctx context.Context, id string) error {
	return callWithTimeout(ctx, q.opts.CallTimeout, func(ctx context.Context) error {
		err := q.rpc.DeleteTorrentsCtx(ctx, []string{id}, true)
		if err != nil {
			// 传输已不存在视为成功
			if strings.Contains(strings.ToLower(err.Error()), "not found") {
				return nil
			}
			return fmt.Errorf("qbittorrent delete failed: %w", err)
		}
		return nil
	})
}

func (q *QBittorrent) GetTorrents(ctx context.Context) ([]Torrent, error) {
	var infos []qbittorrent.Torrent
	err := callWithTimeout(ctx, q.opts.CallTimeout, func(ctx context.Context) error {
		var err error
		infos, err = q.rpc.GetTorrentsCtx(ctx, qbittorrent.TorrentFilterOptions{
			Filter: qbittorrent.TorrentFilterAll,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("qbittorrent list failed: %w", err)
	}

	torrents := make([]Torrent, 0, len(infos))
	for _, info := range infos {
		var tags []string
		if info.Tags != "" {
			for _, t := range strings.Split(info.Tags, ",") {
				tags = append(tags, strings.TrimSpace(t))
			}
		}
		torrents = append(torrents, Torrent{
			ID:         info.Hash,
			Hash:       info.Hash,
			Name:       info.Name,
			SavePath:   info.SavePath,
			Size:       info.Size,
			State:      string(info.State),
			Tags:       tags,
			ActivityAt: time.Unix(info.LastActivity, 0),
		})
	}
	return torrents, nil
}

func (q *QBittorrent) AddTags(ctx context.Context, hash, tag string) error {
	err := callWithTimeout(ctx, q.opts.CallTimeout, func(ctx context.Context) error {
		return q.rpc.AddTagsCtx(ctx, []string{hash}, tag)
	})
	if err != nil {
		return fmt.Errorf("qbittorrent addTags failed: %w", err)
	}
	log.Debugf("qbittorrent tagged %s with %q", hash, tag)
	return nil
}
