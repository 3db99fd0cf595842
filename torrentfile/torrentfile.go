// Package torrentfile 解析本地 .torrent 文件：计算 infohash、
// 重写 announce 地址指向代理。
package torrentfile

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/anacrolix/torrent/metainfo"
)

// InfoHash 计算种子内容的 infohash（小写十六进制）
func InfoHash(content []byte) (string, error) {
	mi, err := metainfo.Load(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to parse torrent: %w", err)
	}
	return mi.HashInfoBytes().HexString(), nil
}

// InfoHashFile 从本地文件计算 infohash
func InfoHashFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read torrent file: %w", err)
	}
	return InfoHash(content)
}

// RewriteAnnounce 将主 announce 改写到代理主机，
// 保留原始查询参数并注入 uid，tracker 代理按 uid 区分账号
func RewriteAnnounce(content []byte, proxyURL string, uid int64) ([]byte, error) {
	mi, err := metainfo.Load(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse torrent: %w", err)
	}

	orig, err := url.Parse(mi.Announce)
	if err != nil {
		return nil, fmt.Errorf("invalid announce url %q: %w", mi.Announce, err)
	}

	proxy, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url %q: %w", proxyURL, err)
	}

	query := orig.Query()
	query.Set("uid", strconv.FormatInt(uid, 10))
	proxy.RawQuery = query.Encode()
	mi.Announce = proxy.String()

	var buf bytes.Buffer
	if err := mi.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode torrent: %w", err)
	}
	return buf.Bytes(), nil
}

// RewriteAnnounceFile 原地改写本地种子文件的 announce
func RewriteAnnounceFile(path string, proxyURL string, uid int64) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read torrent file: %w", err)
	}

	rewritten, err := RewriteAnnounce(content, proxyURL, uid)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, rewritten, 0644); err != nil {
		return fmt.Errorf("failed to rewrite torrent file: %w", err)
	}
	return nil
}
