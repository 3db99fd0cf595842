// Package agent 与部署在每台下载服务器上的伴生进程通信。
// 控制器拿不到远程文件系统，磁盘余量、目录扫描、数据删除都走这条 RPC。
package agent

import (
	"errors"
	"time"
)

// ErrUnreachable agent 网络不可达；是否致命由调用方决定
var ErrUnreachable = errors.New("agent unreachable")

// 下载未完成时临时文件的扩展名
var partialMarkers = []string{".!qB", ".part"}

// Request POST /agent 的请求体
type Request struct {
	Method string         `json:"method"`
	Data   map[string]any `json:"data"`
}

// Response 统一响应
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// FileItem 用户目录下的一个种子数据目录
// Downloaded 表示目录内递归不存在半成品文件
// CreatedAt 取目录的 mtime 近似创建时间（Linux 下多数文件系统拿不到
// 出生时间），条目目录落盘后不再改名，mtime 足够当新旧依据
type FileItem struct {
	SiteID     int64     `json:"site_id"`
	Downloaded bool      `json:"downloaded"`
	CreatedAt  time.Time `json:"created_at"`
}
