package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client 单台服务器 agent 的 RPC 客户端
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(ip string, port int, token string) *Client {
	return &Client{
		baseURL: fmt.Sprintf("http://%s:%d/agent", ip, port),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// FreeSpace 查询某路径所在文件系统的可用字节数
func (c *Client) FreeSpace(ctx context.Context, uid int64, site, path string) (int64, error) {
	resp, err := c.call(ctx, "freeSpace", map[string]any{
		"uid":  uid,
		"site": site,
		"path": path,
	})
	if err != nil {
		return 0, err
	}

	var result struct {
		Free int64 `json:"free"`
	}
	if err := remarshal(resp.Data, &result); err != nil {
		return 0, fmt.Errorf("freeSpace response malformed: %w", err)
	}
	return result.Free, nil
}

// ListFiles 枚举用户在该站点下的种子数据目录
func (c *Client) ListFiles(ctx context.Context, uid int64, site string) ([]FileItem, error) {
	resp, err := c.call(ctx, "allFileItem", map[string]any{
		"uid":  uid,
		"site": site,
	})
	if err != nil {
		return nil, err
	}

	var items []FileItem
	if err := remarshal(resp.Data, &items); err != nil {
		return nil, fmt.Errorf("allFileItem response malformed: %w", err)
	}
	return items, nil
}

// RemoveFiles 删除一个条目的落盘数据；已不存在视为成功
func (c *Client) RemoveFiles(ctx context.Context, uid int64, site string, siteID int64) error {
	_, err := c.call(ctx, "remove", map[string]any{
		"uid":     uid,
		"site":    site,
		"site_id": siteID,
	})
	return err
}

func (c *Client) call(ctx context.Context, method string, data map[string]any) (*Response, error) {
	payload, err := json.Marshal(Request{Method: method, Data: data})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("X-Agent-Token", c.token)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer httpResp.Body.Close()

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: bad response: %v", ErrUnreachable, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("agent method %s failed: %s", method, resp.Message)
	}
	return &resp, nil
}

// remarshal 把松散解码的 data 字段转回具体类型
func remarshal(data any, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
