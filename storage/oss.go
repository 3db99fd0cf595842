// Package storage 对象存储封装，种子备份与运维截图归档
package storage

import (
	"bytes"
	"fmt"

	"pt-butler/config"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

type OSS struct {
	bucket   *oss.Bucket
	endpoint string
	name     string
}

func NewOSS(cfg config.OSSConfig) (*OSS, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create oss client: %w", err)
	}

	bucket, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open oss bucket %s: %w", cfg.Bucket, err)
	}

	return &OSS{
		bucket:   bucket,
		endpoint: cfg.Endpoint,
		name:     cfg.Bucket,
	}, nil
}

// PutFile 上传本地文件，返回外链
func (o *OSS) PutFile(key, path string) (string, error) {
	if err := o.bucket.PutObjectFromFile(key, path); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return o.url(key), nil
}

// Put 上传内存内容，返回外链
func (o *OSS) Put(key string, data []byte) (string, error) {
	if err := o.bucket.PutObject(key, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return o.url(key), nil
}

func (o *OSS) url(key string) string {
	return fmt.Sprintf("https://%s.%s/%s", o.name, o.endpoint, key)
}
