package oss

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/qs3c/codeforge_server/config"
)

type Client struct {
	client     *oss.Client
	bucket     *oss.Bucket
	bucketName string
	cdnDomain  string
}

func NewClient(cfg *config.OSSConfig) (*Client, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &Client{
		client:     client,
		bucket:     bucket,
		bucketName: cfg.BucketName,
		cdnDomain:  cfg.CDNDomain,
	}, nil
}

// DocumentKey 文档归档的 object key
func DocumentKey(urlHash, version string) string {
	if version == "" {
		version = "latest"
	}
	return fmt.Sprintf("docs/%s/%s.md", urlHash, sanitizeSegment(version))
}

// ArchiveDocument 归档抽取后的文档 markdown
func (c *Client) ArchiveDocument(urlHash, version string, content []byte) (string, error) {
	return c.UploadFile(DocumentKey(urlHash, version), content, "text/markdown; charset=utf-8")
}

// UploadFile 上传通用文件
func (c *Client) UploadFile(objectKey string, data []byte, contentType string) (string, error) {
	err := c.bucket.PutObject(objectKey, bytes.NewReader(data), oss.ContentType(contentType))
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	return c.GetURL(objectKey), nil
}

// Delete 删除文件
func (c *Client) Delete(objectKey string) error {
	err := c.bucket.DeleteObject(objectKey)
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// DeleteDocument 删除某文档的全部归档版本
func (c *Client) DeleteDocument(urlHash string) (int, error) {
	prefix := fmt.Sprintf("docs/%s/", urlHash)
	result, err := c.bucket.ListObjects(oss.Prefix(prefix))
	if err != nil {
		return 0, fmt.Errorf("failed to list archived versions: %w", err)
	}
	deleted := 0
	for _, obj := range result.Objects {
		if err := c.Delete(obj.Key); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// GetURL 获取文件访问 URL
func (c *Client) GetURL(objectKey string) string {
	return BuildURL(c.cdnDomain, c.bucketName, c.client.Config.Endpoint, objectKey)
}

// BuildURL 优先使用 CDN 域名
func BuildURL(cdnDomain, bucketName, endpoint, objectKey string) string {
	if cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", cdnDomain, objectKey)
	}
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	return fmt.Sprintf("https://%s.%s/%s", bucketName, endpoint, objectKey)
}

// GetSignedURL 生成带签名的临时访问URL（默认1小时有效）
func (c *Client) GetSignedURL(objectKey string, expireSeconds ...int64) (string, error) {
	expire := int64(3600)
	if len(expireSeconds) > 0 && expireSeconds[0] > 0 {
		expire = expireSeconds[0]
	}

	signedURL, err := c.bucket.SignURL(objectKey, oss.HTTPGet, expire)
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}

	return signedURL, nil
}

func sanitizeSegment(s string) string {
	s = path.Base("/" + s)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
