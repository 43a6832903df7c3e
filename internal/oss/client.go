// 本文件用于 OSS 客户端封装与报告上传
// 文件职责：实现当前模块的核心业务逻辑与数据流转
// 关键路径：入口参数先校验再执行业务处理 最后返回统一结果
// 边界与容错：异常场景显式返回错误 由上层决定重试或降级

package oss

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	sdk "github.com/aliyun/aliyun-oss-go-sdk/oss"

	"ci-alert/internal/logger"
	"ci-alert/internal/models"
	"ci-alert/internal/pathutil"
)

// Client 封装 OSS SDK 客户端及相关配置
type Client struct {
	ossClient *sdk.Client
	bucket    *sdk.Bucket
	config    *models.Config
}

// NewClient 创建并初始化 OSS 客户端
func NewClient(config *models.Config) (*Client, error) {
	logger.Info("初始化OSS客户端...")
	endpoint, err := normalizeOSSEndpoint(config.Endpoint, config.DisableSSL)
	if err != nil {
		return nil, err
	}

	ossClient, err := sdk.New(endpoint, config.AK, config.SK)
	if err != nil {
		return nil, fmt.Errorf("创建OSS客户端失败: %w", err)
	}
	bucket, err := ossClient.Bucket(config.Bucket)
	if err != nil {
		return nil, fmt.Errorf("获取OSS Bucket失败: %w", err)
	}

	logger.Info("OSS客户端初始化成功")
	return &Client{
		ossClient: ossClient,
		bucket:    bucket,
		config:    config,
	}, nil
}

// UploadBytes 上传内容到 OSS 并返回下载链接
func (c *Client) UploadBytes(ctx context.Context, objectKey string, data []byte, contentType string) (string, error) {
	if c == nil || c.bucket == nil {
		return "", fmt.Errorf("OSS Bucket未初始化")
	}
	if objectKey == "" {
		return "", fmt.Errorf("对象Key不能为空")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	options := []sdk.Option{
		sdk.ContentType(contentType),
		sdk.ContentLength(int64(len(data))),
	}
	if err := c.bucket.PutObject(objectKey, bytes.NewReader(data), options...); err != nil {
		return "", fmt.Errorf("OSS上传失败: %w", err)
	}
	logger.Info("OSS上传成功: %s", objectKey)

	downloadURL := pathutil.BuildDownloadURL(
		c.config.Endpoint,
		c.config.Bucket,
		objectKey,
		false,
		c.config.DisableSSL,
	)
	logger.Info("下载链接: %s", downloadURL)
	return downloadURL, nil
}

// normalizeOSSEndpoint 统一 endpoint 协议 缺省按配置补全
func normalizeOSSEndpoint(endpoint string, disableSSL bool) (string, error) {
	cleaned := strings.TrimSpace(endpoint)
	if cleaned == "" {
		return "", fmt.Errorf("OSS endpoint 不能为空")
	}
	if strings.Contains(cleaned, "://") {
		parsed, err := url.Parse(cleaned)
		if err != nil || parsed.Host == "" {
			return "", fmt.Errorf("OSS endpoint 无效: %s", endpoint)
		}
		return cleaned, nil
	}
	scheme := "https"
	if disableSSL {
		scheme = "http"
	}
	return scheme + "://" + cleaned, nil
}
