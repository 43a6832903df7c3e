// 本文件用于对象 key 生成与下载 URL 构造
package pathutil

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// BuildReportObjectKey 构造报告对象的稳定 key 按日期分层
func BuildReportObjectKey(prefix string, generatedAt time.Time) string {
	ts := generatedAt.UTC()
	name := fmt.Sprintf("ci-report-%s.json", ts.Format("20060102T150405Z"))
	return trimLeadingSlash(joinURLPath(prefix, "reports", ts.Format("2006/01/02"), name))
}

// BuildDownloadURL 根据 bucket、endpoint 和对象 key 构造下载 URL
func BuildDownloadURL(endpoint, bucket, objectKey string, forcePathStyle, disableSSL bool) string {
	scheme := "https"
	if disableSSL {
		scheme = "http"
	}

	normalizedScheme, host, basePath := normalizeEndpoint(endpoint)
	if normalizedScheme != "" {
		scheme = normalizedScheme
	}

	rawKey := cleanObjectKey(objectKey)      //未转义的原始 key
	escapedKey := escapeObjectKey(objectKey) //转义后的 key

	u := &url.URL{Scheme: scheme}

	rawParts := []string{basePath}
	escapedParts := []string{basePath}

	// 强制路径风格时使用 host/basePath/bucket/objectKey 形式
	// 非强制路径风格时使用 bucket.host/basePath/objectKey 形式
	if forcePathStyle {
		rawParts = append(rawParts, bucket, rawKey)
		escapedParts = append(escapedParts, bucket, escapedKey)
		u.Host = host
	} else {
		u.Host = host
		if bucket != "" {
			if host != "" {
				u.Host = fmt.Sprintf("%s.%s", bucket, host)
			} else {
				u.Host = bucket
			}
		}
		rawParts = append(rawParts, rawKey)
		escapedParts = append(escapedParts, escapedKey)
	}

	u.Path = "/" + joinURLPath(rawParts...)
	u.RawPath = "/" + joinURLPath(escapedParts...)
	return u.String()
}

// toSlashPath 用于将路径统一为斜杠格式
func toSlashPath(input string) string {
	cleaned := filepath.Clean(input)
	cleaned = filepath.ToSlash(cleaned)
	return strings.TrimPrefix(cleaned, "./")
}

// trimLeadingSlash 用于移除或清理数据
func trimLeadingSlash(input string) string {
	return strings.TrimPrefix(input, "/")
}

// joinURLPath 用于拼接 URL 路径并避免重复分隔符
func joinURLPath(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, "/")
		if part != "" && part != "." {
			cleaned = append(cleaned, part)
		}
	}
	return strings.Join(cleaned, "/")
}

// escapeObjectKey 用于转义对象 key 保障 URL 安全
func escapeObjectKey(objectKey string) string {
	key := cleanObjectKey(objectKey)
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// cleanObjectKey 用于清理对象 key 避免异常路径
func cleanObjectKey(objectKey string) string {
	return trimLeadingSlash(toSlashPath(objectKey))
}

// normalizeEndpoint 用于统一数据格式便于比较与存储
func normalizeEndpoint(endpoint string) (scheme, host, basePath string) {
	cleaned := strings.TrimSpace(endpoint)
	parsed, err := url.Parse(cleaned)
	if err != nil || parsed.Host == "" {
		// 让不带协议的 endpoint 也能被正确当成主机名解析
		parsed, err = url.Parse("//" + cleaned)
		if err != nil {
			return "", cleaned, ""
		}
		return "", parsed.Host, strings.TrimSuffix(parsed.Path, "/")
	}
	return parsed.Scheme, parsed.Host, strings.TrimSuffix(parsed.Path, "/")
}
