// 本文件用于路径工具相关测试
package pathutil

import (
	"testing"
	"time"
)

func TestBuildReportObjectKey(t *testing.T) {
	ts := time.Date(2026, 8, 26, 10, 30, 0, 0, time.UTC)
	got := BuildReportObjectKey("", ts)
	want := "reports/2026/08/26/ci-report-20260826T103000Z.json"
	if got != want {
		t.Fatalf("BuildReportObjectKey() = %q, want %q", got, want)
	}

	got = BuildReportObjectKey("/ci-alert/", ts)
	want = "ci-alert/reports/2026/08/26/ci-report-20260826T103000Z.json"
	if got != want {
		t.Fatalf("带前缀的对象 key 异常: %q", got)
	}
}

func TestBuildDownloadURL_PathStyleAndEscape(t *testing.T) {
	got := BuildDownloadURL("http://minio.local:9000", "bucket", "reports/a b.json", true, false)
	want := "http://minio.local:9000/bucket/reports/a%20b.json"
	if got != want {
		t.Fatalf("BuildDownloadURL() = %q, want %q", got, want)
	}
}

func TestBuildDownloadURL_VirtualHostEndpointWithoutScheme(t *testing.T) {
	got := BuildDownloadURL("oss-cn-hangzhou.aliyuncs.com", "bucket", "reports/x.json", false, false)
	want := "https://bucket.oss-cn-hangzhou.aliyuncs.com/reports/x.json"
	if got != want {
		t.Fatalf("BuildDownloadURL() = %q, want %q", got, want)
	}
}

func TestBuildDownloadURL_DisableSSL(t *testing.T) {
	got := BuildDownloadURL("minio.local:9000", "bucket", "x.json", true, true)
	want := "http://minio.local:9000/bucket/x.json"
	if got != want {
		t.Fatalf("BuildDownloadURL() = %q, want %q", got, want)
	}
}
