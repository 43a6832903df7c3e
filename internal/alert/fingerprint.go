// 本文件用于异常事件指纹计算
package alert

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"

	"ci-alert/internal/models"
)

// Fingerprint 计算事件的稳定指纹
// 同任务同异常特征集合的事件 无论特征顺序与数值如何 指纹恒定
func Fingerprint(event *models.AnomalyEvent) string {
	job := jobNameOf(event)

	var names []string
	if event != nil {
		seen := make(map[string]struct{}, len(event.Features))
		names = make([]string, 0, len(event.Features))
		for _, feature := range event.Features {
			name := strings.TrimSpace(feature.Feature)
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)

	raw := job + "|" + strings.Join(names, "|")
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
