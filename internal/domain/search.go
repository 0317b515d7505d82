package domain

import (
	"fmt"
	"sort"
	"strings"
)

// SearchQuery 一次搜索调用的不可变输入。
type SearchQuery struct {
	Text            string `json:"searchText"`
	IncludePersonal bool   `json:"includePersonal"`
	IncludeShared   bool   `json:"includeShared"`
	MaxResults      int    `json:"maxResults"`
}

// Validate 校验查询参数。
func (q SearchQuery) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("searchText must not be empty")
	}
	if q.MaxResults <= 0 {
		return fmt.Errorf("maxResults must be positive, got %d", q.MaxResults)
	}
	return nil
}

// CacheKey 结果缓存的精确匹配键。
type CacheKey struct {
	Text            string
	IncludePersonal bool
	IncludeShared   bool
	MaxResults      int
}

// Key 返回查询的缓存键。查询文本按原样参与匹配（精确短语搜索）。
func (q SearchQuery) Key() CacheKey {
	return CacheKey{
		Text:            q.Text,
		IncludePersonal: q.IncludePersonal,
		IncludeShared:   q.IncludeShared,
		MaxResults:      q.MaxResults,
	}
}

// SearchResult 一次搜索的结果集合。
//
// Records 按 ReceivedAt 倒序排列，长度不超过查询的 MaxResults。
// Errors 收集非致命的范围级错误（如共享邮箱搜索失败），
// 不影响已成功范围的结果返回。
type SearchResult struct {
	Records []EmailRecord `json:"records"`
	Errors  []string      `json:"errors,omitempty"`
}

// SortRecordsByReceivedDesc 将记录按接收时间倒序稳定排序。
// 接收时间相同的记录保持先发现者在前。
func SortRecordsByReceivedDesc(records []EmailRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ReceivedAt.After(records[j].ReceivedAt)
	})
}

// TruncateRecords 截断记录序列到最多 max 条。
func TruncateRecords(records []EmailRecord, max int) []EmailRecord {
	if max > 0 && len(records) > max {
		return records[:max]
	}
	return records
}
