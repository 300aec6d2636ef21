package dashboard

import (
	"fmt"

	"BikeShareDashboard/src/processor"

	lru "github.com/hashicorp/golang-lru"
)

// ReportCache 按 (数据版本, 开始, 结束) 缓存报表
type ReportCache struct {
	cache *lru.Cache
}

func NewReportCache(size int) (*ReportCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("创建报表缓存失败: %w", err)
	}
	return &ReportCache{cache: c}, nil
}

func cacheKey(version uint64, start, end string) string {
	return fmt.Sprintf("%d|%s|%s", version, start, end)
}

func (c *ReportCache) Get(version uint64, start, end string) (*processor.Report, bool) {
	v, ok := c.cache.Get(cacheKey(version, start, end))
	if !ok {
		return nil, false
	}
	return v.(*processor.Report), true
}

func (c *ReportCache) Add(version uint64, start, end string, r *processor.Report) {
	c.cache.Add(cacheKey(version, start, end), r)
}

// Purge 数据重新加载后清空
func (c *ReportCache) Purge() {
	c.cache.Purge()
}

func (c *ReportCache) Len() int {
	return c.cache.Len()
}
