// data.go
package processor

import (
	"sync"
	"time"

	"BikeShareDashboard/src/config"

	"github.com/go-gota/gota/dataframe"
)

// Dataset 保存标准化后的数据, 重新加载时整体替换
type Dataset struct {
	df       dataframe.DataFrame
	version  uint64
	loadedAt time.Time
	mu       sync.RWMutex
}

func NewDataset(df dataframe.DataFrame) *Dataset {
	d := &Dataset{}
	d.Set(df)
	return d
}

// Set 替换数据并返回新版本号
func (d *Dataset) Set(df dataframe.DataFrame) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.df = df
	d.version++
	d.loadedAt = time.Now()
	return d.version
}

// Get 返回当前数据和版本号, 返回的 DataFrame 不可修改
func (d *Dataset) Get() (dataframe.DataFrame, uint64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.df, d.version
}

func (d *Dataset) Version() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

func (d *Dataset) LoadedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loadedAt
}

// Bounds 数据的最早和最晚日期, 没有数据时返回空字符串
func (d *Dataset) Bounds() (string, string) {
	df, _ := d.Get()
	return DateBounds(df)
}

// DateBounds 返回 df 中 date 列的最小值和最大值
func DateBounds(df dataframe.DataFrame) (string, string) {
	if df.Err != nil || df.Nrow() == 0 {
		return "", ""
	}
	dates := df.Col(config.ColDate)
	return dates.MinStr(), dates.MaxStr()
}
