// monitor.go
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileMonitor 监听数据文件所在目录, 只关心目标文件的写入和创建
type FileMonitor struct {
	watchDir string
	target   string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	lastMod  time.Time
	mu       sync.Mutex
}

// NewFileMonitor 监听 path 所在目录, 连续事件在 debounce 内合并为一次
func NewFileMonitor(path string, debounce time.Duration) (*FileMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return nil, err
	}

	dir := filepath.Dir(abs)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("监听目录 %s 失败: %w", dir, err)
	}

	m := &FileMonitor{
		watchDir: dir,
		target:   abs,
		debounce: debounce,
		watcher:  watcher,
	}
	if info, err := os.Stat(abs); err == nil {
		m.lastMod = info.ModTime()
	}
	return m, nil
}

// Watch 阻塞直到 ctx 结束或 watcher 出错, handler 在当前 goroutine 中调用
func (m *FileMonitor) Watch(ctx context.Context, handler func(string)) error {
	defer m.watcher.Close()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != m.target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(m.debounce)
			} else {
				timer.Reset(m.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if m.changed() {
				handler(m.target)
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

// changed 比较修改时间, 过滤掉只改属性的事件
func (m *FileMonitor) changed() bool {
	info, err := os.Stat(m.target)
	if err != nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if info.ModTime().Equal(m.lastMod) {
		return false
	}
	m.lastMod = info.ModTime()
	return true
}

// Close 停止监听
func (m *FileMonitor) Close() error {
	return m.watcher.Close()
}
