// internal/services/watcher_service.go
package services

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherService 监视故事库目录
// scenes.json 变化时重载对应故事并重建活动会话的图（last-write-wins，错误就地吸收）
type WatcherService struct {
	basePath string
	watcher  *fsnotify.Watcher
	editor   *EditorService
	stopCh   chan struct{}

	// 去抖：同一故事短时间内的多次写入只触发一次重载
	debounce time.Duration
	pending  map[string]*time.Timer
}

// NewWatcherService 创建目录监视器
func NewWatcherService(basePath string, editorService *EditorService) (*WatcherService, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// 监视故事库根目录及每个故事子目录
	// （fsnotify 不递归，原子写入的 rename 事件落在目录上）
	if err := watcher.Add(basePath); err != nil {
		watcher.Close()
		return nil, err
	}

	entries, err := os.ReadDir(basePath)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				if err := watcher.Add(filepath.Join(basePath, entry.Name())); err != nil {
					log.Printf("⚠️ 监视故事目录失败 %s: %v", entry.Name(), err)
				}
			}
		}
	}

	return &WatcherService{
		basePath: basePath,
		watcher:  watcher,
		editor:   editorService,
		stopCh:   make(chan struct{}),
		debounce: 500 * time.Millisecond,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Start 启动监视循环
func (w *WatcherService) Start() {
	go w.watchLoop()
	log.Printf("✅ 故事库监视器已启动: %s", w.basePath)
}

// Stop 停止监视
func (w *WatcherService) Stop() {
	close(w.stopCh)
	w.watcher.Close()
}

func (w *WatcherService) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️ 故事库监视错误: %v", err)

		case <-w.stopCh:
			return
		}
	}
}

// handleEvent 处理一次文件系统事件
func (w *WatcherService) handleEvent(event fsnotify.Event) {
	// 新建的故事目录也纳入监视
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				log.Printf("⚠️ 监视新故事目录失败 %s: %v", event.Name, err)
			}
			return
		}
	}

	if filepath.Base(event.Name) != storyFileName {
		return
	}
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
		return
	}

	// 事件路径形如 <basePath>/<storyID>/scenes.json
	rel, err := filepath.Rel(w.basePath, event.Name)
	if err != nil {
		return
	}
	storyID := strings.Split(filepath.ToSlash(rel), "/")[0]
	if storyID == "" || storyID == "." {
		return
	}

	w.scheduleReload(storyID)
}

// scheduleReload 去抖后触发故事重载
func (w *WatcherService) scheduleReload(storyID string) {
	if timer, exists := w.pending[storyID]; exists {
		timer.Stop()
	}

	w.pending[storyID] = time.AfterFunc(w.debounce, func() {
		log.Printf("🔄 故事素材变化，重载: %s", storyID)
		w.editor.ReloadStory(storyID)
	})
}
