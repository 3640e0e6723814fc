// internal/services/story_service.go
package services

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Corphon/StoryGraphStudio/internal/errors"
	"github.com/Corphon/StoryGraphStudio/internal/models"
	"github.com/Corphon/StoryGraphStudio/internal/storage"
	"github.com/Corphon/StoryGraphStudio/internal/utils"
)

// 故事目录的约定布局：
//   <storyID>/scenes.json          故事文档
//   <storyID>/text/<home>.txt      场景正文，段落以空行分隔
//   <storyID>/images/<home>.png    场景配图（可选）
const (
	storyFileName   = "scenes.json"
	sceneTextDir    = "text"
	sceneImageDir   = "images"
	sceneImageExt   = ".png"
	sceneTextExt    = ".txt"
	textPlaceholder = "（正文缺失）"
)

// StoryInfo 故事库列表条目
type StoryInfo struct {
	ID         string `json:"id"`
	Title      string `json:"title"`       // 首个场景的显示名称
	SceneCount int    `json:"scene_count"`
}

// StoryService 处理故事库的加载与查询
// 故事一经加载即不可变，只允许整体替换；任何加载失败都保留此前的故事
type StoryService struct {
	BasePath string
	Storage  *storage.FileStorage

	cacheMutex  sync.RWMutex
	storyCache  map[string]*cachedStory
	cacheExpiry time.Duration
}

type cachedStory struct {
	story     *models.Story
	timestamp time.Time
}

// ---------------------------------------------------
// NewStoryService 创建故事服务
func NewStoryService(basePath string) *StoryService {
	if basePath == "" {
		basePath = "data/stories"
	}

	fileStorage, err := storage.NewFileStorage(basePath)
	if err != nil {
		fmt.Printf("警告: 创建故事存储失败: %v\n", err)
		fileStorage = nil
	}

	return &StoryService{
		BasePath:    basePath,
		Storage:     fileStorage,
		storyCache:  make(map[string]*cachedStory),
		cacheExpiry: 5 * time.Minute,
	}
}

// ListStories 列出故事库中的所有故事
func (s *StoryService) ListStories() ([]StoryInfo, error) {
	if s.Storage == nil {
		return nil, fmt.Errorf("故事存储未初始化")
	}

	dirs, err := s.Storage.ListDirs("")
	if err != nil {
		return nil, fmt.Errorf("读取故事库失败: %w", err)
	}

	infos := make([]StoryInfo, 0, len(dirs))
	for _, dir := range dirs {
		if !s.Storage.FileExists(dir, storyFileName) {
			continue
		}

		story, err := s.LoadStory(dir)
		if err != nil {
			// 坏的故事文档不阻断整个列表
			utils.GetLogger().Warn("故事库列表跳过无法加载的故事", map[string]interface{}{
				"story_id": dir,
				"error":    err.Error(),
			})
			continue
		}

		title := dir
		if len(story.Scene) > 0 {
			title = story.Scene[0].Name
		}

		infos = append(infos, StoryInfo{
			ID:         dir,
			Title:      title,
			SceneCount: story.SceneCount(),
		})
	}

	return infos, nil
}

// LoadStory 加载并解码一个故事
// 解码失败与读取失败同样处理：返回错误，调用方保留此前的故事
func (s *StoryService) LoadStory(storyID string) (*models.Story, error) {
	if storyID == "" {
		return nil, apperrors.NewValidationError("故事ID不能为空", nil)
	}

	s.cacheMutex.RLock()
	if entry, exists := s.storyCache[storyID]; exists {
		if time.Since(entry.timestamp) < s.cacheExpiry {
			s.cacheMutex.RUnlock()
			return entry.story, nil
		}
	}
	s.cacheMutex.RUnlock()

	if s.Storage == nil {
		return nil, fmt.Errorf("故事存储未初始化")
	}

	data, err := s.Storage.LoadTextFile(storyID, storyFileName)
	if err != nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("故事 %s 不存在", storyID), err)
	}

	story, err := models.DecodeStory(data)
	if err != nil {
		return nil, apperrors.NewDecodeError(fmt.Sprintf("故事 %s 的文档格式不合法", storyID), err)
	}

	s.cacheMutex.Lock()
	s.storyCache[storyID] = &cachedStory{story: story, timestamp: time.Now()}
	s.cacheMutex.Unlock()

	return story, nil
}

// InvalidateStory 作废缓存中的故事（素材目录变化时由监视器调用）
func (s *StoryService) InvalidateStory(storyID string) {
	s.cacheMutex.Lock()
	delete(s.storyCache, storyID)
	s.cacheMutex.Unlock()
}

// SceneParagraphs 读取场景正文并按空行切分为段落
// 正文缺失时返回占位段落，不视为错误
func (s *StoryService) SceneParagraphs(storyID, home string) []string {
	if s.Storage == nil {
		return []string{textPlaceholder}
	}

	data, err := s.Storage.LoadTextFile(filepath.Join(storyID, sceneTextDir), home+sceneTextExt)
	if err != nil {
		return []string{textPlaceholder}
	}

	return SplitParagraphs(string(data))
}

// HasSceneImage 探测场景配图是否存在
// 只看文件存在与否，不检查内容
func (s *StoryService) HasSceneImage(storyID, home string) bool {
	if s.Storage == nil {
		return false
	}
	return s.Storage.FileExists(filepath.Join(storyID, sceneImageDir), home+sceneImageExt)
}

// SceneImagePath 返回场景配图的完整文件路径
func (s *StoryService) SceneImagePath(storyID, home string) string {
	return filepath.Join(s.BasePath, storyID, sceneImageDir, home+sceneImageExt)
}

// SplitParagraphs 按字面的双换行切分段落
func SplitParagraphs(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")

	parts := strings.Split(normalized, "\n\n")
	paragraphs := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}

	if len(paragraphs) == 0 {
		return []string{textPlaceholder}
	}

	return paragraphs
}
