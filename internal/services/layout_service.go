// internal/services/layout_service.go
package services

import (
	"fmt"

	"github.com/Corphon/StoryGraphStudio/internal/storage"
)

// 布局文档的固定键名与下载参数
const (
	LayoutFileName = "graph.json"
	LayoutMIMEType = "application/json"
)

// LayoutService 编辑器布局的本地持久化通道
// 每个故事一份布局文档，按固定名称存取；实现 editor.LayoutStore
type LayoutService struct {
	Storage *storage.FileStorage
}

// NewLayoutService 创建布局服务
func NewLayoutService(basePath string) *LayoutService {
	if basePath == "" {
		basePath = "data/layouts"
	}

	fileStorage, err := storage.NewFileStorage(basePath)
	if err != nil {
		fmt.Printf("警告: 创建布局存储失败: %v\n", err)
		fileStorage = nil
	}

	return &LayoutService{Storage: fileStorage}
}

// SaveLayout 保存一个故事的序列化图文档
func (s *LayoutService) SaveLayout(storyID string, data []byte) error {
	if s.Storage == nil {
		return fmt.Errorf("布局存储未初始化")
	}
	if storyID == "" {
		return fmt.Errorf("故事ID不能为空")
	}

	return s.Storage.SaveTextFile(storyID, LayoutFileName, data)
}

// LoadLayout 读取一个故事的序列化图文档
func (s *LayoutService) LoadLayout(storyID string) ([]byte, error) {
	if s.Storage == nil {
		return nil, fmt.Errorf("布局存储未初始化")
	}

	return s.Storage.LoadTextFile(storyID, LayoutFileName)
}

// HasLayout 检查故事是否已有保存的布局
func (s *LayoutService) HasLayout(storyID string) bool {
	if s.Storage == nil {
		return false
	}
	return s.Storage.FileExists(storyID, LayoutFileName)
}

// DeleteLayout 删除故事的布局文档
func (s *LayoutService) DeleteLayout(storyID string) error {
	if s.Storage == nil {
		return fmt.Errorf("布局存储未初始化")
	}
	return s.Storage.DeleteFile(storyID, LayoutFileName)
}
