// internal/services/editor_service.go
package services

import (
	"fmt"
	"log"
	"sync"

	"github.com/Corphon/StoryGraphStudio/internal/editor"
	"github.com/Corphon/StoryGraphStudio/internal/models"
	"github.com/Corphon/StoryGraphStudio/internal/utils"
	"github.com/google/uuid"
)

// EditorService 管理所有编辑会话
// 每个连接的编辑器客户端一个会话，会话独占持有自己的图
type EditorService struct {
	StoryService  *StoryService
	LayoutService *LayoutService

	mutex    sync.RWMutex
	sessions map[string]*editor.Session
	metrics  *utils.EditorMetrics
}

// NewEditorService 创建编辑会话管理器
func NewEditorService(storyService *StoryService, layoutService *LayoutService) *EditorService {
	return &EditorService{
		StoryService:  storyService,
		LayoutService: layoutService,
		sessions:      make(map[string]*editor.Session),
		metrics:       utils.NewEditorMetrics(),
	}
}

// CreateSession 为一个故事打开新的编辑会话
// 初始图从故事构建；随后异步请求加载已保存的布局（存在即覆盖默认布局）
func (s *EditorService) CreateSession(storyID string) (*editor.Session, error) {
	story, err := s.StoryService.LoadStory(storyID)
	if err != nil {
		return nil, fmt.Errorf("打开编辑会话失败: %w", err)
	}

	session := editor.NewSession(uuid.NewString(), storyID, story, s.LayoutService)
	session.Start()

	s.mutex.Lock()
	s.sessions[session.ID] = session
	s.metrics.SetActiveSessions(len(s.sessions))
	s.mutex.Unlock()

	// 会话打开即发起一次布局加载（"request load" 信号）
	if s.LayoutService.HasLayout(storyID) {
		session.RequestLoad()
	}

	return session, nil
}

// GetSession 按ID查找会话
func (s *EditorService) GetSession(sessionID string) (*editor.Session, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	session, ok := s.sessions[sessionID]
	return session, ok
}

// CloseSession 关闭并移除会话
func (s *EditorService) CloseSession(sessionID string) {
	s.mutex.Lock()
	session, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.metrics.SetActiveSessions(len(s.sessions))
	s.mutex.Unlock()

	if ok {
		session.Close()
	}
}

// SessionCount 当前活动会话数
func (s *EditorService) SessionCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.sessions)
}

// ReloadStory 故事素材变化后重载故事并重建相关会话的图
// 由目录监视器调用；加载失败时所有会话保留现有的图
func (s *EditorService) ReloadStory(storyID string) {
	s.StoryService.InvalidateStory(storyID)

	story, err := s.StoryService.LoadStory(storyID)
	if err != nil {
		log.Printf("⚠️ 重载故事 %s 失败，保留现有图: %v", storyID, err)
		return
	}

	s.mutex.RLock()
	var affected []*editor.Session
	for _, session := range s.sessions {
		if session.StoryID == storyID {
			affected = append(affected, session)
		}
	}
	s.mutex.RUnlock()

	for _, session := range affected {
		session.Dispatch(editor.StoryChangedEvent{Story: story})
	}
}

// CloseAll 关闭所有会话（应用退出时调用）
func (s *EditorService) CloseAll() {
	s.mutex.Lock()
	sessions := make([]*editor.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.sessions = make(map[string]*editor.Session)
	s.metrics.SetActiveSessions(0)
	s.mutex.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}

// SetStory 向指定会话注入新故事（宿主应用的 setStory 入口）
func (s *EditorService) SetStory(sessionID string, story *models.Story) error {
	session, ok := s.GetSession(sessionID)
	if !ok {
		return fmt.Errorf("编辑会话不存在: %s", sessionID)
	}

	session.Dispatch(editor.StoryChangedEvent{Story: story})
	return nil
}
