// internal/api/handlers.go
package api

import (
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/Corphon/StoryGraphStudio/internal/editor"
	apperrors "github.com/Corphon/StoryGraphStudio/internal/errors"
	"github.com/Corphon/StoryGraphStudio/internal/graph"
	"github.com/Corphon/StoryGraphStudio/internal/models"
	"github.com/Corphon/StoryGraphStudio/internal/services"
	"github.com/Corphon/StoryGraphStudio/internal/utils"
	"github.com/gin-gonic/gin"
)

// Handler 处理API请求
type Handler struct {
	StoryService  *services.StoryService  // 故事库服务
	EditorService *services.EditorService // 编辑会话服务
	LayoutService *services.LayoutService // 布局持久化服务
	StatsService  *services.StatsService  // 阅读统计服务
	Response      *ResponseHelper         // 响应助手
}

// NewHandler 创建API处理器
func NewHandler(
	storyService *services.StoryService,
	editorService *services.EditorService,
	layoutService *services.LayoutService,
	statsService *services.StatsService,
) *Handler {
	return &Handler{
		StoryService:  storyService,
		EditorService: editorService,
		LayoutService: layoutService,
		StatsService:  statsService,
		Response:      NewResponseHelper(),
	}
}

// ===============================
// 故事库 / 阅读器
// ===============================

// GetStories 故事库列表
func (h *Handler) GetStories(c *gin.Context) {
	stories, err := h.StoryService.ListStories()
	if err != nil {
		h.Response.InternalError(c, "读取故事库失败", err.Error())
		return
	}

	h.Response.Success(c, stories)
}

// GetStory 返回整个故事文档
func (h *Handler) GetStory(c *gin.Context) {
	story, err := h.StoryService.LoadStory(c.Param("id"))
	if err != nil {
		h.storyError(c, err)
		return
	}

	h.Response.Success(c, story)
}

// ScenePayload 阅读器的场景视图数据
type ScenePayload struct {
	Home       string               `json:"home"`
	Name       string               `json:"name"`
	Paragraphs []string             `json:"paragraphs"`
	Options    []models.SceneOption `json:"options"`
	HasImage   bool                 `json:"has_image"`
}

// GetScene 阅读器的场景数据：正文段落、选项、配图探测结果
func (h *Handler) GetScene(c *gin.Context) {
	storyID := c.Param("id")
	home := c.Param("home")

	story, err := h.StoryService.LoadStory(storyID)
	if err != nil {
		h.storyError(c, err)
		return
	}

	scene, ok := story.FindScene(home)
	if !ok {
		h.Response.NotFound(c, "scene")
		return
	}

	h.StatsService.RecordSceneRead()

	h.Response.Success(c, ScenePayload{
		Home:       scene.Home,
		Name:       scene.Name,
		Paragraphs: h.StoryService.SceneParagraphs(storyID, home),
		Options:    scene.Route,
		HasImage:   h.StoryService.HasSceneImage(storyID, home),
	})
}

// ChooseOptionRequest 阅读器选择选项的请求
type ChooseOptionRequest struct {
	Target string `json:"target"`
}

// ChooseOption 读者从当前场景选择一个选项，返回目标场景数据
func (h *Handler) ChooseOption(c *gin.Context) {
	storyID := c.Param("id")
	home := c.Param("home")

	var req ChooseOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式不正确", err.Error())
		return
	}

	story, err := h.StoryService.LoadStory(storyID)
	if err != nil {
		h.storyError(c, err)
		return
	}

	scene, ok := story.FindScene(home)
	if !ok {
		h.Response.NotFound(c, "scene")
		return
	}

	// 只接受当前场景路由表里的目标
	valid := false
	for _, opt := range scene.Route {
		if opt.Target == req.Target {
			valid = true
			break
		}
	}
	if !valid {
		h.Response.BadRequest(c, "选项不在当前场景的路由表中")
		return
	}

	h.StatsService.RecordChoice()

	next, ok := story.FindScene(req.Target)
	if !ok {
		// 悬空 target：阅读器收到占位场景，不报错
		h.Response.Success(c, ScenePayload{
			Home:       req.Target,
			Name:       req.Target,
			Paragraphs: h.StoryService.SceneParagraphs(storyID, req.Target),
			Options:    nil,
			HasImage:   false,
		})
		return
	}

	h.StatsService.RecordSceneRead()

	h.Response.Success(c, ScenePayload{
		Home:       next.Home,
		Name:       next.Name,
		Paragraphs: h.StoryService.SceneParagraphs(storyID, next.Home),
		Options:    next.Route,
		HasImage:   h.StoryService.HasSceneImage(storyID, next.Home),
	})
}

// GetSceneImage 场景配图，缺失时404（阅读器据此抑制图像区域）
func (h *Handler) GetSceneImage(c *gin.Context) {
	storyID := c.Param("id")
	home := c.Param("home")

	path := h.StoryService.SceneImagePath(storyID, home)
	if _, err := os.Stat(path); err != nil {
		h.Response.NotFound(c, "image")
		return
	}

	c.File(path)
}

// GetStoryGraph 从故事直接构建的图（只读预览，不涉及编辑会话）
func (h *Handler) GetStoryGraph(c *gin.Context) {
	story, err := h.StoryService.LoadStory(c.Param("id"))
	if err != nil {
		h.storyError(c, err)
		return
	}

	h.Response.Success(c, graph.BuildGraph(story))
}

// ValidateStory 故事结构检查（悬空目标、重复标识、不可达场景）
func (h *Handler) ValidateStory(c *gin.Context) {
	story, err := h.StoryService.LoadStory(c.Param("id"))
	if err != nil {
		h.storyError(c, err)
		return
	}

	issues := story.Validate()
	if issues == nil {
		issues = []models.StoryIssue{}
	}

	h.Response.Success(c, gin.H{"issues": issues})
}

// GetStats 阅读统计
func (h *Handler) GetStats(c *gin.Context) {
	h.Response.Success(c, h.StatsService.GetStats())
}

// GetMetrics 运行指标快照
func (h *Handler) GetMetrics(c *gin.Context) {
	h.Response.Success(c, utils.GetMetricsCollector().GetMetrics())
}

// GetWebSocketStatus WebSocket 管理器状态
func (h *Handler) GetWebSocketStatus(c *gin.Context) {
	h.Response.Success(c, wsManager.GetStatus())
}

// CleanupWebSocketConnections 立即清理过期连接
func (h *Handler) CleanupWebSocketConnections(c *gin.Context) {
	wsManager.cleanupExpiredConnections()
	h.Response.Success(c, nil, "过期连接已清理")
}

// ===============================
// 编辑会话
// ===============================

// CreateSessionRequest 打开编辑会话的请求
type CreateSessionRequest struct {
	StoryID string `json:"story_id"`
}

// SessionPayload 编辑会话的对外视图
type SessionPayload struct {
	SessionID string        `json:"session_id"`
	StoryID   string        `json:"story_id"`
	Graph     *models.Graph `json:"graph"`
	Zoom      float64       `json:"zoom"`
	LastError string        `json:"last_error,omitempty"`
}

// CreateSession 打开一个编辑会话
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式不正确", err.Error())
		return
	}

	session, err := h.EditorService.CreateSession(req.StoryID)
	if err != nil {
		h.storyError(c, err)
		return
	}

	h.Response.Created(c, h.sessionPayload(session))
}

// GetSessionGraph 会话当前图的只读快照
func (h *Handler) GetSessionGraph(c *gin.Context) {
	session, ok := h.EditorService.GetSession(c.Param("session_id"))
	if !ok {
		h.Response.NotFound(c, "session")
		return
	}

	h.Response.Success(c, h.sessionPayload(session))
}

// CloseSession 关闭编辑会话
func (h *Handler) CloseSession(c *gin.Context) {
	h.EditorService.CloseSession(c.Param("session_id"))
	h.Response.Success(c, nil, "会话已关闭")
}

// ExportSessionGraph 下载当前图的序列化文本（graph.json）
func (h *Handler) ExportSessionGraph(c *gin.Context) {
	session, ok := h.EditorService.GetSession(c.Param("session_id"))
	if !ok {
		h.Response.NotFound(c, "session")
		return
	}

	data, err := graph.Serialize(session.Snapshot())
	if err != nil {
		h.Response.InternalError(c, "序列化图失败", err.Error())
		return
	}

	h.Response.DownloadResponse(c, data, services.LayoutFileName, services.LayoutMIMEType)
}

// ImportSessionGraph 上传任意文本经 deserialize 注入会话
// 解码失败时会话的图保持不变，错误连同出错路径返回给调用方
func (h *Handler) ImportSessionGraph(c *gin.Context) {
	session, ok := h.EditorService.GetSession(c.Param("session_id"))
	if !ok {
		h.Response.NotFound(c, "session")
		return
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.Response.BadRequest(c, "读取上传内容失败", err.Error())
		return
	}

	// 先同步校验一次，把出错路径报给调用方；合法文档再走事件循环
	if _, err := graph.Deserialize(data); err != nil {
		var decodeErr *graph.DecodeError
		if errors.As(err, &decodeErr) {
			h.Response.DecodeFailure(c, decodeErr.Path, decodeErr.Reason)
		} else {
			h.Response.BadRequest(c, "图文档解码失败", err.Error())
		}
		return
	}

	session.Dispatch(editor.GraphLoadedEvent{Data: data})
	h.Response.Success(c, nil, "图已导入")
}

// storyError 把故事加载失败映射为合适的HTTP响应
// 文档不存在与文档解码失败分开报告
func (h *Handler) storyError(c *gin.Context, err error) {
	switch {
	case apperrors.IsNotFoundError(err):
		h.Response.NotFound(c, "story", err.Error())
	case apperrors.IsDecodeError(err):
		h.Response.Error(c, http.StatusUnprocessableEntity, "DECODE_ERROR", "故事文档格式不合法", err.Error())
	case apperrors.IsValidationError(err):
		h.Response.BadRequest(c, err.Error())
	default:
		h.Response.InternalError(c, "加载故事失败", err.Error())
	}
}

// sessionPayload 组装会话视图
func (h *Handler) sessionPayload(session *editor.Session) SessionPayload {
	payload := SessionPayload{
		SessionID: session.ID,
		StoryID:   session.StoryID,
		Graph:     session.Snapshot(),
		Zoom:      session.Zoom(),
	}
	if err := session.LastError(); err != nil {
		payload.LastError = err.Error()
	}
	return payload
}
