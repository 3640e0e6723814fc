// internal/api/router.go
package api

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/Corphon/StoryGraphStudio/internal/config"
	"github.com/Corphon/StoryGraphStudio/internal/di"
	"github.com/Corphon/StoryGraphStudio/internal/services"
	"github.com/Corphon/StoryGraphStudio/internal/utils"
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	// 获取配置
	cfg := config.GetCurrentConfig()

	// 获取依赖注入容器
	container := di.GetContainer()

	// 只从容器获取服务，不再创建新实例
	storyService, ok := container.Get("story").(*services.StoryService)
	if !ok {
		return nil, fmt.Errorf("故事服务未正确初始化")
	}

	layoutService, ok := container.Get("layout").(*services.LayoutService)
	if !ok {
		return nil, fmt.Errorf("布局服务未正确初始化")
	}

	editorService, ok := container.Get("editor").(*services.EditorService)
	if !ok {
		return nil, fmt.Errorf("编辑服务未正确初始化")
	}

	statsService, ok := container.Get("stats").(*services.StatsService)
	if !ok {
		return nil, fmt.Errorf("统计服务未正确初始化")
	}

	handler := NewHandler(storyService, editorService, layoutService, statsService)
	wsHandler := NewWebSocketHandler()

	// 创建路由
	r := gin.Default()

	// 启用CORS
	r.Use(corsMiddleware())

	// 请求指标采集
	r.Use(metricsMiddleware(utils.NewEditorMetrics()))

	// 静态文件服务（编辑器前端）
	if _, err := os.Stat(cfg.StaticDir); err == nil {
		r.Static("/static", cfg.StaticDir)
		r.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusFound, "/static/index.html")
		})
	}

	// WebSocket 支持
	r.GET("/ws/editor/:session_id", wsHandler.EditorWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	{
		// ===============================
		// 故事库 / 阅读器相关路由
		// ===============================
		storiesGroup := api.Group("/stories")
		{
			storiesGroup.GET("", handler.GetStories)
			storiesGroup.GET("/:id", handler.GetStory)
			storiesGroup.GET("/:id/graph", handler.GetStoryGraph)
			storiesGroup.GET("/:id/validate", handler.ValidateStory)

			scenesGroup := storiesGroup.Group("/:id/scenes")
			{
				scenesGroup.GET("/:home", handler.GetScene)
				scenesGroup.POST("/:home/choose", handler.ChooseOption)
				scenesGroup.GET("/:home/image", handler.GetSceneImage)
			}
		}

		// ===============================
		// 编辑会话相关路由
		// ===============================
		editorGroup := api.Group("/editor/sessions")
		{
			editorGroup.POST("", handler.CreateSession)
			editorGroup.GET("/:session_id", handler.GetSessionGraph)
			editorGroup.DELETE("/:session_id", handler.CloseSession)
			editorGroup.GET("/:session_id/export", handler.ExportSessionGraph)
			editorGroup.POST("/:session_id/import", handler.ImportSessionGraph)
		}

		// ===============================
		// 阅读统计与运行指标
		// ===============================
		api.GET("/stats", handler.GetStats)
		api.GET("/metrics", handler.GetMetrics)

		// WebSocket 管理路由
		wsGroup := api.Group("/ws")
		{
			wsGroup.GET("/status", handler.GetWebSocketStatus)
			wsGroup.POST("/cleanup", handler.CleanupWebSocketConnections)
		}
	}

	return r, nil
}

// metricsMiddleware 按请求记录计数与耗时
func metricsMiddleware(metrics *utils.EditorMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordAPIRequest(endpoint, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}

// corsMiddleware 实现跨域资源共享
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
