// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Corphon/StoryGraphStudio/internal/config"
	"github.com/Corphon/StoryGraphStudio/internal/di"
	"github.com/Corphon/StoryGraphStudio/internal/services"
	"github.com/Corphon/StoryGraphStudio/internal/utils"
)

// server 抽象HTTP服务器，便于测试替换
type server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App 应用程序单例
type App struct {
	config   *config.AppConfig
	router   http.Handler
	server   server
	stopChan chan os.Signal
}

var instance *App

// GetApp 获取应用实例
func GetApp() *App {
	if instance == nil {
		instance = &App{
			stopChan: make(chan os.Signal, 1),
		}
	}
	return instance
}

// GetConfig 返回应用配置
func (a *App) GetConfig() *config.AppConfig {
	return a.config
}

// GetDIContainer 获取全局依赖注入容器
func GetDIContainer() *di.Container {
	return di.GetContainer()
}

// IsDebugMode 检查是否处于调试模式
func IsDebugMode() bool {
	if instance == nil || instance.config == nil {
		return false
	}
	return instance.config.DebugMode
}

// Initialize 初始化应用：配置、日志、服务、路由
func Initialize(router http.Handler) error {
	cfg := config.GetCurrentConfig()
	app := GetApp()
	app.config = cfg
	app.router = router

	if err := initLogger(cfg.LogDir); err != nil {
		return fmt.Errorf("初始化日志系统失败: %w", err)
	}

	return nil
}

// InitServices 按依赖顺序初始化所有服务并注册到容器
// 顺序：story -> layout -> stats -> editor -> watcher
func InitServices() error {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	// 故事库服务
	storyService := services.NewStoryService(cfg.StoryDir)
	container.Register("story", storyService)

	// 布局持久化服务
	layoutService := services.NewLayoutService(cfg.LayoutDir)
	container.Register("layout", layoutService)

	// 阅读统计服务
	statsService := services.NewStatsService(cfg.StatsDir)
	container.Register("stats", statsService)

	// 编辑会话服务（依赖故事库和布局）
	editorService := services.NewEditorService(storyService, layoutService)
	container.Register("editor", editorService)

	// 故事库目录监视器（可选）
	if cfg.WatchStories {
		watcherService, err := services.NewWatcherService(cfg.StoryDir, editorService)
		if err != nil {
			// 监视器不可用不阻断启动
			log.Printf("⚠️ 故事库监视器初始化失败: %v", err)
		} else {
			watcherService.Start()
			container.Register("watcher", watcherService)
		}
	}

	return nil
}

// initLogger 初始化日志系统，日志文件按天命名
func initLogger(logDir string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}

	logFile := filepath.Join(logDir, fmt.Sprintf("app_%s.log", time.Now().Format("2006-01-02")))
	return utils.InitLogger(logFile)
}

// Run 启动HTTP服务器并阻塞到收到退出信号
func Run() error {
	app := GetApp()

	if app.server == nil {
		app.server = &http.Server{
			Addr:    ":" + app.config.Port,
			Handler: app.router,
		}
	}

	go func() {
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ 启动服务器失败: %v", err)
		}
	}()

	// 周期性指标日志，随服务器退出停止
	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	defer stopMetrics()
	utils.NewEditorMetrics().StartMetricsCollection(metricsCtx)

	signal.Notify(app.stopChan, syscall.SIGINT, syscall.SIGTERM)
	<-app.stopChan

	log.Println("🛑 正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("服务器强制关闭: %w", err)
	}

	app.cleanup()

	log.Println("✅ 服务器优雅关闭完成")
	return nil
}

// cleanup 释放服务持有的资源
func (a *App) cleanup() {
	container := di.GetContainer()

	// 停止目录监视
	if watcher, ok := container.Get("watcher").(*services.WatcherService); ok && watcher != nil {
		watcher.Stop()
	}

	// 关闭所有编辑会话
	if editorService, ok := container.Get("editor").(*services.EditorService); ok && editorService != nil {
		editorService.CloseAll()
	}

	// 统计数据落盘
	if statsService, ok := container.Get("stats").(*services.StatsService); ok && statsService != nil {
		if err := statsService.Flush(); err != nil {
			log.Printf("⚠️ 统计数据落盘失败: %v", err)
		}
	}
}
