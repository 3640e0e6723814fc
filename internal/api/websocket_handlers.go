// internal/api/websocket_handlers.go
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Corphon/StoryGraphStudio/internal/di"
	"github.com/Corphon/StoryGraphStudio/internal/editor"
	"github.com/Corphon/StoryGraphStudio/internal/models"
	"github.com/Corphon/StoryGraphStudio/internal/services"
	"github.com/Corphon/StoryGraphStudio/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WebSocketHandler 处理编辑器 WebSocket 连接
// 客户端把指针/缩放/测量事件推到会话的状态机，节点位移和图替换广播回所有客户端
type WebSocketHandler struct {
	editorService *services.EditorService
	metrics       *utils.EditorMetrics
}

// NewWebSocketHandler 创建 WebSocket 处理器
func NewWebSocketHandler() *WebSocketHandler {
	container := di.GetContainer()

	return &WebSocketHandler{
		editorService: container.MustGet("editor").(*services.EditorService),
		metrics:       utils.NewEditorMetrics(),
	}
}

// EditorWebSocket 处理编辑会话的 WebSocket 连接
func (wh *WebSocketHandler) EditorWebSocket(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		log.Printf("❌ WebSocket 连接失败：会话ID缺失")
		http.Error(c.Writer, "会话ID缺失", http.StatusBadRequest)
		return
	}

	session, ok := wh.editorService.GetSession(sessionID)
	if !ok {
		log.Printf("❌ WebSocket 连接失败：会话不存在 %s", sessionID)
		http.Error(c.Writer, "编辑会话不存在", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("❌ 编辑器 WebSocket 升级失败: %v", err)
		return
	}
	defer conn.Close()

	// 创建客户端
	client := &WebSocketClient{
		conn:      &WebSocketConnWrapper{conn},
		sessionID: sessionID,
		send:      make(chan []byte, 256),
		closed:    0,
		lastPing:  time.Now(),
		createdAt: time.Now(),
	}

	// 注册客户端
	select {
	case wsManager.register <- client:
		// Success
	default:
		log.Printf("❌ 无法注册 WebSocket 客户端，注册通道已满")
		return
	}

	defer func() {
		done := make(chan bool, 1)
		go func() {
			wsManager.unregister <- client
			done <- true
		}()

		select {
		case <-done:
			// Successfully unregistered
		case <-time.After(5 * time.Second):
			log.Printf("⚠️ WebSocket 客户端注销超时")
		}
	}()

	// 会话状态机的回执挂到广播上，所有连到该会话的客户端同步看到
	// SetCallbacks 与事件循环同步，连接可以在拖拽进行中加入
	session.SetCallbacks(
		func(sessionID, nodeID string, pos models.Position) {
			wsManager.BroadcastToSession(sessionID, map[string]interface{}{
				"type":    "node_moved",
				"node_id": nodeID,
				"position": map[string]float64{
					"x": pos.X,
					"y": pos.Y,
				},
			})
		},
		func(sessionID string) {
			wsManager.BroadcastToSession(sessionID, map[string]interface{}{
				"type":      "graph_replaced",
				"timestamp": time.Now().Format(time.RFC3339),
			})
		},
	)

	// 启动读写协程
	go wh.handleWebSocketWrites(client)
	go wh.handleWebSocketReads(client, session)

	// 发送连接确认消息
	wh.sendWelcomeMessage(client, sessionID)

	// 等待连接关闭
	<-c.Request.Context().Done()
	log.Printf("📱 编辑会话 %s 的 WebSocket 连接已关闭", sessionID)
}

// handleWebSocketReads 处理 WebSocket 读取
func (wh *WebSocketHandler) handleWebSocketReads(client *WebSocketClient, session *editor.Session) {
	defer func() {
		if !client.IsClosed() {
			select {
			case wsManager.unregister <- client:
			case <-time.After(1 * time.Second):
				log.Printf("⚠️ 读取协程关闭时注销超时")
			}
		}
	}()

	// 设置读取超时和ping处理
	client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.UpdatePing()
		client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if client.IsClosed() {
			break
		}

		client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		_, messageBytes, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("❌ WebSocket 读取错误: %v", err)
			}
			break
		}

		var message map[string]interface{}
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			log.Printf("⚠️ JSON解析失败: %v", err)
			continue
		}

		client.UpdatePing()

		wh.handleMessage(client, session, message)
	}
}

// handleWebSocketWrites 处理 WebSocket 写入
func (wh *WebSocketHandler) handleWebSocketWrites(client *WebSocketClient) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		atomic.CompareAndSwapInt32(&client.closed, 0, 1)
		// 通道可能被并发关闭，恢复即忽略
		func() {
			defer func() {
				recover()
			}()
			close(client.send)
		}()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			if client.IsClosed() {
				return
			}

			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("❌ WebSocket 写入失败: %v", err)
				return
			}

		case <-ticker.C:
			if client.IsClosed() {
				return
			}

			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("❌ WebSocket ping 失败: %v", err)
				return
			}
			client.UpdatePing()
		}
	}
}

// handleMessage 把收到的消息翻译成编辑器事件
// 未被当前状态订阅的事件会在 Dispatch 处被丢弃，这里不做状态判断
func (wh *WebSocketHandler) handleMessage(client *WebSocketClient, session *editor.Session, message map[string]interface{}) {
	msgType, ok := message["type"].(string)
	if !ok {
		log.Printf("⚠️ 收到无效的消息类型")
		return
	}

	switch msgType {
	case "pointer_down":
		nodeID, ok := message["node_id"].(string)
		if !ok {
			client.SendError("缺少节点ID")
			return
		}
		accepted := session.Dispatch(editor.PointerDownEvent{NodeID: nodeID})
		wh.metrics.RecordEditorEvent(client.sessionID, msgType, accepted)

	case "pointer_move":
		pressed, _ := message["pressed"].(bool)
		accepted := session.Dispatch(editor.PointerMoveEvent{
			Screen:  readPosition(message),
			Pressed: pressed,
		})
		wh.metrics.RecordEditorEvent(client.sessionID, msgType, accepted)

	case "pointer_up":
		accepted := session.Dispatch(editor.PointerUpEvent{Screen: readPosition(message)})
		wh.metrics.RecordEditorEvent(client.sessionID, msgType, accepted)

	case "resize":
		ok := true
		if flag, exists := message["ok"].(bool); exists {
			ok = flag
		}
		accepted := session.Dispatch(editor.WindowResizeEvent{
			Element: models.GraphElement{
				Position: readPosition(message),
				Dimension: models.Dimension{
					Width:  readNumber(message, "width"),
					Height: readNumber(message, "height"),
				},
			},
			OK: ok,
		})
		wh.metrics.RecordEditorEvent(client.sessionID, msgType, accepted)

	case "zoom":
		// 值以未解析的文本进入状态机，非法文本在那里被忽略
		accepted := session.Dispatch(editor.ZoomChangedEvent{Value: readZoomValue(message)})
		wh.metrics.RecordEditorEvent(client.sessionID, msgType, accepted)

	case "load_layout":
		session.RequestLoad()

	case "ping":
		client.SendMessage(map[string]interface{}{
			"type":      "pong",
			"timestamp": time.Now().Unix(),
		})

	default:
		log.Printf("⚠️ 未知的消息类型: %s", msgType)
	}
}

// sendWelcomeMessage 发送连接确认消息
func (wh *WebSocketHandler) sendWelcomeMessage(client *WebSocketClient, sessionID string) {
	client.SendMessage(map[string]interface{}{
		"type":       "connected",
		"session_id": sessionID,
		"timestamp":  time.Now().Format(time.RFC3339),
		"message":    "WebSocket 连接已建立",
	})
}

// readPosition 从消息中读取屏幕坐标
func readPosition(message map[string]interface{}) models.Position {
	return models.Position{
		X: readNumber(message, "x"),
		Y: readNumber(message, "y"),
	}
}

// readNumber 读取一个数值字段，缺失或类型不符时为0
func readNumber(message map[string]interface{}, key string) float64 {
	value, _ := message[key].(float64)
	return value
}

// readZoomValue 读取缩放滑块的原始值
// 滑块正常发文本，个别客户端发数字，统一转成文本交给状态机解析
func readZoomValue(message map[string]interface{}) string {
	switch value := message["value"].(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return ""
	}
}
