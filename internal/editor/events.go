// internal/editor/events.go
package editor

import (
	"github.com/Corphon/StoryGraphStudio/internal/models"
)

// EventKind 标识编辑器可观察的外部事件类型
type EventKind string

const (
	EventPointerDown  EventKind = "pointer_down"
	EventPointerMove  EventKind = "pointer_move"
	EventPointerUp    EventKind = "pointer_up"
	EventWindowResize EventKind = "window_resize"
	EventZoomChanged  EventKind = "zoom_changed"
	EventGraphLoaded  EventKind = "graph_loaded"
	EventStoryChanged EventKind = "story_changed"
)

// Event 编辑器事件，状态机按到达顺序串行处理
type Event interface {
	Kind() EventKind
}

// PointerDownEvent 在某个节点上按下指针
type PointerDownEvent struct {
	NodeID string
}

func (PointerDownEvent) Kind() EventKind { return EventPointerDown }

// PointerMoveEvent 指针移动
// Pressed 为 false 表示按键已松开（move 事件先于 up 到达的浏览器行为）
type PointerMoveEvent struct {
	Screen  models.Position
	Pressed bool
}

func (PointerMoveEvent) Kind() EventKind { return EventPointerMove }

// PointerUpEvent 指针松开
type PointerUpEvent struct {
	Screen models.Position
}

func (PointerUpEvent) Kind() EventKind { return EventPointerUp }

// WindowResizeEvent 画布重新测量的结果
// OK 为 false 表示本次测量失败，几何信息保持不变
type WindowResizeEvent struct {
	Element models.GraphElement
	OK      bool
}

func (WindowResizeEvent) Kind() EventKind { return EventWindowResize }

// ZoomChangedEvent 缩放滑块变化，Value 为未解析的文本值
type ZoomChangedEvent struct {
	Value string
}

func (ZoomChangedEvent) Kind() EventKind { return EventZoomChanged }

// GraphLoadedEvent 持久化通道的加载回执
type GraphLoadedEvent struct {
	Data []byte
	Err  error
}

func (GraphLoadedEvent) Kind() EventKind { return EventGraphLoaded }

// StoryChangedEvent 故事整体替换，触发图的全量重建
type StoryChangedEvent struct {
	Story *models.Story
}

func (StoryChangedEvent) Kind() EventKind { return EventStoryChanged }
