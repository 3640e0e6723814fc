// internal/editor/session.go
package editor

import (
	"log"
	"sync"

	"github.com/Corphon/StoryGraphStudio/internal/graph"
	"github.com/Corphon/StoryGraphStudio/internal/models"
)

// dragState 拖拽状态机的状态
type dragState int

const (
	stateIdle dragState = iota
	stateDragging
)

// LayoutStore 布局持久化通道
// 会话只生产/消费序列化文本，不关心通道如何存储
type LayoutStore interface {
	SaveLayout(storyID string, data []byte) error
	LoadLayout(storyID string) ([]byte, error)
}

// Session 一次编辑会话，独占持有图
// 所有状态转移在单个事件循环 goroutine 中串行执行，按到达顺序处理
type Session struct {
	ID      string
	StoryID string

	mu          sync.RWMutex
	graph       *models.Graph
	element     models.GraphElement
	zoom        float64
	state       dragState
	draggedNode string
	lastErr     error // 图加载时保留的解码错误，供宿主UI展示
	subs        map[EventKind]bool

	store  LayoutStore
	events chan Event
	done   chan struct{}
	once   sync.Once

	// 回调经 SetCallbacks 挂接，读写都在 s.mu 之下，
	// 宿主可以在事件循环运行期间随时挂接（例如新的 WebSocket 连接）
	onNodeMoved     func(sessionID, nodeID string, pos models.Position)
	onGraphReplaced func(sessionID string)
}

// NewSession 创建编辑会话并从故事构建初始图
func NewSession(id, storyID string, story *models.Story, store LayoutStore) *Session {
	s := &Session{
		ID:      id,
		StoryID: storyID,
		graph:   graph.BuildGraph(story),
		zoom:    1.0,
		state:   stateIdle,
		store:   store,
		events:  make(chan Event, 256),
		done:    make(chan struct{}),
	}
	s.subs = s.subscriptionsLocked()
	return s
}

// Start 启动事件循环
func (s *Session) Start() {
	go s.run()
}

// Close 结束会话
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
	})
}

// SetCallbacks 挂接节点位移和图替换的回调（均可为 nil）
// 与事件循环同步执行，回调在状态转移的锁内被调用，不得再进入会话
func (s *Session) SetCallbacks(
	onNodeMoved func(sessionID, nodeID string, pos models.Position),
	onGraphReplaced func(sessionID string),
) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onNodeMoved = onNodeMoved
	s.onGraphReplaced = onGraphReplaced
}

// Dispatch 投递一个事件
// 未被当前状态订阅的事件直接丢弃；订阅集在每次状态转移后重新计算，
// 高频的 pointer-move 只在拖拽期间被观察
func (s *Session) Dispatch(ev Event) bool {
	s.mu.RLock()
	observed := s.subs[ev.Kind()]
	s.mu.RUnlock()

	if !observed {
		return false
	}

	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// run 事件循环，保证转移按到达顺序串行执行
func (s *Session) run() {
	for {
		select {
		case ev := <-s.events:
			s.apply(ev)
		case <-s.done:
			return
		}
	}
}

// subscriptionsLocked 计算当前状态下激活的订阅集
// Idle 只观察窗口测量和存储加载；Dragging 只观察指针移动/松开。
// 缩放滑块和故事替换在任何状态下都被观察。
func (s *Session) subscriptionsLocked() map[EventKind]bool {
	subs := map[EventKind]bool{
		EventZoomChanged:  true,
		EventStoryChanged: true,
	}

	switch s.state {
	case stateIdle:
		subs[EventPointerDown] = true
		subs[EventWindowResize] = true
		subs[EventGraphLoaded] = true
	case stateDragging:
		subs[EventPointerMove] = true
		subs[EventPointerUp] = true
	}

	return subs
}

// apply 执行一次状态转移
func (s *Session) apply(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case PointerDownEvent:
		s.applyPointerDown(e)
	case PointerMoveEvent:
		s.applyPointerMove(e)
	case PointerUpEvent:
		s.applyPointerUp(e)
	case WindowResizeEvent:
		s.applyWindowResize(e)
	case ZoomChangedEvent:
		s.applyZoomChanged(e)
	case GraphLoadedEvent:
		s.applyGraphLoaded(e)
	case StoryChangedEvent:
		s.applyStoryChanged(e)
	}

	s.subs = s.subscriptionsLocked()
}

func (s *Session) applyPointerDown(e PointerDownEvent) {
	if s.state != stateIdle {
		return
	}
	// 画布未完成首次测量前不允许拖拽，坐标换算会退化
	if !s.element.IsMeasured() {
		return
	}
	if s.graph.Node(e.NodeID) == nil {
		return
	}

	s.state = stateDragging
	s.draggedNode = e.NodeID
}

func (s *Session) applyPointerMove(e PointerMoveEvent) {
	if s.state != stateDragging {
		return
	}

	// 按键已松开：回到 Idle，不再更新位置
	if !e.Pressed {
		s.state = stateIdle
		s.draggedNode = ""
		return
	}

	s.moveDraggedNode(e.Screen)
}

func (s *Session) applyPointerUp(e PointerUpEvent) {
	if s.state != stateDragging {
		return
	}

	// 最后一次位置更新，然后落盘
	s.moveDraggedNode(e.Screen)

	s.state = stateIdle
	s.draggedNode = ""

	s.persistLocked()
}

func (s *Session) applyWindowResize(e WindowResizeEvent) {
	// 测量失败时几何信息保持不变，画布退化为惰性状态
	if !e.OK {
		return
	}
	s.element = e.Element
}

func (s *Session) applyZoomChanged(e ZoomChangedEvent) {
	// 解析失败的值直接忽略，保留原缩放
	if zoom, ok := graph.ParseZoom(e.Value); ok {
		s.zoom = zoom
	}
}

func (s *Session) applyGraphLoaded(e GraphLoadedEvent) {
	if e.Err != nil {
		// 加载失败不触碰现有图，错误留在状态中供宿主展示
		s.lastErr = e.Err
		return
	}

	loaded, err := graph.Deserialize(e.Data)
	if err != nil {
		s.lastErr = err
		return
	}

	s.graph = loaded
	s.lastErr = nil
	s.notifyGraphReplaced()
}

func (s *Session) applyStoryChanged(e StoryChangedEvent) {
	// 故事整体替换：图全量重建，布局回到默认对角线
	s.graph = graph.BuildGraph(e.Story)
	s.state = stateIdle
	s.draggedNode = ""
	s.notifyGraphReplaced()
}

// moveDraggedNode 把屏幕坐标换算为图空间坐标并覆写被拖拽节点的位置
func (s *Session) moveDraggedNode(screen models.Position) {
	node := s.graph.Node(s.draggedNode)
	if node == nil {
		return
	}

	node.Position = graph.ToGraphSpace(screen, s.zoom, s.element)

	if s.onNodeMoved != nil {
		s.onNodeMoved(s.ID, node.ID, node.Position)
	}
}

// persistLocked 序列化当前图并异步写入持久化通道
// 一次性请求：不重试、不超时，失败只记日志
func (s *Session) persistLocked() {
	if s.store == nil {
		return
	}

	data, err := graph.Serialize(s.graph)
	if err != nil {
		log.Printf("⚠️ 会话 %s 序列化图失败: %v", s.ID, err)
		return
	}

	storyID := s.StoryID
	store := s.store
	go func() {
		if err := store.SaveLayout(storyID, data); err != nil {
			log.Printf("⚠️ 会话 %s 保存布局失败: %v", s.ID, err)
		}
	}()
}

// RequestLoad 发起一次异步加载，完成后以 GraphLoadedEvent 回到事件循环
// 迟到的回执按 last-write-wins 处理，没有取消机制
func (s *Session) RequestLoad() {
	if s.store == nil {
		return
	}

	go func() {
		data, err := s.store.LoadLayout(s.StoryID)
		s.Dispatch(GraphLoadedEvent{Data: data, Err: err})
	}()
}

func (s *Session) notifyGraphReplaced() {
	if s.onGraphReplaced != nil {
		s.onGraphReplaced(s.ID)
	}
}

// Snapshot 返回当前图的深拷贝，外部持有者与状态机不产生别名
func (s *Session) Snapshot() *models.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Clone()
}

// Zoom 当前缩放因子
func (s *Session) Zoom() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zoom
}

// Element 当前画布几何信息
func (s *Session) Element() models.GraphElement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.element
}

// Dragging 返回当前是否处于拖拽状态及被拖拽的节点
func (s *Session) Dragging() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draggedNode, s.state == stateDragging
}

// LastError 最近一次图加载失败保留的错误，成功加载后清空
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Subscribed 当前状态是否观察某类事件（订阅集对外可见，便于宿主挂接）
func (s *Session) Subscribed(kind EventKind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subs[kind]
}
