// internal/editor/session_test.go
package editor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Corphon/StoryGraphStudio/internal/graph"
	"github.com/Corphon/StoryGraphStudio/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore 内存布局存储，记录保存的内容
type fakeStore struct {
	mu      sync.Mutex
	saved   []byte
	loadErr error
}

func (f *fakeStore) SaveLayout(storyID string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append([]byte(nil), data...)
	return nil
}

func (f *fakeStore) LoadLayout(storyID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return append([]byte(nil), f.saved...), nil
}

func (f *fakeStore) savedData() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.saved...)
}

func testStory() *models.Story {
	return &models.Story{Scene: []models.Scene{
		{Home: "a", Name: "A", Route: []models.SceneOption{{OptionText: "去B", Target: "b"}}},
		{Home: "b", Name: "B", Route: []models.SceneOption{}},
	}}
}

func measuredElement() models.GraphElement {
	return models.GraphElement{
		Position:  models.Position{X: 100, Y: 50},
		Dimension: models.Dimension{Width: 800, Height: 600},
	}
}

func newTestSession(t *testing.T, store LayoutStore) *Session {
	t.Helper()
	s := NewSession("test-session", "story", testStory(), store)
	s.Start()
	t.Cleanup(s.Close)
	return s
}

// waitFor 轮询直到条件成立，事件循环是异步的
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 2*time.Millisecond)
}

func TestSessionInitialState(t *testing.T) {
	s := newTestSession(t, nil)

	assert.Equal(t, 1.0, s.Zoom())
	_, dragging := s.Dragging()
	assert.False(t, dragging)

	g := s.Snapshot()
	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, g.EdgeCount())

	// Idle 状态的订阅集
	assert.True(t, s.Subscribed(EventPointerDown))
	assert.True(t, s.Subscribed(EventWindowResize))
	assert.True(t, s.Subscribed(EventGraphLoaded))
	assert.True(t, s.Subscribed(EventZoomChanged))
	assert.True(t, s.Subscribed(EventStoryChanged))
	assert.False(t, s.Subscribed(EventPointerMove))
	assert.False(t, s.Subscribed(EventPointerUp))
}

// 画布未完成首次测量前，按下指针不进入拖拽
func TestSessionDragRequiresMeasurement(t *testing.T) {
	s := newTestSession(t, nil)

	require.True(t, s.Dispatch(PointerDownEvent{NodeID: "a"}))
	// 事件被处理后状态仍然是 Idle
	waitFor(t, func() bool { return s.Subscribed(EventPointerDown) })
	_, dragging := s.Dragging()
	assert.False(t, dragging)
}

// Idle 状态下指针移动不被订阅，直接在投递处被丢弃
func TestSessionMoveDroppedWhileIdle(t *testing.T) {
	s := newTestSession(t, nil)

	before := s.Snapshot()
	assert.False(t, s.Dispatch(PointerMoveEvent{Screen: models.Position{X: 500, Y: 350}, Pressed: true}))

	after := s.Snapshot()
	assert.Equal(t, before.Nodes["a"].Position, after.Nodes["a"].Position)
}

func TestSessionDragUpdatesOnlyDraggedNode(t *testing.T) {
	store := &fakeStore{}
	s := newTestSession(t, store)

	require.True(t, s.Dispatch(WindowResizeEvent{Element: measuredElement(), OK: true}))
	waitFor(t, func() bool { return s.Element().IsMeasured() })

	require.True(t, s.Dispatch(PointerDownEvent{NodeID: "a"}))
	waitFor(t, func() bool {
		node, dragging := s.Dragging()
		return dragging && node == "a"
	})

	// 拖拽期间订阅集切换
	assert.True(t, s.Subscribed(EventPointerMove))
	assert.True(t, s.Subscribed(EventPointerUp))
	assert.False(t, s.Subscribed(EventPointerDown))
	assert.False(t, s.Subscribed(EventWindowResize))
	assert.False(t, s.Subscribed(EventGraphLoaded))

	bBefore := s.Snapshot().Nodes["b"].Position

	// 屏幕 (500, 350) 在该几何和 zoom=1 下对应图空间 (50, 50)
	require.True(t, s.Dispatch(PointerMoveEvent{Screen: models.Position{X: 500, Y: 350}, Pressed: true}))
	waitFor(t, func() bool {
		return s.Snapshot().Nodes["a"].Position == models.Position{X: 50, Y: 50}
	})

	// 未被拖拽的节点原地不动
	assert.Equal(t, bBefore, s.Snapshot().Nodes["b"].Position)

	// 松开：最终位置生效，回到 Idle，布局异步落盘
	require.True(t, s.Dispatch(PointerUpEvent{Screen: models.Position{X: 300, Y: 200}}))
	waitFor(t, func() bool {
		_, dragging := s.Dragging()
		return !dragging
	})
	assert.Equal(t, models.Position{X: 25, Y: 25}, s.Snapshot().Nodes["a"].Position)

	waitFor(t, func() bool { return len(store.savedData()) > 0 })

	restored, err := graph.Deserialize(store.savedData())
	require.NoError(t, err)
	assert.Equal(t, models.Position{X: 25, Y: 25}, restored.Nodes["a"].Position)
}

// move 事件带着已松开的按键状态到达：回到 Idle，不更新位置
func TestSessionMoveWithoutPressEndsDrag(t *testing.T) {
	s := newTestSession(t, nil)

	require.True(t, s.Dispatch(WindowResizeEvent{Element: measuredElement(), OK: true}))
	waitFor(t, func() bool { return s.Element().IsMeasured() })

	require.True(t, s.Dispatch(PointerDownEvent{NodeID: "a"}))
	waitFor(t, func() bool {
		_, dragging := s.Dragging()
		return dragging
	})

	posBefore := s.Snapshot().Nodes["a"].Position
	require.True(t, s.Dispatch(PointerMoveEvent{Screen: models.Position{X: 500, Y: 350}, Pressed: false}))
	waitFor(t, func() bool {
		_, dragging := s.Dragging()
		return !dragging
	})
	assert.Equal(t, posBefore, s.Snapshot().Nodes["a"].Position)
}

// 未知节点上的按下不进入拖拽
func TestSessionDragUnknownNode(t *testing.T) {
	s := newTestSession(t, nil)

	require.True(t, s.Dispatch(WindowResizeEvent{Element: measuredElement(), OK: true}))
	waitFor(t, func() bool { return s.Element().IsMeasured() })

	require.True(t, s.Dispatch(PointerDownEvent{NodeID: "ghost"}))
	waitFor(t, func() bool { return s.Subscribed(EventPointerDown) })
	_, dragging := s.Dragging()
	assert.False(t, dragging)
}

func TestSessionZoomChanged(t *testing.T) {
	s := newTestSession(t, nil)

	require.True(t, s.Dispatch(ZoomChangedEvent{Value: "2.5"}))
	waitFor(t, func() bool { return s.Zoom() == 2.5 })

	// 非法文本被忽略，保留原缩放
	require.True(t, s.Dispatch(ZoomChangedEvent{Value: "not-a-number"}))
	require.True(t, s.Dispatch(ZoomChangedEvent{Value: "0"}))
	require.True(t, s.Dispatch(ZoomChangedEvent{Value: "1.5"}))
	waitFor(t, func() bool { return s.Zoom() == 1.5 })
}

// 测量失败的 resize 不改变几何信息
func TestSessionResizeFailureIgnored(t *testing.T) {
	s := newTestSession(t, nil)

	require.True(t, s.Dispatch(WindowResizeEvent{Element: measuredElement(), OK: true}))
	waitFor(t, func() bool { return s.Element().IsMeasured() })

	require.True(t, s.Dispatch(WindowResizeEvent{OK: false}))
	require.True(t, s.Dispatch(ZoomChangedEvent{Value: "1"}))
	waitFor(t, func() bool { return s.Zoom() == 1 })
	assert.True(t, s.Element().IsMeasured())
}

// 加载失败：错误留在状态中，图保持不变；随后成功加载清空错误
func TestSessionGraphLoaded(t *testing.T) {
	s := newTestSession(t, nil)

	replaced := make(chan string, 1)
	s.SetCallbacks(nil, func(sessionID string) { replaced <- sessionID })

	before := s.Snapshot()

	require.True(t, s.Dispatch(GraphLoadedEvent{Data: []byte(`{"nodes": {}, "edges": "not-a-list"}`)}))
	waitFor(t, func() bool { return s.LastError() != nil })

	var decodeErr *graph.DecodeError
	assert.ErrorAs(t, s.LastError(), &decodeErr)
	assert.Equal(t, before.NodeCount(), s.Snapshot().NodeCount())

	// 存储层直接报错同样保留在状态中
	require.True(t, s.Dispatch(GraphLoadedEvent{Err: errors.New("存储不可用")}))
	waitFor(t, func() bool {
		err := s.LastError()
		return err != nil && decodeErrIsNil(err)
	})

	// 合法文档替换整个图并清空错误
	data, err := graph.Serialize(before)
	require.NoError(t, err)

	require.True(t, s.Dispatch(GraphLoadedEvent{Data: data}))
	waitFor(t, func() bool { return s.LastError() == nil })

	select {
	case id := <-replaced:
		assert.Equal(t, "test-session", id)
	case <-time.After(2 * time.Second):
		t.Fatal("图替换后应该触发回调")
	}
}

func decodeErrIsNil(err error) bool {
	var decodeErr *graph.DecodeError
	return !errors.As(err, &decodeErr)
}

// 故事整体替换：图全量重建，布局回到默认对角线
func TestSessionStoryChanged(t *testing.T) {
	s := newTestSession(t, nil)

	newStory := &models.Story{Scene: []models.Scene{
		{Home: "x", Name: "X", Route: []models.SceneOption{}},
	}}

	require.True(t, s.Dispatch(StoryChangedEvent{Story: newStory}))
	waitFor(t, func() bool { return s.Snapshot().NodeCount() == 1 })

	g := s.Snapshot()
	require.NotNil(t, g.Nodes["x"])
	assert.Equal(t, models.Position{X: 0, Y: 0}, g.Nodes["x"].Position)
}

// 回调在事件循环运行期间挂接（新连接加入已有会话的场景）
// 与正在处理的 move 事件并发也必须安全，之后的位移都能被观察到
func TestSessionSetCallbacksDuringDrag(t *testing.T) {
	s := newTestSession(t, nil)

	require.True(t, s.Dispatch(WindowResizeEvent{Element: measuredElement(), OK: true}))
	waitFor(t, func() bool { return s.Element().IsMeasured() })
	require.True(t, s.Dispatch(PointerDownEvent{NodeID: "a"}))
	waitFor(t, func() bool {
		_, dragging := s.Dragging()
		return dragging
	})

	// 一批 move 事件在飞行中，同时另一个连接挂接回调
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			s.Dispatch(PointerMoveEvent{Screen: models.Position{X: float64(100 + i), Y: 50}, Pressed: true})
		}
	}()

	moved := make(chan string, 64)
	s.SetCallbacks(func(sessionID, nodeID string, pos models.Position) {
		select {
		case moved <- nodeID:
		default:
		}
	}, nil)

	<-done

	// 挂接之后的位移必须能到达回调
	require.True(t, s.Dispatch(PointerMoveEvent{Screen: models.Position{X: 500, Y: 350}, Pressed: true}))
	waitFor(t, func() bool {
		select {
		case nodeID := <-moved:
			return nodeID == "a"
		default:
			return false
		}
	})
}

// 拖拽中途故事被替换：回到 Idle
func TestSessionStoryChangedDuringDrag(t *testing.T) {
	s := newTestSession(t, nil)

	require.True(t, s.Dispatch(WindowResizeEvent{Element: measuredElement(), OK: true}))
	waitFor(t, func() bool { return s.Element().IsMeasured() })
	require.True(t, s.Dispatch(PointerDownEvent{NodeID: "a"}))
	waitFor(t, func() bool {
		_, dragging := s.Dragging()
		return dragging
	})

	require.True(t, s.Dispatch(StoryChangedEvent{Story: testStory()}))
	waitFor(t, func() bool {
		_, dragging := s.Dragging()
		return !dragging
	})
	assert.True(t, s.Subscribed(EventPointerDown))
}

// RequestLoad 走完整的异步回路：存储 -> GraphLoadedEvent -> 图替换
func TestSessionRequestLoad(t *testing.T) {
	store := &fakeStore{}

	// 预先放一份布局：节点 a 在 (77, 88)
	seed := NewSession("seed", "story", testStory(), nil)
	g := seed.Snapshot()
	g.Nodes["a"].Position = models.Position{X: 77, Y: 88}
	data, err := graph.Serialize(g)
	require.NoError(t, err)
	store.saved = data

	s := newTestSession(t, store)
	s.RequestLoad()

	waitFor(t, func() bool {
		return s.Snapshot().Nodes["a"].Position == models.Position{X: 77, Y: 88}
	})
}

// 加载回执带错误时图保持初始构建的布局
func TestSessionRequestLoadFailure(t *testing.T) {
	store := &fakeStore{loadErr: errors.New("读取失败")}
	s := newTestSession(t, store)

	s.RequestLoad()
	waitFor(t, func() bool { return s.LastError() != nil })
	assert.Equal(t, 2, s.Snapshot().NodeCount())
}
