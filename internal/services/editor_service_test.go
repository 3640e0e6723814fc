// internal/services/editor_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/Corphon/StoryGraphStudio/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEditorService(t *testing.T) *EditorService {
	t.Helper()
	storyDir := t.TempDir()
	writeStory(t, storyDir, "demo", validStoryDoc)

	storySvc := NewStoryService(storyDir)
	layoutSvc := NewLayoutService(t.TempDir())
	return NewEditorService(storySvc, layoutSvc)
}

func TestCreateAndCloseSession(t *testing.T) {
	svc := newTestEditorService(t)

	session, err := svc.CreateSession("demo")
	require.NoError(t, err)
	require.NotEmpty(t, session.ID)
	assert.Equal(t, "demo", session.StoryID)
	assert.Equal(t, 2, session.Snapshot().NodeCount())
	assert.Equal(t, 1, svc.SessionCount())

	found, ok := svc.GetSession(session.ID)
	require.True(t, ok)
	assert.Same(t, session, found)

	svc.CloseSession(session.ID)
	assert.Equal(t, 0, svc.SessionCount())
	_, ok = svc.GetSession(session.ID)
	assert.False(t, ok)
}

func TestCreateSessionUnknownStory(t *testing.T) {
	svc := newTestEditorService(t)

	_, err := svc.CreateSession("missing")
	assert.Error(t, err)
	assert.Equal(t, 0, svc.SessionCount())
}

// 已保存的布局在会话打开时异步加载并覆盖默认布局
func TestCreateSessionLoadsSavedLayout(t *testing.T) {
	storyDir := t.TempDir()
	writeStory(t, storyDir, "demo", validStoryDoc)

	storySvc := NewStoryService(storyDir)
	layoutSvc := NewLayoutService(t.TempDir())
	svc := NewEditorService(storySvc, layoutSvc)

	saved := `{
		"nodes": {
			"intro": {"position": {"x": 55, "y": 66}, "scene": {"home": "intro", "name": "开场", "route": []}}
		},
		"edges": []
	}`
	require.NoError(t, layoutSvc.SaveLayout("demo", []byte(saved)))

	session, err := svc.CreateSession("demo")
	require.NoError(t, err)
	defer svc.CloseSession(session.ID)

	require.Eventually(t, func() bool {
		node := session.Snapshot().Nodes["intro"]
		return node != nil && node.Position == models.Position{X: 55, Y: 66}
	}, 2*time.Second, 2*time.Millisecond)
}

func TestReloadStoryRebuildsSessions(t *testing.T) {
	storyDir := t.TempDir()
	writeStory(t, storyDir, "demo", validStoryDoc)

	storySvc := NewStoryService(storyDir)
	svc := NewEditorService(storySvc, NewLayoutService(t.TempDir()))

	session, err := svc.CreateSession("demo")
	require.NoError(t, err)
	defer svc.CloseAll()

	writeStory(t, storyDir, "demo", `{"scene": [{"home": "solo", "name": "独幕", "route": []}]}`)
	storySvc.Storage = mustStorage(t, storyDir)
	svc.ReloadStory("demo")

	require.Eventually(t, func() bool {
		g := session.Snapshot()
		return g.NodeCount() == 1 && g.Nodes["solo"] != nil
	}, 2*time.Second, 2*time.Millisecond)
}

func TestCloseAll(t *testing.T) {
	svc := newTestEditorService(t)

	_, err := svc.CreateSession("demo")
	require.NoError(t, err)
	_, err = svc.CreateSession("demo")
	require.NoError(t, err)
	require.Equal(t, 2, svc.SessionCount())

	svc.CloseAll()
	assert.Equal(t, 0, svc.SessionCount())
}
