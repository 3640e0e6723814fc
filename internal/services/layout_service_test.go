// internal/services/layout_service_test.go
package services

import (
	"testing"

	"github.com/Corphon/StoryGraphStudio/internal/editor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// LayoutService 必须满足编辑会话的持久化通道接口
var _ editor.LayoutStore = (*LayoutService)(nil)

func TestLayoutSaveLoad(t *testing.T) {
	svc := NewLayoutService(t.TempDir())

	doc := []byte(`{"nodes": {}, "edges": []}`)
	require.NoError(t, svc.SaveLayout("demo", doc))
	assert.True(t, svc.HasLayout("demo"))

	loaded, err := svc.LoadLayout("demo")
	require.NoError(t, err)
	assert.Equal(t, doc, loaded)
}

func TestLayoutLoadMissing(t *testing.T) {
	svc := NewLayoutService(t.TempDir())

	assert.False(t, svc.HasLayout("nope"))
	_, err := svc.LoadLayout("nope")
	assert.Error(t, err)
}

func TestLayoutSaveValidation(t *testing.T) {
	svc := NewLayoutService(t.TempDir())
	assert.Error(t, svc.SaveLayout("", []byte("{}")))
}

func TestLayoutDelete(t *testing.T) {
	svc := NewLayoutService(t.TempDir())

	require.NoError(t, svc.SaveLayout("demo", []byte("{}")))
	require.NoError(t, svc.DeleteLayout("demo"))
	assert.False(t, svc.HasLayout("demo"))
}
