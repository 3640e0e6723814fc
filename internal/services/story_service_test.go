// internal/services/story_service_test.go
package services

import (
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/Corphon/StoryGraphStudio/internal/errors"
	"github.com/Corphon/StoryGraphStudio/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustStorage(t *testing.T, baseDir string) *storage.FileStorage {
	t.Helper()
	fs, err := storage.NewFileStorage(baseDir)
	require.NoError(t, err)
	return fs
}

const validStoryDoc = `{
	"scene": [
		{"home": "intro", "name": "开场", "route": [
			{"optionText": "前进", "target": "forest"}
		]},
		{"home": "forest", "name": "森林", "route": []}
	]
}`

// writeStory 在故事库目录下铺出约定布局
func writeStory(t *testing.T, baseDir, storyID, doc string) {
	t.Helper()
	dir := filepath.Join(baseDir, storyID)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, storyFileName), []byte(doc), 0644))
}

func writeSceneText(t *testing.T, baseDir, storyID, home, text string) {
	t.Helper()
	dir := filepath.Join(baseDir, storyID, sceneTextDir)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, home+sceneTextExt), []byte(text), 0644))
}

func TestLoadStory(t *testing.T) {
	baseDir := t.TempDir()
	writeStory(t, baseDir, "demo", validStoryDoc)

	svc := NewStoryService(baseDir)

	story, err := svc.LoadStory("demo")
	require.NoError(t, err)
	assert.Equal(t, 2, story.SceneCount())

	// 二次加载命中缓存，返回同一份故事
	again, err := svc.LoadStory("demo")
	require.NoError(t, err)
	assert.Same(t, story, again)
}

func TestLoadStoryErrors(t *testing.T) {
	baseDir := t.TempDir()
	writeStory(t, baseDir, "broken", `{"scene": [{"home": "a"}]}`)

	svc := NewStoryService(baseDir)

	_, err := svc.LoadStory("")
	assert.True(t, apperrors.IsValidationError(err))

	_, err = svc.LoadStory("missing")
	assert.True(t, apperrors.IsNotFoundError(err))

	// 文档不合法与读取失败同样是错误，调用方保留此前的故事
	_, err = svc.LoadStory("broken")
	assert.True(t, apperrors.IsDecodeError(err))
}

func TestInvalidateStory(t *testing.T) {
	baseDir := t.TempDir()
	writeStory(t, baseDir, "demo", validStoryDoc)

	svc := NewStoryService(baseDir)

	story, err := svc.LoadStory("demo")
	require.NoError(t, err)
	assert.Equal(t, "开场", story.Scene[0].Name)

	// 素材目录变化：作废缓存后重新读盘
	updated := `{"scene": [{"home": "intro", "name": "新开场", "route": []}]}`
	writeStory(t, baseDir, "demo", updated)
	svc.InvalidateStory("demo")
	svc.Storage = mustStorage(t, baseDir) // 绕过文件存储自身的读缓存

	story, err = svc.LoadStory("demo")
	require.NoError(t, err)
	assert.Equal(t, "新开场", story.Scene[0].Name)
}

func TestListStories(t *testing.T) {
	baseDir := t.TempDir()
	writeStory(t, baseDir, "alpha", validStoryDoc)
	writeStory(t, baseDir, "bad", `not json`)

	// 没有 scenes.json 的目录不算故事
	require.NoError(t, os.MkdirAll(filepath.Join(baseDir, "empty"), 0755))

	svc := NewStoryService(baseDir)

	infos, err := svc.ListStories()
	require.NoError(t, err)
	require.Len(t, infos, 1)

	assert.Equal(t, "alpha", infos[0].ID)
	assert.Equal(t, "开场", infos[0].Title)
	assert.Equal(t, 2, infos[0].SceneCount)
}

func TestSceneParagraphs(t *testing.T) {
	baseDir := t.TempDir()
	writeStory(t, baseDir, "demo", validStoryDoc)
	writeSceneText(t, baseDir, "demo", "intro", "第一段。\r\n\r\n第二段。\n\n\n第三段。")

	svc := NewStoryService(baseDir)

	paragraphs := svc.SceneParagraphs("demo", "intro")
	assert.Equal(t, []string{"第一段。", "第二段。", "第三段。"}, paragraphs)

	// 正文缺失时返回占位段落，不视为错误
	assert.Equal(t, []string{textPlaceholder}, svc.SceneParagraphs("demo", "forest"))
}

func TestSplitParagraphs(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitParagraphs("a\n\nb"))
	assert.Equal(t, []string{"a\nb"}, SplitParagraphs("a\nb"))
	assert.Equal(t, []string{textPlaceholder}, SplitParagraphs(""))
	assert.Equal(t, []string{textPlaceholder}, SplitParagraphs("\n\n\n"))
}

func TestSceneImage(t *testing.T) {
	baseDir := t.TempDir()
	writeStory(t, baseDir, "demo", validStoryDoc)

	imgDir := filepath.Join(baseDir, "demo", sceneImageDir)
	require.NoError(t, os.MkdirAll(imgDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(imgDir, "intro"+sceneImageExt), []byte("png"), 0644))

	svc := NewStoryService(baseDir)

	assert.True(t, svc.HasSceneImage("demo", "intro"))
	assert.False(t, svc.HasSceneImage("demo", "forest"))
	assert.Equal(t, filepath.Join(baseDir, "demo", sceneImageDir, "intro.png"), svc.SceneImagePath("demo", "intro"))
}
