// internal/models/story_test.go
package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStory(t *testing.T) {
	doc := `{
		"scene": [
			{"home": "intro", "name": "开场", "route": [
				{"optionText": "前进", "target": "forest"}
			]},
			{"home": "forest", "name": "森林", "route": []}
		]
	}`

	story, err := DecodeStory([]byte(doc))
	require.NoError(t, err)
	require.Equal(t, 2, story.SceneCount())

	assert.Equal(t, "intro", story.Scene[0].Home)
	assert.Equal(t, "开场", story.Scene[0].Name)
	require.Len(t, story.Scene[0].Route, 1)
	assert.Equal(t, "前进", story.Scene[0].Route[0].OptionText)
	assert.Equal(t, "forest", story.Scene[0].Route[0].Target)
}

// 每个必需字段缺失都必须让整个文档解码失败
func TestDecodeStoryMissingFields(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing scene", `{}`},
		{"missing home", `{"scene": [{"name": "a", "route": []}]}`},
		{"missing name", `{"scene": [{"home": "a", "route": []}]}`},
		{"missing route", `{"scene": [{"home": "a", "name": "a"}]}`},
		{"missing optionText", `{"scene": [{"home": "a", "name": "a", "route": [{"target": "b"}]}]}`},
		{"missing target", `{"scene": [{"home": "a", "name": "a", "route": [{"optionText": "x"}]}]}`},
		{"not json", `not json at all`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeStory([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

// 字段值为空字符串或空数组是合法的，缺失才是错误
func TestDecodeStoryEmptyValues(t *testing.T) {
	doc := `{"scene": [{"home": "", "name": "", "route": [{"optionText": "", "target": ""}]}]}`

	story, err := DecodeStory([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 1, story.SceneCount())
	assert.Equal(t, "", story.Scene[0].Route[0].OptionText)
}

// route 为 nil 的场景序列化后必须能再次通过严格解码
func TestSceneMarshalRoundTrip(t *testing.T) {
	scene := Scene{Home: "intro", Name: "开场"}

	data, err := json.Marshal(scene)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"route":[]`)

	var decoded Scene
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, scene.Home, decoded.Home)
	assert.NotNil(t, decoded.Route)
}

func TestFindScene(t *testing.T) {
	story := &Story{Scene: []Scene{
		{Home: "a", Name: "first"},
		{Home: "b", Name: "middle"},
		{Home: "a", Name: "last"},
	}}

	// 重复 home 时与图构建一致：后者生效
	scene, ok := story.FindScene("a")
	require.True(t, ok)
	assert.Equal(t, "last", scene.Name)

	_, ok = story.FindScene("missing")
	assert.False(t, ok)

	assert.Equal(t, 1, story.SceneIndex("b"))
	assert.Equal(t, -1, story.SceneIndex("missing"))
}

func TestValidate(t *testing.T) {
	story := &Story{Scene: []Scene{
		{Home: "intro", Name: "开场", Route: []SceneOption{
			{OptionText: "去森林", Target: "forest"},
			{OptionText: "去没有的地方", Target: "nowhere"},
		}},
		{Home: "forest", Name: "森林", Route: []SceneOption{}},
		{Home: "intro", Name: "重复", Route: []SceneOption{}},
		{Home: "island", Name: "孤岛", Route: []SceneOption{}},
	}}

	issues := story.Validate()

	kinds := make(map[string]int)
	for _, issue := range issues {
		kinds[issue.Kind]++
	}

	assert.Equal(t, 1, kinds["duplicate_home"])
	assert.Equal(t, 1, kinds["dangling_target"])
	// intro 的重复条目可达（同一标识），island 不可达
	assert.Equal(t, 1, kinds["unreachable"])
}

// 起始场景的 home 被后面的空路由场景重复时，
// 第一份场景的路由仍然要走到，目标不能被误报为不可达
func TestValidateDuplicateStartHomeReachability(t *testing.T) {
	story := &Story{Scene: []Scene{
		{Home: "start", Name: "起点", Route: []SceneOption{{OptionText: "走", Target: "end"}}},
		{Home: "start", Name: "重复", Route: []SceneOption{}},
		{Home: "end", Name: "终点", Route: []SceneOption{}},
	}}

	for _, issue := range story.Validate() {
		assert.NotEqual(t, "unreachable", issue.Kind, "场景 %s 不应被报告为不可达", issue.Home)
	}
}

func TestValidateCleanStory(t *testing.T) {
	story := &Story{Scene: []Scene{
		{Home: "a", Name: "a", Route: []SceneOption{{OptionText: "x", Target: "b"}}},
		{Home: "b", Name: "b", Route: []SceneOption{}},
	}}

	assert.Empty(t, story.Validate())
}
