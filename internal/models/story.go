// internal/models/story.go
package models

import (
	"encoding/json"
	"fmt"
)

// SceneOption 表示场景中的一个选项（指向另一个场景的有向跳转）
type SceneOption struct {
	OptionText string `json:"optionText"` // 选项文本，空字符串表示静默跳转，不产生图边
	Target     string `json:"target"`     // 目标场景的 home 标识
}

// Scene 表示故事中的一个叙事单元（页面）
type Scene struct {
	Home  string        `json:"home"`  // 场景唯一标识，兼作素材路径段和图节点ID
	Name  string        `json:"name"`  // 场景显示名称
	Route []SceneOption `json:"route"` // 读者可选择的选项，按作者定义顺序
}

// Story 表示一个完整的故事（场景的有序序列）
// 加载后不可变，只允许整体替换
type Story struct {
	Scene []Scene `json:"scene"`
}

// UnmarshalJSON 严格解码：optionText 和 target 均为必需字段
func (o *SceneOption) UnmarshalJSON(data []byte) error {
	aux := struct {
		OptionText *string `json:"optionText"`
		Target     *string `json:"target"`
	}{}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.OptionText == nil {
		return fmt.Errorf("选项缺少必需字段: optionText")
	}
	if aux.Target == nil {
		return fmt.Errorf("选项缺少必需字段: target")
	}

	o.OptionText = *aux.OptionText
	o.Target = *aux.Target
	return nil
}

// UnmarshalJSON 严格解码：home、name、route 均为必需字段
func (s *Scene) UnmarshalJSON(data []byte) error {
	aux := struct {
		Home  *string        `json:"home"`
		Name  *string        `json:"name"`
		Route *[]SceneOption `json:"route"`
	}{}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.Home == nil {
		return fmt.Errorf("场景缺少必需字段: home")
	}
	if aux.Name == nil {
		return fmt.Errorf("场景缺少必需字段: name")
	}
	if aux.Route == nil {
		return fmt.Errorf("场景缺少必需字段: route")
	}

	s.Home = *aux.Home
	s.Name = *aux.Name
	s.Route = *aux.Route
	return nil
}

// MarshalJSON 序列化场景
// route 为 nil 时输出空数组，保证序列化结果总能通过严格解码还原
func (s Scene) MarshalJSON() ([]byte, error) {
	route := s.Route
	if route == nil {
		route = []SceneOption{}
	}
	return json.Marshal(struct {
		Home  string        `json:"home"`
		Name  string        `json:"name"`
		Route []SceneOption `json:"route"`
	}{s.Home, s.Name, route})
}

// DecodeStory 从JSON文档解码故事，scene 字段必需
func DecodeStory(data []byte) (*Story, error) {
	aux := struct {
		Scene *[]Scene `json:"scene"`
	}{}

	if err := json.Unmarshal(data, &aux); err != nil {
		return nil, fmt.Errorf("解析故事文档失败: %w", err)
	}

	if aux.Scene == nil {
		return nil, fmt.Errorf("故事文档缺少必需字段: scene")
	}

	return &Story{Scene: *aux.Scene}, nil
}

// FindScene 按 home 查找场景
// 存在重复 home 时返回最后一个（与图构建的 last-write-wins 行为一致）
func (st *Story) FindScene(home string) (Scene, bool) {
	var found Scene
	ok := false
	for _, scene := range st.Scene {
		if scene.Home == home {
			found = scene
			ok = true
		}
	}
	return found, ok
}

// SceneIndex 返回场景在故事中的序号，不存在返回 -1
func (st *Story) SceneIndex(home string) int {
	for i, scene := range st.Scene {
		if scene.Home == home {
			return i
		}
	}
	return -1
}

// SceneCount 返回场景数量
func (st *Story) SceneCount() int {
	return len(st.Scene)
}

// StoryIssue 表示故事结构检查发现的一个问题
type StoryIssue struct {
	Kind    string `json:"kind"`    // dangling_target / duplicate_home / unreachable
	Home    string `json:"home"`    // 相关场景
	Target  string `json:"target,omitempty"` // 相关目标（仅 dangling_target）
	Message string `json:"message"` // 人类可读描述
}

// Validate 检查故事结构，返回发现的问题列表
// 悬空 target 和重复 home 不算加载错误，这里只做报告
func (st *Story) Validate() []StoryIssue {
	var issues []StoryIssue

	seen := make(map[string]bool, len(st.Scene))
	for _, scene := range st.Scene {
		if seen[scene.Home] {
			issues = append(issues, StoryIssue{
				Kind:    "duplicate_home",
				Home:    scene.Home,
				Message: fmt.Sprintf("场景标识重复: %q（图构建时后者覆盖前者）", scene.Home),
			})
		}
		seen[scene.Home] = true
	}

	for _, scene := range st.Scene {
		for _, opt := range scene.Route {
			if !seen[opt.Target] {
				issues = append(issues, StoryIssue{
					Kind:    "dangling_target",
					Home:    scene.Home,
					Target:  opt.Target,
					Message: fmt.Sprintf("场景 %q 的选项指向不存在的场景 %q", scene.Home, opt.Target),
				})
			}
		}
	}

	// 从首个场景出发做可达性检查
	// 同一 home 的所有场景的路由都要走到（图构建时每个场景都产出自己的边）
	if len(st.Scene) > 0 {
		routes := make(map[string][]SceneOption, len(st.Scene))
		for _, scene := range st.Scene {
			routes[scene.Home] = append(routes[scene.Home], scene.Route...)
		}

		reachable := make(map[string]bool, len(st.Scene))
		queue := []string{st.Scene[0].Home}
		reachable[st.Scene[0].Home] = true
		for len(queue) > 0 {
			home := queue[0]
			queue = queue[1:]
			for _, opt := range routes[home] {
				if !reachable[opt.Target] {
					reachable[opt.Target] = true
					queue = append(queue, opt.Target)
				}
			}
		}
		for _, scene := range st.Scene {
			if !reachable[scene.Home] {
				issues = append(issues, StoryIssue{
					Kind:    "unreachable",
					Home:    scene.Home,
					Message: fmt.Sprintf("场景 %q 从首个场景不可达", scene.Home),
				})
			}
		}
	}

	return issues
}
