// internal/graph/builder.go
package graph

import (
	"strings"

	"github.com/Corphon/StoryGraphStudio/internal/models"
)

// 首次构建时节点沿对角线排布的间距（图空间单位）
const defaultLayoutStep = 10.0

// BuildGraph 从故事构建带默认布局的节点/边图
// 纯函数：相同的故事总是产出结构相同的图，位置只由场景序号决定
func BuildGraph(story *models.Story) *models.Graph {
	g := models.NewGraph()
	if story == nil {
		return g
	}

	// 每个场景一个节点，默认位置 (10·i, 10·i)
	// home 重复时后者覆盖前者（last-write-wins），不视为错误
	for i, scene := range story.Scene {
		g.Nodes[scene.Home] = &models.Node{
			ID: scene.Home,
			Position: models.Position{
				X: defaultLayoutStep * float64(i),
				Y: defaultLayoutStep * float64(i),
			},
			Scene: scene,
		}
	}

	// 逐场景生成候选边并合并，再按故事顺序拼接
	for _, scene := range story.Scene {
		g.Edges = append(g.Edges, buildSceneEdges(scene)...)
	}

	return g
}

// buildSceneEdges 把单个场景的选项映射为合并后的边列表
// 空文本选项不产生边；同一目标的多个选项合并为一条边，
// 标签按出现顺序以 "/" 连接。跨场景的同目标边因 fromNode 不同而保持独立。
func buildSceneEdges(scene models.Scene) []models.Edge {
	var order []string
	labels := make(map[string][]string)

	for _, opt := range scene.Route {
		if opt.OptionText == "" {
			continue
		}
		if _, seen := labels[opt.Target]; !seen {
			order = append(order, opt.Target)
		}
		labels[opt.Target] = append(labels[opt.Target], opt.OptionText)
	}

	edges := make([]models.Edge, 0, len(order))
	for _, target := range order {
		edges = append(edges, models.Edge{
			FromNode: scene.Home,
			ToNode:   target,
			Label:    strings.Join(labels[target], "/"),
		})
	}

	return edges
}
