// internal/models/graph.go
package models

import "encoding/json"

// Position 图空间坐标，逻辑单位 0..100（与渲染 viewbox 对应）
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dimension 屏幕上的尺寸（像素）
type Dimension struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// GraphElement 画布元素在屏幕上的几何信息
// 加载和窗口尺寸变化时重新测量，仅用于坐标换算
type GraphElement struct {
	Position  Position  `json:"position"`
	Dimension Dimension `json:"dimension"`
}

// IsMeasured 画布是否已完成首次有效测量
// 未测量（尺寸为0）时坐标换算会退化，拖拽必须被挡住
func (e GraphElement) IsMeasured() bool {
	return e.Dimension.Width > 0 && e.Dimension.Height > 0
}

// Node 表示图中的一个节点，每个场景对应一个
// ID 等于 Scene.Home，序列化时作为 nodes 映射的键，不进对象体
type Node struct {
	ID       string   `json:"-"`
	Position Position `json:"position"`
	Scene    Scene    `json:"scene"`
}

// Edge 表示图中的一条有向边
// 同一对 (fromNode, toNode) 的多个选项在构建时已合并，label 为 "/" 连接的合并文本
type Edge struct {
	FromNode string `json:"fromNode"`
	ToNode   string `json:"toNode"`
	Label    string `json:"label"`
}

// Graph 编辑会话期间唯一的可变聚合
// 由编辑器独占持有，所有修改经由会话的状态机串行执行
type Graph struct {
	Nodes map[string]*Node `json:"nodes"`
	Edges []Edge           `json:"edges"`
}

// MarshalJSON 序列化图
// 空的节点映射和边列表输出 {} 和 []，保证序列化结果总能被解码器还原
func (g *Graph) MarshalJSON() ([]byte, error) {
	nodes := g.Nodes
	if nodes == nil {
		nodes = map[string]*Node{}
	}
	edges := g.Edges
	if edges == nil {
		edges = []Edge{}
	}
	return json.Marshal(struct {
		Nodes map[string]*Node `json:"nodes"`
		Edges []Edge           `json:"edges"`
	}{nodes, edges})
}

// NewGraph 创建空图
func NewGraph() *Graph {
	return &Graph{
		Nodes: make(map[string]*Node),
	}
}

// Node 按标识查找节点，不存在返回 nil
func (g *Graph) Node(id string) *Node {
	if g == nil {
		return nil
	}
	return g.Nodes[id]
}

// PositionOf 返回节点位置
// 悬空 target 指向的节点不存在时回退到哨兵原点位置，渲染侧不做额外判断
func (g *Graph) PositionOf(id string) Position {
	if node := g.Node(id); node != nil {
		return node.Position
	}
	return Position{}
}

// NodeCount 节点数量
func (g *Graph) NodeCount() int {
	if g == nil {
		return 0
	}
	return len(g.Nodes)
}

// EdgeCount 边数量
func (g *Graph) EdgeCount() int {
	if g == nil {
		return 0
	}
	return len(g.Edges)
}

// Clone 深拷贝整个图
// 编辑器对外暴露只读快照时使用，避免外部持有者与状态机产生别名
func (g *Graph) Clone() *Graph {
	if g == nil {
		return nil
	}

	clone := &Graph{
		Nodes: make(map[string]*Node, len(g.Nodes)),
	}

	for id, node := range g.Nodes {
		copied := *node
		clone.Nodes[id] = &copied
	}

	if g.Edges != nil {
		clone.Edges = make([]Edge, len(g.Edges))
		copy(clone.Edges, g.Edges)
	}

	return clone
}
