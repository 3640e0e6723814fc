// internal/graph/codec.go
package graph

import (
	"encoding/json"
	"fmt"

	"github.com/Corphon/StoryGraphStudio/internal/models"
)

// DecodeError 表示图文档不符合期望形状
// Path 指向出错的字段，供宿主UI展示；解码失败时调用方保留原有内存中的图
type DecodeError struct {
	Path   string // 出错字段的路径，如 nodes.intro.position
	Reason string // 人类可读原因
	Err    error  // 底层错误（可能为 nil）
}

// Error 实现 error 接口
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("图文档解码失败 [%s]: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("图文档解码失败 [%s]: %s", e.Path, e.Reason)
}

// Unwrap 实现错误链接
func (e *DecodeError) Unwrap() error {
	return e.Err
}

func newDecodeError(path, reason string, err error) *DecodeError {
	return &DecodeError{Path: path, Reason: reason, Err: err}
}

// Serialize 把整个图序列化为JSON文本
// 节点位置、场景内容、边列表全部保留，已合并的边标签原样存储不再重新推导
func Serialize(g *models.Graph) ([]byte, error) {
	if g == nil {
		g = models.NewGraph()
	}

	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("序列化图失败: %w", err)
	}

	return data, nil
}

// Deserialize 从JSON文本还原图
// 任何形状不符（缺少必需字段、类型错误）都返回 *DecodeError 并指出出错路径
func Deserialize(data []byte) (*models.Graph, error) {
	doc := struct {
		Nodes *json.RawMessage `json:"nodes"`
		Edges *json.RawMessage `json:"edges"`
	}{}

	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, newDecodeError("$", "文档不是合法的JSON对象", err)
	}
	if doc.Nodes == nil {
		return nil, newDecodeError("nodes", "缺少必需字段", nil)
	}
	if doc.Edges == nil {
		return nil, newDecodeError("edges", "缺少必需字段", nil)
	}

	g := models.NewGraph()

	var rawNodes map[string]json.RawMessage
	if err := json.Unmarshal(*doc.Nodes, &rawNodes); err != nil {
		return nil, newDecodeError("nodes", "应为对象（标识 -> 节点）", err)
	}

	for id, rawNode := range rawNodes {
		node, err := decodeNode(id, rawNode)
		if err != nil {
			return nil, err
		}
		g.Nodes[id] = node
	}

	var rawEdges []json.RawMessage
	if err := json.Unmarshal(*doc.Edges, &rawEdges); err != nil {
		return nil, newDecodeError("edges", "应为数组", err)
	}

	g.Edges = make([]models.Edge, 0, len(rawEdges))
	for i, rawEdge := range rawEdges {
		edge, err := decodeEdge(i, rawEdge)
		if err != nil {
			return nil, err
		}
		g.Edges = append(g.Edges, edge)
	}

	return g, nil
}

// decodeNode 解码单个节点，position 和 scene 均为必需
func decodeNode(id string, data json.RawMessage) (*models.Node, error) {
	path := "nodes." + id

	aux := struct {
		Position *json.RawMessage `json:"position"`
		Scene    *json.RawMessage `json:"scene"`
	}{}

	if err := json.Unmarshal(data, &aux); err != nil {
		return nil, newDecodeError(path, "应为对象", err)
	}
	if aux.Position == nil {
		return nil, newDecodeError(path+".position", "缺少必需字段", nil)
	}
	if aux.Scene == nil {
		return nil, newDecodeError(path+".scene", "缺少必需字段", nil)
	}

	pos, err := decodePosition(path+".position", *aux.Position)
	if err != nil {
		return nil, err
	}

	var scene models.Scene
	if err := json.Unmarshal(*aux.Scene, &scene); err != nil {
		// Scene 的严格解码已经描述了缺失字段，这里补上路径
		return nil, newDecodeError(path+".scene", "场景形状不符", err)
	}

	return &models.Node{ID: id, Position: pos, Scene: scene}, nil
}

// decodePosition 解码位置，x 和 y 均为必需的数值
func decodePosition(path string, data json.RawMessage) (models.Position, error) {
	aux := struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}{}

	if err := json.Unmarshal(data, &aux); err != nil {
		return models.Position{}, newDecodeError(path, "应为 {x, y} 数值对象", err)
	}
	if aux.X == nil {
		return models.Position{}, newDecodeError(path+".x", "缺少必需字段", nil)
	}
	if aux.Y == nil {
		return models.Position{}, newDecodeError(path+".y", "缺少必需字段", nil)
	}

	return models.Position{X: *aux.X, Y: *aux.Y}, nil
}

// decodeEdge 解码单条边，fromNode、toNode、label 均为必需
// label 原样保留，不重新推导合并
func decodeEdge(index int, data json.RawMessage) (models.Edge, error) {
	path := fmt.Sprintf("edges[%d]", index)

	aux := struct {
		FromNode *string `json:"fromNode"`
		ToNode   *string `json:"toNode"`
		Label    *string `json:"label"`
	}{}

	if err := json.Unmarshal(data, &aux); err != nil {
		return models.Edge{}, newDecodeError(path, "应为对象", err)
	}
	if aux.FromNode == nil {
		return models.Edge{}, newDecodeError(path+".fromNode", "缺少必需字段", nil)
	}
	if aux.ToNode == nil {
		return models.Edge{}, newDecodeError(path+".toNode", "缺少必需字段", nil)
	}
	if aux.Label == nil {
		return models.Edge{}, newDecodeError(path+".label", "缺少必需字段", nil)
	}

	return models.Edge{FromNode: *aux.FromNode, ToNode: *aux.ToNode, Label: *aux.Label}, nil
}
