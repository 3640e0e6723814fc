// internal/graph/viewport.go
package graph

import (
	"math"
	"strconv"

	"github.com/Corphon/StoryGraphStudio/internal/models"
)

// 图空间的固定逻辑尺寸，与渲染 viewbox 一致
const (
	ViewportWidth  = 100.0
	ViewportHeight = 100.0
)

// 缩放滑块的取值范围和步进，UI 层的约束
// 换算函数本身对 zoom 不设上限，只要求非零
const (
	MinZoom  = 0.1
	MaxZoom  = 10.0
	ZoomStep = 0.1
)

// ToGraphSpace 把屏幕坐标换算为图空间坐标
// 画布尺寸为0时除法会退化，调用方必须在首次有效测量前挡住拖拽事件
func ToGraphSpace(screen models.Position, zoom float64, element models.GraphElement) models.Position {
	return models.Position{
		X: (screen.X - element.Position.X) / element.Dimension.Width * ViewportWidth / zoom,
		Y: (screen.Y - element.Position.Y) / element.Dimension.Height * ViewportHeight / zoom,
	}
}

// ToScreenSpace 图空间坐标换算回屏幕坐标（ToGraphSpace 的逆变换）
func ToScreenSpace(graphPos models.Position, zoom float64, element models.GraphElement) models.Position {
	return models.Position{
		X: element.Position.X + graphPos.X*zoom/ViewportWidth*element.Dimension.Width,
		Y: element.Position.Y + graphPos.Y*zoom/ViewportHeight*element.Dimension.Height,
	}
}

// ParseZoom 解析缩放滑块的文本值
// 解析失败或非正数时返回 ok=false，调用方保持原值不变
func ParseZoom(value string) (float64, bool) {
	zoom, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	if math.IsNaN(zoom) || math.IsInf(zoom, 0) || zoom <= 0 {
		return 0, false
	}
	return zoom, true
}
