// internal/graph/viewport_test.go
package graph

import (
	"testing"

	"github.com/Corphon/StoryGraphStudio/internal/models"
	"github.com/stretchr/testify/assert"
)

func testElement() models.GraphElement {
	return models.GraphElement{
		Position:  models.Position{X: 100, Y: 50},
		Dimension: models.Dimension{Width: 800, Height: 600},
	}
}

func TestToGraphSpace(t *testing.T) {
	element := testElement()

	// 画布左上角对应图空间原点
	origin := ToGraphSpace(models.Position{X: 100, Y: 50}, 1.0, element)
	assert.Equal(t, models.Position{X: 0, Y: 0}, origin)

	// 画布右下角在 zoom=1 时对应 (100, 100)
	corner := ToGraphSpace(models.Position{X: 900, Y: 650}, 1.0, element)
	assert.InDelta(t, ViewportWidth, corner.X, 1e-9)
	assert.InDelta(t, ViewportHeight, corner.Y, 1e-9)

	// 放大一倍时同一屏幕点对应的图空间坐标减半
	zoomed := ToGraphSpace(models.Position{X: 900, Y: 650}, 2.0, element)
	assert.InDelta(t, 50, zoomed.X, 1e-9)
	assert.InDelta(t, 50, zoomed.Y, 1e-9)
}

// 正反换算在非退化几何下互为逆运算
func TestCoordinateRoundTrip(t *testing.T) {
	element := testElement()
	zooms := []float64{MinZoom, 0.5, 1.0, 3.3, MaxZoom}
	points := []models.Position{
		{X: 100, Y: 50},
		{X: 450, Y: 320},
		{X: 900, Y: 650},
		{X: 37, Y: -12}, // 画布外的点同样可换算
	}

	for _, zoom := range zooms {
		for _, screen := range points {
			graphPos := ToGraphSpace(screen, zoom, element)
			back := ToScreenSpace(graphPos, zoom, element)
			assert.InDelta(t, screen.X, back.X, 1e-9)
			assert.InDelta(t, screen.Y, back.Y, 1e-9)
		}
	}
}

func TestParseZoom(t *testing.T) {
	tests := []struct {
		value string
		zoom  float64
		ok    bool
	}{
		{"1", 1.0, true},
		{"0.1", 0.1, true},
		{"10", 10.0, true},
		{"2.5", 2.5, true},
		{"", 0, false},
		{"abc", 0, false},
		{"0", 0, false},
		{"-1", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"+Inf", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			zoom, ok := ParseZoom(tt.value)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.zoom, zoom)
			}
		})
	}
}
