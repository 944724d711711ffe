package vision

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	colorBorder = color.RGBA{255, 0, 0, 0}
	colorHole   = color.RGBA{0, 255, 0, 0}
	colorQuad   = color.RGBA{0, 0, 255, 0}
	colorText   = color.RGBA{255, 255, 255, 0}
)

// Overlay is what a cycle draws over its preview frame.
type Overlay struct {
	Holes []Hole
	Quad  *Quad
	Lines []string
}

// Annotate draws the border outlines, accepted holes, the carton quad and
// the text lines onto a BGR copy of preview. The caller closes the result.
func Annotate(preview gocv.Mat, borders Borders, o Overlay) gocv.Mat {
	out := gocv.NewMat()
	if preview.Empty() {
		return out
	}
	if preview.Channels() == 1 {
		gocv.CvtColor(preview, &out, gocv.ColorGrayToBGR)
	} else {
		preview.CopyTo(&out)
	}
	size := image.Pt(out.Cols(), out.Rows())

	gocv.Rectangle(&out, borders.Inner(size), colorBorder, 2)

	for _, h := range o.Holes {
		gocv.Circle(&out, h.Center.Image(), int(h.Radius+0.5), colorHole, 2)
	}

	if o.Quad != nil {
		for i := 0; i < 4; i++ {
			gocv.Line(&out, o.Quad.Corners[i], o.Quad.Corners[(i+1)%4], colorQuad, 3)
		}
		gocv.Circle(&out, o.Quad.Rect.Center.Image(), 6, colorQuad, -1)
	}

	y := 30
	for _, line := range o.Lines {
		gocv.PutText(&out, line, image.Pt(borders.Left+10, y), gocv.FontHersheySimplex, 0.8, colorText, 2)
		y += 30
	}
	return out
}
