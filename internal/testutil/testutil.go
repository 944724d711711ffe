// Package testutil provides shared test fixtures: synthetic carton frames
// and small HTTP assertion helpers.
package testutil

import (
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"

	"gocv.io/x/gocv"
)

// Synthetic carton geometry. Four horizontal slots on a 400x200 px
// rectangle centered 50 px right of the frame center.
var (
	FrameSize     = image.Pt(1000, 700)
	SlotSize      = image.Pt(40, 10)
	CartonCorners = []image.Point{{350, 250}, {750, 250}, {750, 450}, {350, 450}}
)

const (
	Background = 200
	SlotValue  = 30
)

// SlotFrame returns a BGR frame of FrameSize with a dark SlotSize slot
// centered on each point. The caller closes it.
func SlotFrame(t testing.TB, centers []image.Point) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(Background, Background, Background, 0),
		FrameSize.Y, FrameSize.X, gocv.MatTypeCV8UC3)
	dark := color.RGBA{SlotValue, SlotValue, SlotValue, 0}
	for _, c := range centers {
		r := image.Rect(c.X-SlotSize.X/2, c.Y-SlotSize.Y/2, c.X+SlotSize.X/2, c.Y+SlotSize.Y/2)
		gocv.Rectangle(&m, r, dark, -1)
	}
	return m
}

// CartonFrame returns SlotFrame(CartonCorners).
func CartonFrame(t testing.TB) gocv.Mat {
	return SlotFrame(t, CartonCorners)
}

// BlankFrame returns a uniform frame with no slots.
func BlankFrame(t testing.TB) gocv.Mat {
	return SlotFrame(t, nil)
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}
