package testutil

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlotFrame_DrawsSlots(t *testing.T) {
	m := CartonFrame(t)
	defer m.Close()

	assert.Equal(t, FrameSize.X, m.Cols())
	assert.Equal(t, FrameSize.Y, m.Rows())
	assert.Equal(t, 3, m.Channels())

	c := CartonCorners[0]
	assert.Equal(t, uint8(SlotValue), m.GetVecbAt(c.Y, c.X)[0])
	assert.Equal(t, uint8(Background), m.GetVecbAt(c.Y, c.X+SlotSize.X)[0])
}

func TestBlankFrame_Uniform(t *testing.T) {
	m := BlankFrame(t)
	defer m.Close()
	for _, c := range CartonCorners {
		assert.Equal(t, uint8(Background), m.GetVecbAt(c.Y, c.X)[1])
	}
}

func TestAssertStatusCode_Matching(t *testing.T) {
	fakeT := &testing.T{}
	AssertStatusCode(fakeT, http.StatusOK, http.StatusOK)
	assert.False(t, fakeT.Failed())
}

func TestNewTestRequest_MethodAndPath(t *testing.T) {
	req := NewTestRequest(http.MethodGet, "/api/status")
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/api/status", req.URL.Path)
}
