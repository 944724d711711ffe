package api

import (
	"io"
	"log"
	"testing"
)

func withLogOutput(t *testing.T, w io.Writer, fn func()) {
	t.Helper()
	prev := log.Writer()
	log.SetOutput(w)
	defer log.SetOutput(prev)
	fn()
}
