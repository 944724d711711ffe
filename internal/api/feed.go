package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/cartonguide/internal/framebuf"
	"github.com/banshee-data/cartonguide/internal/httputil"
)

// feedBoundary separates JPEG parts in the MJPEG stream.
const feedBoundary = "frame"

// streamFeed serves annotated frames as multipart/x-mixed-replace. It sends
// the current frame, then each newer one as it is stored, until the client
// disconnects. Frames stored faster than the client reads are skipped.
func (s *Server) streamFeed(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+feedBoundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var seq uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.frames.Changed(seq):
		}
		frame, next, ok := s.frames.TryRead()
		if !ok {
			continue
		}
		seq = next
		if err := writePart(w, frame); err != nil {
			return
		}
		flusher.Flush()
	}
}

func writePart(w http.ResponseWriter, frame framebuf.Frame) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\nX-Cycle-Id: %s\r\n\r\n",
		feedBoundary, len(frame.JPEG), frame.CycleID); err != nil {
		return err
	}
	if _, err := w.Write(frame.JPEG); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}

// latestFrame serves the most recent annotated frame as a single JPEG.
func (s *Server) latestFrame(w http.ResponseWriter, r *http.Request) {
	frame, _, ok := s.frames.TryRead()
	if !ok {
		httputil.WriteError(w, http.StatusServiceUnavailable, "no frame yet")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame.JPEG)))
	w.Header().Set("X-Cycle-Id", frame.CycleID)
	w.Write(frame.JPEG)
}
