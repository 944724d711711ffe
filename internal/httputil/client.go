// Package httputil holds the HTTP plumbing shared by the robot link and the
// API: a request-sender interface, a scripted sender for tests and JSON
// response helpers.
package httputil

import (
	"io"
	"net/http"
	"strings"
	"sync"
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Reply is one scripted outcome for ScriptedClient: a status and body, or a
// transport error.
type Reply struct {
	Status int
	Body   string
	Err    error
}

// ScriptedClient is a Doer that answers requests from a queue of replies and
// records every request it sees. Once the queue is drained it answers 200
// with an empty body.
type ScriptedClient struct {
	mu       sync.Mutex
	replies  []Reply
	requests []*http.Request
}

// NewScriptedClient returns a client that answers with replies in order.
func NewScriptedClient(replies ...Reply) *ScriptedClient {
	return &ScriptedClient{replies: replies}
}

// Then queues more replies.
func (c *ScriptedClient) Then(replies ...Reply) *ScriptedClient {
	c.mu.Lock()
	c.replies = append(c.replies, replies...)
	c.mu.Unlock()
	return c
}

// Do records req and returns the next scripted reply. A cancelled request
// context wins over the script, as with a real transport.
func (c *ScriptedClient) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)

	if err := req.Context().Err(); err != nil {
		return nil, err
	}

	r := Reply{Status: http.StatusOK}
	if len(c.replies) > 0 {
		r, c.replies = c.replies[0], c.replies[1:]
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return &http.Response{
		StatusCode: r.Status,
		Body:       io.NopCloser(strings.NewReader(r.Body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// Requests returns every request seen so far.
func (c *ScriptedClient) Requests() []*http.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*http.Request(nil), c.requests...)
}
