package probe

import (
	"encoding/json"
	"sync"
	"time"
)

// Stage names recorded in Context.Stage.
const (
	StagePending = "add context for a timeout"
	StageWrite   = "write"
	StageVerify  = "verify"
)

// Target describes the store a prober talks to. It is read-only diagnostic
// data; secrets are never part of it.
type Target struct {
	Mode         string   `json:"mode,omitempty"`
	Addr         string   `json:"addr,omitempty"`
	DB           int      `json:"db,omitempty"`
	ClusterNodes []string `json:"cluster_nodes,omitempty"`
}

// Describer is implemented by clients able to describe their target.
type Describer interface {
	Describe() Target
}

// Context is the diagnostic record of one health check invocation.
// In JSON the timeout is written in milliseconds.
type Context struct {
	Stage   string        `json:"stage"`
	Token   string        `json:"unique_token"`
	Timeout time.Duration `json:"-"`
	Target  Target        `json:"target"`
	Reply   []any         `json:"reply,omitempty"`
}

type contextJSON struct {
	Stage         string `json:"stage"`
	Token         string `json:"unique_token"`
	TimeoutMillis int64  `json:"timeout"`
	Target        Target `json:"target"`
	Reply         []any  `json:"reply,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (c Context) MarshalJSON() ([]byte, error) {
	return json.Marshal(contextJSON{
		Stage:         c.Stage,
		Token:         c.Token,
		TimeoutMillis: c.Timeout.Milliseconds(),
		Target:        c.Target,
		Reply:         c.Reply,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Context) UnmarshalJSON(data []byte) error {
	var raw contextJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Context{
		Stage:   raw.Stage,
		Token:   raw.Token,
		Timeout: time.Duration(raw.TimeoutMillis) * time.Millisecond,
		Target:  raw.Target,
		Reply:   raw.Reply,
	}
	return nil
}

// state guards the Context of an in-flight invocation: the probe goroutine
// writes it while the deadline path may snapshot it.
type state struct {
	mu  sync.Mutex
	ctx Context
}

func newState(ctx Context) *state {
	return &state{ctx: ctx}
}

func (s *state) setStage(stage string) {
	s.mu.Lock()
	s.ctx.Stage = stage
	s.mu.Unlock()
}

func (s *state) setReply(reply []any) {
	s.mu.Lock()
	s.ctx.Reply = append([]any(nil), reply...)
	s.mu.Unlock()
}

func (s *state) snapshot() Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.ctx
	out.Reply = append([]any(nil), s.ctx.Reply...)
	out.Target.ClusterNodes = append([]string(nil), s.ctx.Target.ClusterNodes...)
	return out
}

func (s *state) fail(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: s.snapshot(),
		Cause:   cause,
	}
}
