package conversation

import (
	"context"
	"sync"

	"github.com/Goofygiraffe06/blaze/internal/controller"
	"github.com/Goofygiraffe06/blaze/internal/logging"
	"github.com/Goofygiraffe06/blaze/internal/models"
)

// Conversation is the per-connection flow registry. It owns the connection's
// listeners and one session per flow.
type Conversation struct {
	id        string
	ctx       context.Context
	engine    *Engine
	emit      Emitter
	listeners *controller.Listeners
	starts    map[string]Flow

	mu       sync.Mutex
	sessions map[Flow]*Session
	wg       sync.WaitGroup
}

// NewConversation arms every flow's start event. Handlers run under ctx,
// which should end when the connection closes.
func (e *Engine) NewConversation(ctx context.Context, id string, emit Emitter) *Conversation {
	c := &Conversation{
		id:        id,
		ctx:       ctx,
		engine:    e,
		emit:      emit,
		listeners: controller.NewListeners(id),
		starts:    e.StartEvents(),
		sessions:  make(map[Flow]*Session),
	}
	for event, flow := range c.starts {
		c.listeners.Arm(event, string(flow))
	}
	return c
}

// Dispatch routes one inbound frame. It reports false when no listener is
// armed for event, in which case the frame has no effect.
// The listener is disarmed before Dispatch returns. The handler runs on its
// own goroutine and arms the next step just before emitting the frame that
// asks for it.
func (c *Conversation) Dispatch(event string, in models.InboundPayload) bool {
	owner, ok := c.listeners.Take(event)
	if !ok {
		c.engine.metrics.Dropped()
		return false
	}
	flow := Flow(owner)

	var sess *Session
	if start, isStart := c.starts[event]; isStart && start == flow {
		sess = NewSession(flow)
		c.mu.Lock()
		c.sessions[flow] = sess
		c.mu.Unlock()
	} else if sess = c.Session(flow); sess == nil {
		logging.WarnLog("Conversation [%s]: %s armed without a %s session", c.id, event, flow)
		return false
	}

	emit := flowEmitter{conv: c, flow: flow}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		var next string
		if sess.CurrentStep() == "" && !sess.Done() {
			next = c.engine.Start(c.ctx, sess, emit)
		} else {
			next = c.engine.Handle(c.ctx, sess, event, in, emit)
		}
		if next == "" {
			c.listeners.DisarmFlow(string(flow))
		}
	}()
	return true
}

// flowEmitter forwards one flow's frames and arms the steps they name.
type flowEmitter struct {
	conv *Conversation
	flow Flow
}

func (f flowEmitter) Emit(ctx context.Context, frame models.Outbound) error {
	return f.conv.emit.Emit(ctx, frame)
}

func (f flowEmitter) Arm(step string) {
	if f.conv.ctx.Err() != nil {
		return
	}
	f.conv.listeners.Arm(step, string(f.flow))
}

// Session returns the latest session for flow, or nil.
func (c *Conversation) Session(flow Flow) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[flow]
}

// Armed reports whether event currently has a listener.
func (c *Conversation) Armed(event string) bool {
	return c.listeners.Armed(event)
}

// Wait blocks until every in-flight handler has returned.
func (c *Conversation) Wait() {
	c.wg.Wait()
}
