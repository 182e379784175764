// bus.go
package bus

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
)

// -----------------------------------------------------------------------------
// Tokens + Topics
// -----------------------------------------------------------------------------

// Token is a single element in a topic path. Any comparable value works;
// strings and ints are the norm. "+" matches one level and "#" matches the
// remainder (including nothing) when used in a subscription.
type Token = any

const (
	wildOne  = "+"
	wildRest = "#"
)

// Topic is a sequence of tokens.
type Topic []Token

// T builds a topic. It panics on a non-comparable token.
func T(tokens ...Token) Topic {
	for _, tok := range tokens {
		if tok == nil || !reflect.TypeOf(tok).Comparable() {
			panic("bus: topic token must be comparable")
		}
	}
	return Topic(tokens)
}

// Append returns a new topic; t is not modified.
func (t Topic) Append(tokens ...Token) Topic {
	out := make(Topic, 0, len(t)+len(tokens))
	out = append(out, t...)
	return append(out, T(tokens...)...)
}

func (t Topic) Len() int { return len(t) }

// At returns the token at i, or nil when out of range.
func (t Topic) At(i int) Token {
	if i < 0 || i >= len(t) {
		return nil
	}
	return t[i]
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

// CanReply reports whether the sender expects a reply.
func (m *Message) CanReply() bool { return m != nil && len(m.ReplyTo) > 0 }

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection // owning connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// -----------------------------------------------------------------------------
// Trie node
// -----------------------------------------------------------------------------

type node struct {
	children map[Token]*node
	subs     []*Subscription
	retained *Message
}

func (n *node) child(tok Token, create bool) *node {
	if c, ok := n.children[tok]; ok || !create {
		return c
	}
	if n.children == nil {
		n.children = make(map[Token]*node)
	}
	c := &node{}
	n.children[tok] = c
	return c
}

func (n *node) empty() bool {
	return len(n.subs) == 0 && len(n.children) == 0 && n.retained == nil
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

// Bus keeps two tries: subscription patterns and retained messages by
// concrete topic.
type Bus struct {
	mu    sync.RWMutex
	subs  *node
	kept  *node
	qLen  int
	reqID atomic.Uint64
}

// NewBus creates a new bus with the given subscription queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8 // safe default
	}
	return &Bus{
		subs: &node{},
		kept: &node{},
		qLen: queueLen,
	}
}

// NewMessage builds a message; it is not published.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// Publish delivers a message to all matching subscribers and updates the
// retained store. A retained message with a nil payload clears the topic.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Retained {
		b.retain(msg)
	}
	b.deliver(b.subs, msg.Topic, msg)
}

func (b *Bus) retain(msg *Message) {
	if msg.Payload != nil {
		n := b.kept
		for _, tok := range msg.Topic {
			n = n.child(tok, true)
		}
		n.retained = msg
		return
	}
	// Clear and prune.
	path := []*node{b.kept}
	n := b.kept
	for _, tok := range msg.Topic {
		if n = n.child(tok, false); n == nil {
			return
		}
		path = append(path, n)
	}
	n.retained = nil
	for i := len(msg.Topic) - 1; i >= 0; i-- {
		if !path[i+1].empty() {
			break
		}
		delete(path[i].children, msg.Topic[i])
	}
}

// deliver walks the subscription trie, following literal, "+" and "#" edges.
func (b *Bus) deliver(n *node, rest Topic, msg *Message) {
	if h := n.child(wildRest, false); h != nil {
		for _, s := range h.subs {
			push(s.ch, msg)
		}
	}
	if len(rest) == 0 {
		for _, s := range n.subs {
			push(s.ch, msg)
		}
		return
	}
	if c := n.child(rest[0], false); c != nil {
		b.deliver(c, rest[1:], msg)
	}
	if rest[0] != wildOne {
		if c := n.child(wildOne, false); c != nil {
			b.deliver(c, rest[1:], msg)
		}
	}
}

// push never blocks; when the queue is full the oldest message is dropped.
func push(ch chan *Message, msg *Message) {
	select {
	case ch <- msg:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- msg:
	default:
	}
}

// collectRetained appends retained messages whose topic matches pattern.
func collectRetained(n *node, pattern Topic, out []*Message) []*Message {
	if len(pattern) == 0 {
		if n.retained != nil {
			out = append(out, n.retained)
		}
		return out
	}
	switch pattern[0] {
	case wildRest:
		return collectAll(n, out)
	case wildOne:
		for _, c := range n.children {
			out = collectRetained(c, pattern[1:], out)
		}
		return out
	default:
		if c := n.child(pattern[0], false); c != nil {
			out = collectRetained(c, pattern[1:], out)
		}
		return out
	}
}

func collectAll(n *node, out []*Message) []*Message {
	if n.retained != nil {
		out = append(out, n.retained)
	}
	for _, c := range n.children {
		out = collectAll(c, out)
	}
	return out
}

func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.subs
	for _, tok := range sub.topic {
		n = n.child(tok, true)
	}
	n.subs = append(n.subs, sub)

	for _, m := range collectRetained(b.kept, sub.topic, nil) {
		push(sub.ch, m)
	}
}

func (b *Bus) removeSubscription(sub *Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	path := []*node{b.subs}
	n := b.subs
	for _, tok := range sub.topic {
		if n = n.child(tok, false); n == nil {
			return false
		}
		path = append(path, n)
	}
	found := false
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			found = true
			break
		}
	}
	for i := len(sub.topic) - 1; i >= 0; i-- {
		if !path[i+1].empty() {
			break
		}
		delete(path[i].children, sub.topic[i])
	}
	return found
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

// NewConnection creates a new connection bound to this bus.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

// Publish sends a message via the bus.
func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

// Subscribe registers a subscription owned by this connection. Matching
// retained messages are queued immediately.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan *Message, c.bus.qLen),
		conn:  c,
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.bus.addSubscription(sub)
	return sub
}

// Unsubscribe removes a subscription and closes its channel. Safe to call twice.
func (c *Connection) Unsubscribe(sub *Subscription) {
	if !c.bus.removeSubscription(sub) {
		return
	}
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	close(sub.ch)
}

// Disconnect closes all subscriptions.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := append([]*Subscription(nil), c.subs...)
	c.mu.Unlock()
	for _, s := range subs {
		c.Unsubscribe(s)
	}
}

// -----------------------------------------------------------------------------
// Request–Reply
// -----------------------------------------------------------------------------

// Request assigns a private reply topic, subscribes to it, then publishes msg.
// The caller owns the returned subscription.
func (c *Connection) Request(msg *Message) *Subscription {
	msg.ReplyTo = T("_reply", c.id, int(c.bus.reqID.Add(1)))
	sub := c.Subscribe(msg.ReplyTo)
	c.Publish(msg)
	return sub
}

// RequestWait publishes msg and waits for the first reply or ctx expiry.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case m, ok := <-sub.Channel():
		if !ok {
			return nil, context.Canceled
		}
		return m, nil
	}
}

// Reply answers a request; it is a no-op when msg carries no ReplyTo.
func (c *Connection) Reply(msg *Message, payload any, retained bool) {
	if !msg.CanReply() {
		return
	}
	c.Publish(c.NewMessage(msg.ReplyTo, payload, retained))
}
