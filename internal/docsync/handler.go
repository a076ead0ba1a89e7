// ABOUTME: Sync handler owning authenticated sockets after the WebSocket gate
// ABOUTME: Joins documents the user may access, persists changes, relays them to other members

package docsync

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/2389/homie/internal/auth"
	"github.com/2389/homie/internal/docs"
	"github.com/2389/homie/internal/store"
)

// Error messages sent in error frames.
const (
	msgBadFrame     = "malformed frame"
	msgUnknownType  = "unknown frame type"
	msgDocRequired  = "docId is required"
	msgDataRequired = "data is required"
	msgAccessDenied = "access denied"
	msgNotJoined    = "not joined"
	msgJoined       = "already joined"
	msgInternal     = "internal error"
)

// Documents is the document repo the handler reads and writes.
type Documents interface {
	Find(ctx context.Context, id string) (*store.Document, error)
	Changes(ctx context.Context, docID string, afterSeq int64, limit int) ([]*store.Change, error)
	Change(ctx context.Context, docID, actorID string, payload []byte, originSubID string) (*store.Change, error)
	Subscribe(ctx context.Context, docID string) (<-chan *store.Change, string)
	Unsubscribe(docID, subID string)
}

// Authorizer decides whether a user may read and write an inventory document.
type Authorizer interface {
	CanAccess(ctx context.Context, inventoryID, userID string) (bool, error)
}

// Options tunes socket behaviour.
type Options struct {
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64
}

// Handler serves sync sockets.
type Handler struct {
	docs   Documents
	access Authorizer
	opts   Options
	logger *slog.Logger
}

var _ auth.SyncHandler = (*Handler)(nil)

// NewHandler creates a sync handler.
func NewHandler(d Documents, a Authorizer, opts Options) *Handler {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 1 << 20
	}
	return &Handler{
		docs:   d,
		access: a,
		opts:   opts,
		logger: slog.Default().With("component", "docsync"),
	}
}

// ServeConn runs the socket until the client goes away or ctx is cancelled.
func (h *Handler) ServeConn(ctx context.Context, ws *websocket.Conn, p *auth.Principal) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ws.SetReadLimit(h.opts.MaxMessageBytes)

	c := &conn{
		h:         h,
		ws:        ws,
		principal: p,
		logger:    h.logger.With("user_id", p.UserID()),
		subs:      make(map[string]*subscription),
	}
	defer c.leaveAll()

	go c.heartbeat(ctx, cancel)

	err := c.readLoop(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		_ = ws.Close(websocket.StatusNormalClosure, "")
	case isClientClose(err):
		// Client initiated the close; nothing left to do.
	default:
		c.logger.Debug("sync socket closed", "error", err)
		ws.CloseNow()
	}
}

type subscription struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// conn is the per-socket state.
type conn struct {
	h         *Handler
	ws        *websocket.Conn
	principal *auth.Principal
	logger    *slog.Logger

	mu   sync.Mutex
	subs map[string]*subscription
}

func (c *conn) readLoop(ctx context.Context) error {
	for {
		var in Inbound
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &in); err != nil {
			c.send(ctx, errorFrame("", msgBadFrame))
			continue
		}

		switch in.Type {
		case TypeJoin:
			c.join(ctx, in)
		case TypeLeave:
			c.leave(ctx, in)
		case TypeChange:
			c.change(ctx, in)
		default:
			c.send(ctx, errorFrame(in.DocID, msgUnknownType))
		}
	}
}

func (c *conn) join(ctx context.Context, in Inbound) {
	if in.DocID == "" {
		c.send(ctx, errorFrame("", msgDocRequired))
		return
	}
	if c.subscribed(in.DocID) != nil {
		c.send(ctx, errorFrame(in.DocID, msgJoined))
		return
	}
	if !c.authorized(ctx, in.DocID) {
		return
	}

	subCtx, cancel := context.WithCancel(ctx)
	ch, subID := c.h.docs.Subscribe(subCtx, in.DocID)
	sub := &subscription{id: subID, cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	c.subs[in.DocID] = sub
	c.mu.Unlock()

	go c.follow(subCtx, sub, in.DocID, in.Since, ch)
}

// follow sends the joined frame and backlog, then relays live changes. It
// subscribes before reading history so nothing falls between the two, and
// drops live changes the backlog already covered.
func (c *conn) follow(ctx context.Context, sub *subscription, docID string, since int64, ch <-chan *store.Change) {
	defer close(sub.done)

	doc, err := c.h.docs.Find(ctx, docID)
	if err != nil {
		c.abandon(ctx, sub, docID, "finding document", err)
		return
	}
	if !c.send(ctx, joinedFrame(docID, doc.HeadSeq)) {
		return
	}

	// A client ahead of the server (or with a bogus cursor) starts over
	// from what the server has.
	if since < 0 || since > doc.HeadSeq {
		since = 0
	}
	last := since
	backlog, err := c.h.docs.Changes(ctx, docID, since, 0)
	if err != nil {
		c.abandon(ctx, sub, docID, "loading backlog", err)
		return
	}
	if len(backlog) > 0 {
		if !c.send(ctx, changesFrame(docID, backlog)) {
			return
		}
		last = backlog[len(backlog)-1].Seq
	}

	for change := range ch {
		if change.Seq <= last {
			continue
		}
		if !c.send(ctx, liveFrame(change)) {
			return
		}
		last = change.Seq
	}
}

func (c *conn) leave(ctx context.Context, in Inbound) {
	sub := c.subscribed(in.DocID)
	if sub == nil {
		c.send(ctx, errorFrame(in.DocID, msgNotJoined))
		return
	}
	c.unsubscribe(in.DocID, sub)
	c.send(ctx, Outbound{Type: TypeLeft, DocID: in.DocID})
}

func (c *conn) change(ctx context.Context, in Inbound) {
	sub := c.subscribed(in.DocID)
	if sub == nil {
		c.send(ctx, errorFrame(in.DocID, msgNotJoined))
		return
	}
	if len(in.Data) == 0 || string(in.Data) == "null" {
		c.send(ctx, errorFrame(in.DocID, msgDataRequired))
		return
	}
	// Membership can be revoked while the socket is open.
	if !c.authorized(ctx, in.DocID) {
		c.unsubscribe(in.DocID, sub)
		return
	}

	change, err := c.h.docs.Change(ctx, in.DocID, c.principal.UserID(), in.Data, sub.id)
	if err != nil {
		c.fail(ctx, in.DocID, "appending change", err)
		return
	}
	c.send(ctx, Outbound{Type: TypeAck, DocID: in.DocID, Seq: change.Seq})
}

// authorized reports whether the user may use docID, sending an error frame
// when not.
func (c *conn) authorized(ctx context.Context, docID string) bool {
	ok, err := c.h.access.CanAccess(ctx, docID, c.principal.UserID())
	if err != nil {
		c.fail(ctx, docID, "checking access", err)
		return false
	}
	if !ok {
		c.logger.Info("sync access denied", "doc_id", docID)
		c.send(ctx, errorFrame(docID, msgAccessDenied))
		return false
	}
	return true
}

func (c *conn) subscribed(docID string) *subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[docID]
}

func (c *conn) unsubscribe(docID string, sub *subscription) {
	c.mu.Lock()
	if c.subs[docID] == sub {
		delete(c.subs, docID)
	}
	c.mu.Unlock()

	sub.cancel()
	c.h.docs.Unsubscribe(docID, sub.id)
	<-sub.done
}

// abandon drops a subscription whose join could not complete, then reports
// the error. It runs on the follow goroutine, so it must not wait on done.
func (c *conn) abandon(ctx context.Context, sub *subscription, docID, op string, err error) {
	c.mu.Lock()
	if c.subs[docID] == sub {
		delete(c.subs, docID)
	}
	c.mu.Unlock()

	c.fail(ctx, docID, op, err)
	sub.cancel()
	c.h.docs.Unsubscribe(docID, sub.id)
}

func (c *conn) leaveAll() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*subscription)
	c.mu.Unlock()

	for docID, sub := range subs {
		sub.cancel()
		c.h.docs.Unsubscribe(docID, sub.id)
		<-sub.done
	}
}

// heartbeat pings the client and cancels the connection when a pong does
// not arrive in time.
func (c *conn) heartbeat(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(c.h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, stop := context.WithTimeout(ctx, c.h.opts.WriteTimeout)
			err := c.ws.Ping(pingCtx)
			stop()
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Info("sync client stopped answering pings", "error", err)
				}
				cancel()
				return
			}
		}
	}
}

// send writes a frame, reporting whether it went out.
func (c *conn) send(ctx context.Context, frame Outbound) bool {
	writeCtx, cancel := context.WithTimeout(ctx, c.h.opts.WriteTimeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, c.ws, frame); err != nil {
		if ctx.Err() == nil {
			c.logger.Debug("sync write failed", "type", frame.Type, "error", err)
		}
		return false
	}
	return true
}

func (c *conn) fail(ctx context.Context, docID, op string, err error) {
	if ctx.Err() != nil {
		return
	}
	if errors.Is(err, docs.ErrNotFound) {
		c.send(ctx, errorFrame(docID, msgAccessDenied))
		return
	}
	c.logger.Error("sync operation failed", "op", op, "doc_id", docID, "error", err)
	c.send(ctx, errorFrame(docID, msgInternal))
}

func isClientClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
