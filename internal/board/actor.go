package board

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/corkboardapp/corkboard/internal/boardstore"
	"github.com/corkboardapp/corkboard/internal/config"
	"github.com/corkboardapp/corkboard/internal/generate"
	"github.com/corkboardapp/corkboard/internal/notify"
	"github.com/corkboardapp/corkboard/internal/protocol"
	"github.com/corkboardapp/corkboard/internal/ratelimit"
	"github.com/corkboardapp/corkboard/internal/workflow"
	"github.com/robfig/cron/v3"
)

// Generator runs a background generation task through the fallback chain.
type Generator interface {
	Execute(ctx context.Context, payload string) (*generate.Result, error)
}

// Config wires an actor's collaborators.
type Config struct {
	BoardID   string
	Store     *boardstore.Store
	Generator Generator
	Notifier  notify.Notifier
	Limiter   *ratelimit.Bucket
	Batch     config.BatchConfig
	Sched     config.SchedulerConfig
}

// Actor is the single coordinator of one board. All writes to the
// canonical store pass through its critical section; suspended I/O never
// lets a second write interleave with an in-flight one.
type Actor struct {
	boardID  string
	store    *boardstore.Store
	sessions *SessionRegistry
	batcher  *WriteBatcher
	matcher  *workflow.Matcher
	gen      Generator
	notifier notify.Notifier
	limiter  *ratelimit.Bucket

	upgrader websocket.Upgrader

	mu          sync.Mutex // single-writer critical section
	writeCount  int
	windowStart time.Time
	lastFlush   time.Time
	flushArmed  bool

	batchThreshold int
	batchWindow    time.Duration
	flushDelay     time.Duration

	// scheduler state, see scheduler.go
	alarm         *Alarm
	cronParser    cron.Parser
	briefingSched cron.Schedule
	briefingNext  time.Time
	pollInterval  time.Duration
	retryDelay    time.Duration
	successCycle  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an actor for one board. Zero batch/scheduler settings fall
// back to the defaults (threshold 50, window 1000 ms, flush 50 ms).
func New(cfg Config) *Actor {
	if cfg.Batch.Threshold == 0 {
		cfg.Batch.Threshold = 50
	}
	if cfg.Batch.WindowMs == 0 {
		cfg.Batch.WindowMs = 1000
	}
	if cfg.Batch.FlushMs == 0 {
		cfg.Batch.FlushMs = 50
	}
	if cfg.Sched.PollSecs == 0 {
		cfg.Sched.PollSecs = 60
	}
	if cfg.Sched.RetryMins == 0 {
		cfg.Sched.RetryMins = 5
	}
	if cfg.Sched.SuccessCycleMins == 0 {
		cfg.Sched.SuccessCycleMins = 60
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.NoopNotifier{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &Actor{
		boardID:  cfg.BoardID,
		store:    cfg.Store,
		sessions: NewSessionRegistry(),
		batcher:  NewWriteBatcher(),
		gen:      cfg.Generator,
		notifier: cfg.Notifier,
		limiter:  cfg.Limiter,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		windowStart:    time.Now(),
		batchThreshold: cfg.Batch.Threshold,
		batchWindow:    time.Duration(cfg.Batch.WindowMs) * time.Millisecond,
		flushDelay:     time.Duration(cfg.Batch.FlushMs) * time.Millisecond,
		cronParser:     cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		pollInterval:   time.Duration(cfg.Sched.PollSecs) * time.Second,
		retryDelay:     time.Duration(cfg.Sched.RetryMins) * time.Minute,
		successCycle:   time.Duration(cfg.Sched.SuccessCycleMins) * time.Minute,
		ctx:            ctx,
		cancel:         cancel,
	}

	a.matcher = workflow.NewMatcher(cfg.Store, a.EnqueueTask)
	a.alarm = NewAlarm(a.onAlarm)

	if cfg.Sched.BriefingCron != "" {
		sched, err := a.cronParser.Parse(cfg.Sched.BriefingCron)
		if err != nil {
			log.Printf("board %s: invalid briefing cron %q: %v", cfg.BoardID, cfg.Sched.BriefingCron, err)
		} else {
			a.briefingSched = sched
			a.briefingNext = sched.Next(time.Now())
		}
	}

	return a
}

// BoardID returns the board this actor coordinates.
func (a *Actor) BoardID() string {
	return a.boardID
}

// Store returns the actor's canonical store.
func (a *Actor) Store() *boardstore.Store {
	return a.store
}

// Sessions returns the actor's session registry.
func (a *Actor) Sessions() *SessionRegistry {
	return a.sessions
}

// Close stops the scheduler and closes the store.
func (a *Actor) Close() error {
	a.cancel()
	a.alarm.Stop()
	return a.store.Close()
}

// State returns the full board snapshot.
func (a *Actor) State() ([]protocol.List, []protocol.Card, error) {
	return a.store.Snapshot()
}

// Apply serializes a write against the canonical store. Under burst load
// the write is deferred into the batcher instead; the second return is
// true when that happened and no result is available yet.
func (a *Actor) Apply(sqlText string, params []any, originID string) (protocol.ExecResult, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	// The rolling counter resets on the first write after the window
	// elapses, not exactly at the edge.
	if now.Sub(a.windowStart) >= a.batchWindow {
		a.writeCount = 0
		a.windowStart = now
	}
	a.writeCount++

	if a.writeCount > a.batchThreshold {
		a.batcher.Append(QueuedWrite{SQL: sqlText, Params: params, OriginID: originID})
		if !a.flushArmed {
			a.flushArmed = true
			time.AfterFunc(a.flushDelay, a.flushBatch)
		}
		return protocol.ExecResult{}, true, nil
	}

	res, err := a.store.Exec(sqlText, params)
	if err != nil {
		return protocol.ExecResult{}, false, err
	}
	return res, false, nil
}

// ApplyExternal serializes a write arriving outside any WebSocket
// session (the REST surface). With no origin session to exclude, the
// result is broadcast to every connected session.
func (a *Actor) ApplyExternal(sqlText string, params []any) (protocol.ExecResult, bool, error) {
	res, queued, err := a.Apply(sqlText, params, "")
	if err != nil || queued {
		return res, queued, err
	}
	a.sessions.Broadcast(protocol.NewSQLResult(sqlText, params, res), "")
	a.matcher.OnWrite(sqlText, params)
	return res, false, nil
}

// flushBatch executes all queued writes in one transaction. On rollback
// the batch is requeued once; a second failure drops it with an error log.
func (a *Actor) flushBatch() {
	a.mu.Lock()
	a.flushArmed = false
	writes := a.batcher.Drain()
	if len(writes) == 0 {
		a.mu.Unlock()
		return
	}

	n, err := a.store.ExecBatch(storeWrites(writes))
	a.lastFlush = time.Now()
	if err != nil {
		requeued := 0
		for _, w := range writes {
			if !w.Requeued {
				w.Requeued = true
				a.batcher.Append(w)
				requeued++
			}
		}
		if requeued > 0 && !a.flushArmed {
			a.flushArmed = true
			time.AfterFunc(a.flushDelay, a.flushBatch)
		}
		a.mu.Unlock()
		log.Printf("board %s: batch flush rolled back (%d writes, %d requeued): %v",
			a.boardID, len(writes), requeued, err)
		return
	}
	a.mu.Unlock()

	a.sessions.Broadcast(protocol.NewBatchResult(n), "")
	for _, w := range writes {
		a.matcher.OnWrite(w.SQL, w.Params)
	}
}

// HandleWebSocket handles an incoming client connection.
func (a *Actor) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade failed: %v", err)
		return
	}
	go a.handleSession(conn)
}

func (a *Actor) handleSession(conn *websocket.Conn) {
	sess := &Session{ID: uuid.NewString(), Conn: conn}
	defer func() {
		conn.Close()
		a.sessions.Unregister(sess.ID)
		log.Printf("board %s: session %s disconnected", a.boardID, sess.ID)
	}()

	if err := sess.WriteJSON(protocol.NewClientID(sess.ID)); err != nil {
		return
	}

	// Full snapshot so a reconnecting client resynchronizes without
	// replaying history.
	lists, cards, err := a.State()
	if err != nil {
		log.Printf("board %s: snapshot failed: %v", a.boardID, err)
		return
	}
	if err := sess.WriteJSON(protocol.NewSyncState(lists, cards)); err != nil {
		return
	}

	a.sessions.Register(sess)
	log.Printf("board %s: session %s connected", a.boardID, sess.ID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("board %s: read error: %v", a.boardID, err)
			}
			return
		}

		typ, err := protocol.FrameType(message)
		if err != nil {
			sess.WriteJSON(protocol.NewError("invalid frame: " + err.Error()))
			continue
		}

		switch typ {
		case protocol.TypeExecuteSQL:
			var frame protocol.ExecuteSQLFrame
			if err := json.Unmarshal(message, &frame); err != nil {
				sess.WriteJSON(protocol.NewError("invalid frame: " + err.Error()))
				continue
			}
			a.handleWrite(sess, frame)

		default:
			// Unknown frame types are ignored rather than fatal so older
			// clients keep working.
		}
	}
}

// handleWrite applies one EXECUTE_SQL frame from a session. A malformed
// write errors only the offending session; it never aborts other traffic.
func (a *Actor) handleWrite(sess *Session, frame protocol.ExecuteSQLFrame) {
	if strings.TrimSpace(frame.SQL) == "" {
		sess.WriteJSON(protocol.NewError("sql is required"))
		return
	}

	res, queued, err := a.Apply(frame.SQL, frame.Params, sess.ID)
	if err != nil {
		sess.WriteJSON(protocol.NewError(err.Error()))
		return
	}
	if queued {
		// The result reaches everyone through the batch broadcast.
		return
	}

	a.sessions.Broadcast(protocol.NewSQLResult(frame.SQL, frame.Params, res), sess.ID)
	a.matcher.OnWrite(frame.SQL, frame.Params)
}
