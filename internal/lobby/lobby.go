package lobby

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/DoyleJ11/quiz-battle-backend/internal/bus"
	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
	"github.com/DoyleJ11/quiz-battle-backend/internal/repository"
	"github.com/DoyleJ11/quiz-battle-backend/internal/store"
	"github.com/DoyleJ11/quiz-battle-backend/internal/types"
	apperr "github.com/DoyleJ11/quiz-battle-backend/pkg/errors"
	"github.com/DoyleJ11/quiz-battle-backend/pkg/logger"
)

var ErrClosed = apperr.New(apperr.ErrCodeRoomUnavailable, "room worker stopped, try again")

type Msg interface{ isLobbyMsg() }

// FromClient runs one engine command against the room.
type FromClient struct {
	Cmd   engine.Command
	Reply chan Result // buffered; may be nil
}

func (FromClient) isLobbyMsg() {}

// StartNext dispatches the next question from the bank.
type StartNext struct {
	Reply chan Result
}

func (StartNext) isLobbyMsg() {}

// LockQuestion closes the question of the given round. The lobby sends it
// to itself when the answer window ends.
type LockQuestion struct{ Round int }

func (LockQuestion) isLobbyMsg() {}

type Join struct {
	ClientID string
	Outbox   chan []byte // where this client wants to receive events
}

func (Join) isLobbyMsg() {}

type Leave struct{ ClientID string }

func (Leave) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type Result struct {
	Room   engine.Room
	Events []engine.Event
	Err    error
}

type View struct {
	Version    uint64
	NumClients int
	Round      int // round the lock timer is armed for, 0 if none
}

// Deps is everything a lobby needs from the process.
type Deps struct {
	Rooms       *repository.Rooms
	Bank        *repository.Bank
	Bus         bus.Bus
	Rules       engine.Rules
	Now         func() time.Time
	IdleTimeout time.Duration
}

type Lobby struct {
	roomID  string
	deps    Deps
	inbox   chan Msg
	version uint64
	clients map[string]chan []byte
	sub     bus.Subscription

	lockTimer *time.Timer
	lockRound int

	lastActive time.Time
	onIdle     func(*Lobby)

	// mu guards closed. Send holds it shared while enqueueing so the
	// final drain in shutdown sees every message that got in.
	mu       sync.RWMutex
	closed   bool
	stopping chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLobby starts the worker for roomID. onIdle, if set, is called from
// the worker goroutine right before an idle lobby stops.
func NewLobby(parent context.Context, roomID string, deps Deps, onIdle func(*Lobby)) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	if deps.Now == nil {
		deps.Now = time.Now
	}

	l := &Lobby{
		roomID:     roomID,
		deps:       deps,
		inbox:      make(chan Msg, 64), // Small buffer
		clients:    make(map[string]chan []byte),
		lastActive: time.Now(),
		onIdle:     onIdle,
		ctx:        ctx,
		cancel:     cancel,
		stopping:   make(chan struct{}),
		done:       make(chan struct{}),
	}

	go l.loop()
	return l
}

func (l *Lobby) RoomID() string { return l.roomID }

// Expose the inbox so tests or WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Done is closed once the worker has stopped.
func (l *Lobby) Done() <-chan struct{} { return l.done }

// Send delivers m unless the lobby has stopped or ctx ends first. A
// message accepted while the lobby is stopping is answered by the drain:
// replies get ErrClosed and a Join's outbox is closed.
func (l *Lobby) Send(ctx context.Context, m Msg) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	select {
	case l.inbox <- m:
		return nil
	case <-l.stopping:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs cmd and waits for the result.
func (l *Lobby) Do(ctx context.Context, cmd engine.Command) Result {
	reply := make(chan Result, 1)
	if err := l.Send(ctx, FromClient{Cmd: cmd, Reply: reply}); err != nil {
		return Result{Err: err}
	}
	return l.await(ctx, reply)
}

// Next dispatches the next question and waits for the result.
func (l *Lobby) Next(ctx context.Context) Result {
	reply := make(chan Result, 1)
	if err := l.Send(ctx, StartNext{Reply: reply}); err != nil {
		return Result{Err: err}
	}
	return l.await(ctx, reply)
}

func (l *Lobby) await(ctx context.Context, reply <-chan Result) Result {
	select {
	case res := <-reply:
		return res
	case <-l.done:
		// The worker may have answered right before stopping.
		select {
		case res := <-reply:
			return res
		default:
			return Result{Err: ErrClosed}
		}
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
}

func (l *Lobby) loop() {
	defer close(l.done)

	sub, err := l.deps.Bus.Subscribe(l.ctx, l.roomID)
	if err != nil {
		logger.Error("room event subscription failed", "roomId", l.roomID, "error", err)
	} else {
		l.sub = sub
	}
	l.resumeLockTimer()

	idle := newIdleTicker(l.deps.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case payload, ok := <-l.events():
			if !ok {
				logger.Warn("room event subscription closed", "roomId", l.roomID)
				l.sub = nil
				break
			}
			l.broadcast(payload)

		case <-idle.C:
			if len(l.clients) == 0 && time.Since(l.lastActive) >= l.deps.IdleTimeout {
				logger.Debug("stopping idle room worker", "roomId", l.roomID)
				if l.onIdle != nil {
					l.onIdle(l)
				}
				l.shutdown()
				return
			}

		case m := <-l.inbox:
			l.lastActive = time.Now()
			switch msg := m.(type) {
			case Join:
				// Register client + send current snapshot immediately
				l.clients[msg.ClientID] = msg.Outbox
				l.sendSnapshot(msg.ClientID, msg.Outbox)

			case Leave:
				delete(l.clients, msg.ClientID)

			case FromClient:
				res := l.execute(msg.Cmd)
				reply(msg.Reply, res)

			case StartNext:
				reply(msg.Reply, l.startNext())

			case LockQuestion:
				res := l.execute(engine.Command{Type: engine.CmdLockQuestion, Round: msg.Round})
				if res.Err != nil && !errors.Is(res.Err, engine.ErrNoActiveQuestion) {
					logger.Warn("failed to lock question", "roomId", l.roomID, "round", msg.Round, "error", res.Err)
				}

			case GetState:
				// test-only: reflect internal state without data races
				msg.Reply <- View{
					Version:    l.version,
					NumClients: len(l.clients),
					Round:      l.lockRound,
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func reply(ch chan Result, res Result) {
	if ch == nil {
		return
	}
	select {
	case ch <- res:
	default:
	}
}

// events returns the subscription channel, or nil (blocks forever) when
// there is none.
func (l *Lobby) events() <-chan []byte {
	if l.sub == nil {
		return nil
	}
	return l.sub.C()
}

// execute runs load, apply, save for one command. A version conflict
// means another process wrote the room in between; the whole cycle is
// re-run once against the fresh record.
func (l *Lobby) execute(cmd engine.Command) Result {
	if cmd.At.IsZero() {
		cmd.At = l.deps.Now()
	}

	for attempt := 1; ; attempt++ {
		room, version, err := l.deps.Rooms.Load(l.ctx, l.roomID)
		if err != nil {
			return Result{Err: err}
		}
		l.version = version

		events, next, err := engine.Apply(room, cmd, l.deps.Rules)
		if err != nil {
			return Result{Room: room, Err: err}
		}
		if len(events) == 0 {
			return Result{Room: room}
		}

		v, err := l.deps.Rooms.Save(l.ctx, next, version)
		if errors.Is(err, store.ErrVersionConflict) && attempt == 1 {
			logger.Debug("room changed concurrently, retrying", "roomId", l.roomID, "command", cmd.Type)
			continue
		}
		if err != nil {
			return Result{Room: room, Err: err}
		}
		l.version = v
		l.publish(events)
		return Result{Room: next, Events: events}
	}
}

func (l *Lobby) startNext() Result {
	idx, err := l.deps.Rooms.QuestionIndex(l.ctx, l.roomID)
	if err != nil {
		return Result{Err: err}
	}
	q, next := repository.Pick(l.deps.Bank.Questions(l.ctx), idx)

	res := l.execute(engine.Command{Type: engine.CmdStartQuestion, Question: q})
	if res.Err != nil {
		return res
	}
	if err := l.deps.Rooms.SetQuestionIndex(l.ctx, l.roomID, next); err != nil {
		logger.Warn("failed to advance question index", "roomId", l.roomID, "error", err)
	}
	l.armLockTimer(res.Room.Question)
	return res
}

// armLockTimer schedules the lock for the current round. Any earlier
// timer is stopped; a late fire for an old round is ignored by the engine.
func (l *Lobby) armLockTimer(q *engine.ActiveQuestion) {
	if l.lockTimer != nil {
		l.lockTimer.Stop()
		l.lockTimer = nil
	}
	if q == nil || q.IsLocked {
		l.lockRound = 0
		return
	}

	deadline := q.StartedAt.Add(time.Duration(q.TimeLimitMs)*time.Millisecond + l.deps.Rules.AnswerGrace)
	wait := max(deadline.Sub(l.deps.Now()), 0)
	round := q.Round
	l.lockRound = round
	l.lockTimer = time.AfterFunc(wait, func() {
		select {
		case l.inbox <- LockQuestion{Round: round}:
		case <-l.done:
		}
	})
}

// resumeLockTimer re-arms the lock for a question that was left open,
// e.g. after the previous worker for this room went idle.
func (l *Lobby) resumeLockTimer() {
	room, _, err := l.deps.Rooms.Load(l.ctx, l.roomID)
	if err != nil {
		if !errors.Is(err, repository.ErrRoomNotFound) {
			logger.Warn("could not load room on start", "roomId", l.roomID, "error", err)
		}
		return
	}
	l.armLockTimer(room.Question)
}

func (l *Lobby) publish(events []engine.Event) {
	for _, e := range events {
		payload, err := types.EncodeEvent(e)
		if err != nil {
			logger.Error("failed to encode event", "roomId", l.roomID, "type", e.Type, "error", err)
			continue
		}
		bus.PublishBestEffort(l.ctx, l.deps.Bus, l.roomID, payload)
	}
}

func (l *Lobby) sendSnapshot(clientID string, out chan []byte) {
	room, _, err := l.deps.Rooms.Load(l.ctx, l.roomID)
	if err != nil {
		l.deliver(clientID, out, types.EncodeError(apperr.CodeOf(err), "room unavailable"))
		return
	}
	payload, err := types.EncodeSnapshot(room.View())
	if err != nil {
		logger.Error("failed to encode snapshot", "roomId", l.roomID, "error", err)
		return
	}
	l.deliver(clientID, out, payload)
}

func (l *Lobby) deliver(id string, ch chan []byte, payload []byte) {
	select {
	case ch <- payload:
		//ok
	default:
		// Client is slow/full - drop them.
		close(ch)
		delete(l.clients, id)
	}
}

func (l *Lobby) broadcast(payload []byte) {
	for id, ch := range l.clients {
		l.deliver(id, ch, payload)
	}
}

func (l *Lobby) shutdown() {
	close(l.stopping)
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.drain()

	if l.lockTimer != nil {
		l.lockTimer.Stop()
	}
	if l.sub != nil {
		if err := l.sub.Close(); err != nil {
			logger.Warn("failed to close room subscription", "roomId", l.roomID, "error", err)
		}
	}
	for id, ch := range l.clients {
		close(ch) // Tell client no more events
		delete(l.clients, id)
	}
	l.cancel()
}

// drain rejects whatever is still queued once no new message can get in.
func (l *Lobby) drain() {
	for {
		select {
		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				close(msg.Outbox)
			case FromClient:
				reply(msg.Reply, Result{Err: ErrClosed})
			case StartNext:
				reply(msg.Reply, Result{Err: ErrClosed})
			}
		default:
			return
		}
	}
}

// newIdleTicker checks for idleness a few times per timeout. A zero
// timeout disables reaping.
func newIdleTicker(timeout time.Duration) *time.Ticker {
	if timeout <= 0 {
		t := time.NewTicker(time.Hour)
		t.Stop()
		return t
	}
	return time.NewTicker(max(timeout/4, 10*time.Millisecond))
}
