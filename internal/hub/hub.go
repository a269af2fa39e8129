package hub

import (
	"context"

	"github.com/DoyleJ11/quiz-battle-backend/internal/lobby"
	"github.com/DoyleJ11/quiz-battle-backend/pkg/logger"
)

type HubMsg interface{ isHubMsg() }

type GetLobby struct {
	RoomID string
	Reply  chan *lobby.Lobby
}

// EnsureLobby returns the running lobby for RoomID, starting one if needed.
type EnsureLobby struct {
	RoomID string
	Reply  chan *lobby.Lobby
}

// RemoveLobby forgets Lobby if it is still the one registered for RoomID.
type RemoveLobby struct {
	RoomID string
	Lobby  *lobby.Lobby
}

type CountLobbies struct {
	Reply chan int
}

type ShutdownHub struct {
	Done chan struct{} // closed once every lobby has stopped; may be nil
}

func (GetLobby) isHubMsg()     {}
func (EnsureLobby) isHubMsg()  {}
func (RemoveLobby) isHubMsg()  {}
func (CountLobbies) isHubMsg() {}
func (ShutdownHub) isHubMsg()  {}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	deps    lobby.Deps
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, deps lobby.Deps) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		deps:    deps,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Lobby returns the running lobby for roomID, starting it if needed.
func (h *Hub) Lobby(ctx context.Context, roomID string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	select {
	case h.inbox <- EnsureLobby{RoomID: roomID, Reply: reply}:
	case <-h.ctx.Done():
		return nil, lobby.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case lb := <-reply:
		if lb == nil {
			return nil, lobby.ErrClosed
		}
		return lb, nil
	case <-h.ctx.Done():
		return nil, lobby.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops every lobby and waits for them, or for ctx.
func (h *Hub) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case h.inbox <- ShutdownHub{Done: done}:
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) start(roomID string) *lobby.Lobby {
	lb := lobby.NewLobby(h.ctx, roomID, h.deps, func(l *lobby.Lobby) {
		// Runs on the lobby goroutine; never block it on the hub.
		select {
		case h.inbox <- RemoveLobby{RoomID: l.RoomID(), Lobby: l}:
		case <-h.ctx.Done():
		}
	})
	h.lobbies[roomID] = lb
	logger.Debug("room worker started", "roomId", roomID)
	return lb
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetLobby:
				msg.Reply <- h.lobbies[msg.RoomID] // May be nil

			case EnsureLobby:
				lb := h.lobbies[msg.RoomID]
				if lb != nil {
					select {
					case <-lb.Done():
						// stopped but not yet removed
						lb = nil
					default:
					}
				}
				if lb == nil {
					lb = h.start(msg.RoomID)
				}
				msg.Reply <- lb

			case RemoveLobby:
				if h.lobbies[msg.RoomID] == msg.Lobby {
					delete(h.lobbies, msg.RoomID)
				}

			case CountLobbies:
				msg.Reply <- len(h.lobbies)

			case ShutdownHub:
				running := make([]*lobby.Lobby, 0, len(h.lobbies))
				for _, lb := range h.lobbies {
					running = append(running, lb)
					_ = lb.Send(h.ctx, lobby.Shutdown{})
				}
				clear(h.lobbies)
				h.cancel()
				if msg.Done != nil {
					go func() {
						for _, lb := range running {
							<-lb.Done()
						}
						close(msg.Done)
					}()
				}
				return
			}
		}
	}
}
