package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"jobtrack.gg/internal/jobs"
	"jobtrack.gg/internal/leaderboard"
	"jobtrack.gg/internal/protocol"
	"jobtrack.gg/internal/tracks"
)

// Server is the host-facing websocket endpoint: it receives world-action
// events and commands, and pushes notifications back. Heavy work never runs
// on the reader loop.
type Server struct {
	hub      *Hub
	proc     *jobs.Processor
	mgr      *jobs.Manager
	provider *tracks.Provider
	lb       *leaderboard.Cache
	stats    *jobs.DebugStats
	limit    int
	log      *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, proc *jobs.Processor, mgr *jobs.Manager, provider *tracks.Provider, lb *leaderboard.Cache, stats *jobs.DebugStats, trackLimit int, logger *log.Logger) *Server {
	if trackLimit < 1 {
		trackLimit = 2
	}
	return &Server{
		hub:      hub,
		proc:     proc,
		mgr:      mgr,
		provider: provider,
		lb:       lb,
		stats:    stats,
		limit:    trackLimit,
		log:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		actorID, out := s.handshake(conn)
		if actorID == "" {
			return
		}
		s.hub.attach(actorID, out)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			switch base.Type {
			case protocol.TypeEvent:
				var ev protocol.EventMsg
				if err := json.Unmarshal(msg, &ev); err != nil {
					continue
				}
				if ev.ProtocolVersion != protocol.Version {
					continue
				}
				// One worker context per event; the reader never waits on
				// limiter/profile locks.
				go s.proc.HandleEvent(jobs.Event{
					ActorID: actorID,
					Kind:    ev.Kind,
					Subject: strings.ToUpper(ev.Subject),
					Tool:    strings.ToUpper(ev.Tool),
					World:   ev.World,
					Pos:     ev.Pos,
					Column:  ev.Column,
					Grown:   ev.Grown,
				})
			case protocol.TypeCmd:
				var cmd protocol.CmdMsg
				if err := json.Unmarshal(msg, &cmd); err != nil {
					continue
				}
				s.handleCmd(actorID, cmd)
			}
		}

		// Cleanup: final save happens inside Unload. A reconnect may already
		// have replaced this session; only the live session may unload the
		// profile, or the new session would go not-loaded mid-connection.
		if s.hub.detach(actorID, out) {
			s.mgr.Unload(actorID)
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (actorID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "protocol version mismatch"), time.Now().Add(time.Second))
		return "", nil
	}

	actorID = strings.TrimSpace(hello.ActorID)
	if actorID == "" {
		actorID = uuid.NewString()
	}

	// Profile must be live before the first event can pay out.
	if err := s.mgr.Load(context.Background(), actorID); err != nil {
		s.log.Printf("handshake load %s: %v", actorID, err)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "profile load failed"), time.Now().Add(time.Second))
		return "", nil
	}

	set := s.provider.Current()
	infos := make([]protocol.TrackInfo, 0, len(set.IDs()))
	for _, id := range set.IDs() {
		t := set.Get(id)
		infos = append(infos, protocol.TrackInfo{ID: id, DisplayName: t.DisplayName, MaxLevel: t.MaxLevel})
	}
	welcome, err := json.Marshal(protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ActorID:         actorID,
		Tracks:          infos,
	})
	if err != nil {
		return "", nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, welcome); err != nil {
		return "", nil
	}

	return actorID, make(chan []byte, 256)
}

func (s *Server) handleCmd(actorID string, cmd protocol.CmdMsg) {
	trackID := strings.ToLower(strings.TrimSpace(cmd.Track))

	switch cmd.Op {
	case protocol.CmdJoin:
		s.cmdJoin(actorID, cmd.Op, trackID)
	case protocol.CmdLeave:
		s.cmdLeave(actorID, cmd.Op, trackID)
	case protocol.CmdStats:
		s.cmdStats(actorID, cmd.Op, trackID)
	case protocol.CmdRank:
		s.cmdRank(actorID, cmd.Op, trackID)
	case protocol.CmdDebug:
		enabled := s.stats.Toggle(actorID)
		s.result(actorID, cmd.Op, true, "", fmt.Sprintf("debug %v", enabled))
	default:
		s.result(actorID, cmd.Op, false, protocol.ErrBadRequest, "unknown op")
	}
}

func (s *Server) cmdJoin(actorID, op, trackID string) {
	t := s.provider.Current().Get(trackID)
	if t == nil {
		s.result(actorID, op, false, protocol.ErrUnknownTrack, trackID)
		return
	}
	p, ok := s.mgr.Get(actorID)
	if !ok {
		s.result(actorID, op, false, protocol.ErrNotLoaded, "")
		return
	}
	if p.JoinedCount() >= s.limit && !p.IsJoined(trackID) {
		s.result(actorID, op, false, protocol.ErrTrackLimit, fmt.Sprintf("limit %d", s.limit))
		return
	}
	if !p.Join(trackID, jobs.EpochDay(time.Now())) {
		s.result(actorID, op, false, protocol.ErrAlreadyJoined, trackID)
		return
	}
	s.result(actorID, op, true, "", fmt.Sprintf("joined %s", t.DisplayName))
}

func (s *Server) cmdLeave(actorID, op, trackID string) {
	p, ok := s.mgr.Get(actorID)
	if !ok {
		s.result(actorID, op, false, protocol.ErrNotLoaded, "")
		return
	}
	if !p.Leave(trackID) {
		s.result(actorID, op, false, protocol.ErrNotJoined, trackID)
		return
	}
	s.result(actorID, op, true, "", fmt.Sprintf("left %s", trackID))
}

func (s *Server) cmdStats(actorID, op, trackID string) {
	t := s.provider.Current().Get(trackID)
	if t == nil {
		s.result(actorID, op, false, protocol.ErrUnknownTrack, trackID)
		return
	}
	p, ok := s.mgr.Get(actorID)
	if !ok {
		s.result(actorID, op, false, protocol.ErrNotLoaded, "")
		return
	}
	level := p.Level(trackID)
	detail := fmt.Sprintf("%s: level %d, %.1f/%d xp, tenure +%d%%",
		t.DisplayName, level, p.XP(trackID), t.RequiredXP(level),
		p.TenureBonusPercent(trackID, jobs.EpochDay(time.Now())))
	s.result(actorID, op, true, "", detail)
}

func (s *Server) cmdRank(actorID, op, trackID string) {
	if s.provider.Current().Get(trackID) == nil {
		s.result(actorID, op, false, protocol.ErrUnknownTrack, trackID)
		return
	}
	rank := s.lb.Rank(trackID, actorID)
	count := s.lb.Count(trackID)
	if rank == 0 {
		s.result(actorID, op, true, "", fmt.Sprintf("unranked of %d", count))
		return
	}
	s.result(actorID, op, true, "", fmt.Sprintf("rank %d of %d", rank, count))
}

func (s *Server) result(actorID, op string, ok bool, code, detail string) {
	b, err := json.Marshal(protocol.ResultMsg{Type: protocol.TypeResult, Op: op, Ok: ok, Code: code, Detail: detail})
	if err != nil {
		return
	}
	s.hub.send(actorID, b)
}
