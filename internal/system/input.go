package system

import (
	"time"

	coresys "github.com/l1jgo/cubic/internal/core/system"
	"github.com/l1jgo/cubic/internal/net"
	"github.com/l1jgo/cubic/internal/net/packet"
	"go.uber.org/zap"
)

// NetInputSystem accepts new sessions, drains packet queues and dispatches
// them through the packet registry. Phase 0 (Input).
type NetInputSystem struct {
	netServer    *net.Server
	registry     *packet.Registry
	store        *net.SessionStore
	maxPerTick   int
	onDisconnect func(sess *net.Session)
	log          *zap.Logger
}

func NewNetInputSystem(
	netServer *net.Server,
	registry *packet.Registry,
	store *net.SessionStore,
	maxPerTick int,
	onDisconnect func(sess *net.Session),
	log *zap.Logger,
) *NetInputSystem {
	return &NetInputSystem{
		netServer:    netServer,
		registry:     registry,
		store:        store,
		maxPerTick:   maxPerTick,
		onDisconnect: onDisconnect,
		log:          log,
	}
}

func (s *NetInputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *NetInputSystem) Update(_ time.Duration) {
	// Accept new sessions
	for {
		select {
		case sess := <-s.netServer.NewSessions():
			s.store.Add(sess)
		default:
			goto doneNew
		}
	}
doneNew:

	// Process dead sessions
	for {
		select {
		case id := <-s.netServer.DeadSessions():
			s.store.Remove(id)
		default:
			goto doneDead
		}
	}
doneDead:

	for id, sess := range s.store.Raw() {
		if sess.IsClosed() {
			s.drain(sess)
			sess.FlushOutput()
			if s.onDisconnect != nil {
				s.onDisconnect(sess)
			}
			s.netServer.NotifyDead(id)
			s.store.Remove(id)
			continue
		}
		s.drain(sess)
	}
}

// drain dispatches up to maxPerTick queued packets of one session.
func (s *NetInputSystem) drain(sess *net.Session) {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case data := <-sess.InQueue:
			if err := s.registry.Dispatch(sess, sess.State(), data); err != nil {
				s.log.Debug("packet dispatch error",
					zap.Uint64("session", sess.ID),
					zap.Error(err),
				)
			}
		default:
			return
		}
	}
}
