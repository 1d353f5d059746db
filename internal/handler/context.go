package handler

import (
	"github.com/l1jgo/cubic/internal/net"
	"github.com/l1jgo/cubic/internal/net/packet"
	"github.com/l1jgo/cubic/internal/visibility"
	"go.uber.org/zap"
)

// World is the dimension surface packet handlers drive.
type World interface {
	AddObserver(obs visibility.Observer, x, y, z int32, viewXZ, viewY int)
	MoveObserver(id uint64, x, y, z int32)
	SetViewDistance(id uint64, viewXZ, viewY int)
	SetBlock(x, y, z int32, id uint16, meta uint8) error
	RemoveObserver(id uint64)
}

// Deps holds shared dependencies injected into all packet handlers.
type Deps struct {
	World World
	Log   *zap.Logger
}

// RegisterAll registers all packet handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	reg.Register(packet.C_JOIN,
		[]packet.SessionState{packet.StateHandshake},
		func(sess any, r *packet.Reader) {
			HandleJoin(sess.(*net.Session), r, deps)
		},
	)

	inWorld := []packet.SessionState{packet.StateInWorld}
	reg.Register(packet.C_MOVE, inWorld,
		func(sess any, r *packet.Reader) {
			HandleMove(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_VIEW_DISTANCE, inWorld,
		func(sess any, r *packet.Reader) {
			HandleViewDistance(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_SET_BLOCK, inWorld,
		func(sess any, r *packet.Reader) {
			HandleSetBlock(sess.(*net.Session), r, deps)
		},
	)
}

// HandleDisconnect releases everything a session held in the world.
func HandleDisconnect(sess *net.Session, deps *Deps) {
	deps.World.RemoveObserver(sess.ID)
	deps.Log.Info("client left", zap.Uint64("session", sess.ID), zap.String("name", sess.Name))
}

func sendError(sess *net.Session, msg string) {
	w := packet.NewWriterWithOpcode(packet.S_ERROR)
	w.WriteS(msg)
	sess.Send(w.Bytes())
}
