package handler

import (
	"github.com/l1jgo/cubic/internal/net"
	"github.com/l1jgo/cubic/internal/net/packet"
	"go.uber.org/zap"
)

// HandleJoin processes C_JOIN: the client names itself and its starting
// block position and view distances.
func HandleJoin(sess *net.Session, r *packet.Reader, deps *Deps) {
	name := r.ReadS()
	x, y, z := r.ReadD(), r.ReadD(), r.ReadD()
	viewXZ, viewY := int(r.ReadC()), int(r.ReadC())
	if r.Short() {
		sendError(sess, "malformed join")
		return
	}

	sess.Name = name
	deps.World.AddObserver(net.NewSessionObserver(sess.ID, sess), x, y, z, viewXZ, viewY)
	sess.SetState(packet.StateInWorld)

	w := packet.NewWriterWithOpcode(packet.S_JOINED)
	w.WriteDU(uint32(sess.ID))
	sess.Send(w.Bytes())

	deps.Log.Info("client joined",
		zap.Uint64("session", sess.ID),
		zap.String("name", name),
		zap.Int32("x", x), zap.Int32("y", y), zap.Int32("z", z),
	)
}
