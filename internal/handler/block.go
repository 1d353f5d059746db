package handler

import (
	"github.com/l1jgo/cubic/internal/net"
	"github.com/l1jgo/cubic/internal/net/packet"
	"go.uber.org/zap"
)

// HandleSetBlock processes C_SET_BLOCK.
func HandleSetBlock(sess *net.Session, r *packet.Reader, deps *Deps) {
	x, y, z := r.ReadD(), r.ReadD(), r.ReadD()
	id, meta := r.ReadH(), r.ReadC()
	if r.Short() {
		return
	}
	if meta > 0x0F {
		sendError(sess, "metadata out of range")
		return
	}
	if err := deps.World.SetBlock(x, y, z, id, meta); err != nil {
		deps.Log.Debug("set block failed", zap.Uint64("session", sess.ID), zap.Error(err))
		sendError(sess, "block unavailable")
	}
}
