package handler

import (
	"github.com/l1jgo/cubic/internal/net"
	"github.com/l1jgo/cubic/internal/net/packet"
)

// HandleMove processes C_MOVE. The position is trusted; subscriptions
// follow at the next tick.
func HandleMove(sess *net.Session, r *packet.Reader, deps *Deps) {
	x, y, z := r.ReadD(), r.ReadD(), r.ReadD()
	if r.Short() {
		return
	}
	deps.World.MoveObserver(sess.ID, x, y, z)
}

// HandleViewDistance processes C_VIEW_DISTANCE.
func HandleViewDistance(sess *net.Session, r *packet.Reader, deps *Deps) {
	viewXZ, viewY := int(r.ReadC()), int(r.ReadC())
	if r.Short() {
		return
	}
	deps.World.SetViewDistance(sess.ID, viewXZ, viewY)
}
