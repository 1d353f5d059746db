// Package region computes which cells and columns enter or leave a
// cuboidal view region. Horizontal and vertical radii are independent.
package region

import "github.com/l1jgo/cubic/internal/world"

// Box is the set of cells within RadiusXZ horizontally and RadiusY
// vertically of Center (Chebyshev distance per axis group).
type Box struct {
	Center   world.CellPos
	RadiusXZ int32
	RadiusY  int32
}

func NewBox(center world.CellPos, radiusXZ, radiusY int) Box {
	return Box{Center: center, RadiusXZ: int32(max(radiusXZ, 0)), RadiusY: int32(max(radiusY, 0))}
}

func (b Box) Contains(p world.CellPos) bool {
	return b.ContainsColumn(p.Column()) && abs(p.Y-b.Center.Y) <= b.RadiusY
}

func (b Box) ContainsColumn(p world.ColumnPos) bool {
	return abs(p.X-b.Center.X) <= b.RadiusXZ && abs(p.Z-b.Center.Z) <= b.RadiusXZ
}

// Size returns the number of cells in the box.
func (b Box) Size() int {
	side := int(2*b.RadiusXZ + 1)
	return side * side * int(2*b.RadiusY+1)
}

// ForAll visits every cell in the box.
func (b Box) ForAll(fn func(world.CellPos)) {
	c := b.Center
	for x := c.X - b.RadiusXZ; x <= c.X+b.RadiusXZ; x++ {
		for z := c.Z - b.RadiusXZ; z <= c.Z+b.RadiusXZ; z++ {
			for y := c.Y - b.RadiusY; y <= c.Y+b.RadiusY; y++ {
				fn(world.CellPos{X: x, Y: y, Z: z})
			}
		}
	}
}

// ForAllColumns visits every column the box touches.
func (b Box) ForAllColumns(fn func(world.ColumnPos)) {
	c := b.Center
	for x := c.X - b.RadiusXZ; x <= c.X+b.RadiusXZ; x++ {
		for z := c.Z - b.RadiusXZ; z <= c.Z+b.RadiusXZ; z++ {
			fn(world.ColumnPos{X: x, Z: z})
		}
	}
}

// Diff reports cells in to but not in from through enter, and cells in
// from but not in to through leave. Visitation order is unspecified.
func Diff(from, to Box, enter, leave func(world.CellPos)) {
	if enter != nil {
		to.ForAll(func(p world.CellPos) {
			if !from.Contains(p) {
				enter(p)
			}
		})
	}
	if leave != nil {
		from.ForAll(func(p world.CellPos) {
			if !to.Contains(p) {
				leave(p)
			}
		})
	}
}

// DiffColumns is Diff for the columns the boxes touch.
func DiffColumns(from, to Box, enter, leave func(world.ColumnPos)) {
	if enter != nil {
		to.ForAllColumns(func(p world.ColumnPos) {
			if !from.ContainsColumn(p) {
				enter(p)
			}
		})
	}
	if leave != nil {
		from.ForAllColumns(func(p world.ColumnPos) {
			if !to.ContainsColumn(p) {
				leave(p)
			}
		})
	}
}

// DiffSets returns the cells that must be loaded and unloaded when a view
// of the given radii moves from oldCenter to newCenter.
func DiffSets(oldCenter, newCenter world.CellPos, radiusXZ, radiusY int) (toLoad, toUnload []world.CellPos) {
	from := NewBox(oldCenter, radiusXZ, radiusY)
	to := NewBox(newCenter, radiusXZ, radiusY)
	Diff(from, to,
		func(p world.CellPos) { toLoad = append(toLoad, p) },
		func(p world.CellPos) { toUnload = append(toUnload, p) })
	return toLoad, toUnload
}

// ForAllChangedOnRadiusDecrease visits only the shell of cells that leave
// a view when its radii shrink around a fixed center. Radii that grow are
// treated as unchanged.
func ForAllChangedOnRadiusDecrease(center world.CellPos, oldXZ, oldY, newXZ, newY int, fn func(world.CellPos)) {
	from := NewBox(center, oldXZ, oldY)
	to := NewBox(center, min(newXZ, oldXZ), min(newY, oldY))
	c := center
	for x := c.X - from.RadiusXZ; x <= c.X+from.RadiusXZ; x++ {
		for z := c.Z - from.RadiusXZ; z <= c.Z+from.RadiusXZ; z++ {
			if !to.ContainsColumn(world.ColumnPos{X: x, Z: z}) {
				for y := c.Y - from.RadiusY; y <= c.Y+from.RadiusY; y++ {
					fn(world.CellPos{X: x, Y: y, Z: z})
				}
				continue
			}
			// Column stays: only the vertical caps leave.
			for y := c.Y - from.RadiusY; y < c.Y-to.RadiusY; y++ {
				fn(world.CellPos{X: x, Y: y, Z: z})
			}
			for y := c.Y + to.RadiusY + 1; y <= c.Y+from.RadiusY; y++ {
				fn(world.CellPos{X: x, Y: y, Z: z})
			}
		}
	}
}

// ForAllColumnsChangedOnRadiusDecrease is the column form of
// ForAllChangedOnRadiusDecrease.
func ForAllColumnsChangedOnRadiusDecrease(center world.CellPos, oldXZ, newXZ int, fn func(world.ColumnPos)) {
	from := NewBox(center, oldXZ, 0)
	to := NewBox(center, min(newXZ, oldXZ), 0)
	DiffColumns(from, to, nil, fn)
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
