package region

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/l1jgo/cubic/internal/world"
)

func collect(fn func(visit func(world.CellPos))) map[world.CellPos]int {
	out := make(map[world.CellPos]int)
	fn(func(p world.CellPos) { out[p]++ })
	return out
}

func sameSet(t *testing.T, name string, got map[world.CellPos]int, want []world.CellPos) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: %d cells, want %d", name, len(got), len(want))
	}
	for _, p := range want {
		if got[p] != 1 {
			t.Fatalf("%s: %v visited %d times", name, p, got[p])
		}
	}
}

func randomCenter(r *rand.Rand) world.CellPos {
	return world.CellPos{X: int32(r.Intn(21) - 10), Y: int32(r.Intn(11) - 5), Z: int32(r.Intn(21) - 10)}
}

func TestDiffIsItsOwnInverse(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		a, b := randomCenter(r), randomCenter(r)
		rxz, ry := r.Intn(4), r.Intn(3)

		loadAB, unloadAB := DiffSets(a, b, rxz, ry)
		loadBA, unloadBA := DiffSets(b, a, rxz, ry)
		sameSet(t, "load A→B vs unload B→A", collect(func(v func(world.CellPos)) {
			for _, p := range loadAB {
				v(p)
			}
		}), unloadBA)
		sameSet(t, "unload A→B vs load B→A", collect(func(v func(world.CellPos)) {
			for _, p := range unloadAB {
				v(p)
			}
		}), loadBA)
	}
}

func TestDiffMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 50; i++ {
		from := NewBox(randomCenter(r), r.Intn(3), r.Intn(3))
		to := Box{Center: randomCenter(r), RadiusXZ: from.RadiusXZ, RadiusY: from.RadiusY}

		var wantEnter, wantLeave []world.CellPos
		to.ForAll(func(p world.CellPos) {
			if !from.Contains(p) {
				wantEnter = append(wantEnter, p)
			}
		})
		from.ForAll(func(p world.CellPos) {
			if !to.Contains(p) {
				wantLeave = append(wantLeave, p)
			}
		})
		enter := collect(func(v func(world.CellPos)) { Diff(from, to, v, nil) })
		leave := collect(func(v func(world.CellPos)) { Diff(from, to, nil, v) })
		sameSet(t, "enter", enter, wantEnter)
		sameSet(t, "leave", leave, wantLeave)
	}
}

func TestDiffSameCenterIsEmpty(t *testing.T) {
	c := world.CellPos{X: 3, Y: -2, Z: 7}
	load, unload := DiffSets(c, c, 3, 2)
	if len(load) != 0 || len(unload) != 0 {
		t.Fatalf("diff of identical boxes = %d/%d", len(load), len(unload))
	}
}

func TestRadiusDecreaseVisitsOnlyShell(t *testing.T) {
	tests := []struct {
		name                     string
		oldXZ, oldY, newXZ, newY int
	}{
		{"both shrink", 3, 2, 1, 1},
		{"horizontal only", 3, 2, 2, 2},
		{"vertical only", 2, 3, 2, 0},
		{"vertical grows", 3, 1, 2, 4},
		{"unchanged", 2, 2, 2, 2},
	}
	center := world.CellPos{X: -4, Y: 1, Z: 5}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from := NewBox(center, tt.oldXZ, tt.oldY)
			to := NewBox(center, min(tt.newXZ, tt.oldXZ), min(tt.newY, tt.oldY))
			var want []world.CellPos
			from.ForAll(func(p world.CellPos) {
				if !to.Contains(p) {
					want = append(want, p)
				}
			})
			got := collect(func(v func(world.CellPos)) {
				ForAllChangedOnRadiusDecrease(center, tt.oldXZ, tt.oldY, tt.newXZ, tt.newY, v)
			})
			sameSet(t, tt.name, got, want)
		})
	}
}

func TestDiffColumns(t *testing.T) {
	from := NewBox(world.CellPos{}, 1, 5)
	to := NewBox(world.CellPos{X: 1, Y: 9}, 1, 0)

	var enter, leave []world.ColumnPos
	DiffColumns(from, to,
		func(p world.ColumnPos) { enter = append(enter, p) },
		func(p world.ColumnPos) { leave = append(leave, p) })
	sortColumns(enter)
	sortColumns(leave)

	wantEnter := []world.ColumnPos{{X: 2, Z: -1}, {X: 2, Z: 0}, {X: 2, Z: 1}}
	wantLeave := []world.ColumnPos{{X: -1, Z: -1}, {X: -1, Z: 0}, {X: -1, Z: 1}}
	if !equalColumns(enter, wantEnter) || !equalColumns(leave, wantLeave) {
		t.Fatalf("enter=%v leave=%v", enter, leave)
	}

	var shell []world.ColumnPos
	ForAllColumnsChangedOnRadiusDecrease(world.CellPos{}, 2, 1, func(p world.ColumnPos) { shell = append(shell, p) })
	if len(shell) != 25-9 {
		t.Fatalf("column shell has %d columns, want 16", len(shell))
	}
}

func TestBoxSize(t *testing.T) {
	b := NewBox(world.CellPos{}, 2, 1)
	n := 0
	b.ForAll(func(world.CellPos) { n++ })
	if n != b.Size() || n != 5*5*3 {
		t.Fatalf("ForAll visited %d cells, Size=%d", n, b.Size())
	}
	if NewBox(world.CellPos{}, -1, -1).Size() != 1 {
		t.Fatalf("negative radii should clamp to zero")
	}
}

func sortColumns(ps []world.ColumnPos) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].X != ps[j].X {
			return ps[i].X < ps[j].X
		}
		return ps[i].Z < ps[j].Z
	})
}

func equalColumns(a, b []world.ColumnPos) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
