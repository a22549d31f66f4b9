package frames

import "fmt"

type trajKey struct {
	frame int
	track TrackID
}

// Index is the arena-backed per-frame hit store.
type Index struct {
	tileHits   []TileHit
	tileOff    []int
	sensorHits []SensorHit
	sensorOff  []int
	trajs      []Trajectory
	trajOff    []int
	trajByKey  map[trajKey]int
}

// Builder accumulates frames in order and produces an Index.
type Builder struct {
	idx *Index
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{idx: &Index{
		tileOff:   []int{0},
		sensorOff: []int{0},
		trajOff:   []int{0},
		trajByKey: make(map[trajKey]int),
	}}
}

// AddFrame appends the next frame. Slices are copied.
// When a frame lists the same track twice, the first trajectory wins.
func (b *Builder) AddFrame(tiles []TileHit, sensors []SensorHit, trajs []Trajectory) int {
	idx := b.idx
	frame := len(idx.tileOff) - 1

	idx.tileHits = append(idx.tileHits, tiles...)
	idx.tileOff = append(idx.tileOff, len(idx.tileHits))

	idx.sensorHits = append(idx.sensorHits, sensors...)
	idx.sensorOff = append(idx.sensorOff, len(idx.sensorHits))

	for _, tr := range trajs {
		k := trajKey{frame: frame, track: tr.TrackID}
		if _, dup := idx.trajByKey[k]; !dup {
			idx.trajByKey[k] = len(idx.trajs)
		}
		idx.trajs = append(idx.trajs, tr)
	}
	idx.trajOff = append(idx.trajOff, len(idx.trajs))
	return frame
}

// Build finalises the index. The builder must not be used afterwards.
func (b *Builder) Build() *Index {
	idx := b.idx
	b.idx = nil
	return idx
}

// FrameCount returns the number of frames.
func (x *Index) FrameCount() int { return len(x.tileOff) - 1 }

// TileHits returns the frame's tile hits in native order.
// The returned slice aliases the arena and must not be modified.
func (x *Index) TileHits(frame int) []TileHit {
	x.mustFrame(frame)
	return x.tileHits[x.tileOff[frame]:x.tileOff[frame+1]:x.tileOff[frame+1]]
}

// SensorHits returns the frame's pixel hits in native order.
func (x *Index) SensorHits(frame int) []SensorHit {
	x.mustFrame(frame)
	return x.sensorHits[x.sensorOff[frame]:x.sensorOff[frame+1]:x.sensorOff[frame+1]]
}

// Trajectories returns the frame's trajectory records.
func (x *Index) Trajectories(frame int) []Trajectory {
	x.mustFrame(frame)
	return x.trajs[x.trajOff[frame]:x.trajOff[frame+1]:x.trajOff[frame+1]]
}

// Trajectory looks up the trajectory of track in frame.
func (x *Index) Trajectory(frame int, track TrackID) (Trajectory, bool) {
	i, ok := x.trajByKey[trajKey{frame: frame, track: track}]
	if !ok {
		return Trajectory{}, false
	}
	return x.trajs[i], true
}

// Totals returns the total number of tile hits, pixel hits and trajectories.
func (x *Index) Totals() (tiles, sensors, trajs int) {
	return len(x.tileHits), len(x.sensorHits), len(x.trajs)
}

func (x *Index) mustFrame(frame int) {
	if frame < 0 || frame >= x.FrameCount() {
		panic(fmt.Sprintf("frames: frame %d out of range [0,%d)", frame, x.FrameCount()))
	}
}
