package world

// ChunkKey addresses one streamed chunk column.
type ChunkKey struct {
	CX int
	CZ int
}

// ChunkStore simulates the host's streamed world data: a chunk requested at
// tick T becomes observable as loaded at T + loadDelay, sooner when a
// priority hint lands on it. Creation into unloaded chunks is forbidden, so
// every builder probes AreaLoaded first.
// Accessed only from the world loop goroutine.
type ChunkStore struct {
	chunkSize   int
	loadDelay   int
	priorityCut int

	loaded  map[ChunkKey]bool
	pending map[ChunkKey]uint64 // readyTick
}

func NewChunkStore(chunkSize, loadDelayTicks, priorityCutTicks int) *ChunkStore {
	if chunkSize <= 0 {
		chunkSize = 16
	}
	return &ChunkStore{
		chunkSize:   chunkSize,
		loadDelay:   loadDelayTicks,
		priorityCut: priorityCutTicks,
		loaded:      map[ChunkKey]bool{},
		pending:     map[ChunkKey]uint64{},
	}
}

func (s *ChunkStore) keyFor(pos Vec3i) ChunkKey {
	return ChunkKey{CX: floorDiv(pos.X, s.chunkSize), CZ: floorDiv(pos.Z, s.chunkSize)}
}

func (s *ChunkStore) keysInArea(min, max Vec3i) []ChunkKey {
	lo := s.keyFor(min)
	hi := s.keyFor(max)
	var keys []ChunkKey
	for cx := lo.CX; cx <= hi.CX; cx++ {
		for cz := lo.CZ; cz <= hi.CZ; cz++ {
			keys = append(keys, ChunkKey{CX: cx, CZ: cz})
		}
	}
	return keys
}

// RequestArea queues every not-yet-loaded chunk overlapping [min,max].
// Repeat requests do not reset the ready tick.
func (s *ChunkStore) RequestArea(min, max Vec3i, nowTick uint64) {
	for _, k := range s.keysInArea(min, max) {
		if s.loaded[k] {
			continue
		}
		if _, queued := s.pending[k]; queued {
			continue
		}
		s.pending[k] = nowTick + uint64(s.loadDelay)
	}
}

// Prioritize shaves the streaming hint's worth of ticks off pending chunks
// in the area.
func (s *ChunkStore) Prioritize(min, max Vec3i, nowTick uint64) {
	for _, k := range s.keysInArea(min, max) {
		ready, queued := s.pending[k]
		if !queued {
			continue
		}
		if ready <= nowTick+uint64(s.priorityCut) {
			s.pending[k] = nowTick + 1
		} else {
			s.pending[k] = ready - uint64(s.priorityCut)
		}
	}
}

// Tick promotes pending chunks whose ready tick has arrived.
func (s *ChunkStore) Tick(nowTick uint64) {
	for k, ready := range s.pending {
		if ready <= nowTick {
			delete(s.pending, k)
			s.loaded[k] = true
		}
	}
}

// AreaLoaded reports whether every chunk overlapping [min,max] is loaded.
func (s *ChunkStore) AreaLoaded(min, max Vec3i) bool {
	for _, k := range s.keysInArea(min, max) {
		if !s.loaded[k] {
			return false
		}
	}
	return true
}

// ForceLoad marks an area loaded immediately (snapshot resume, tests).
func (s *ChunkStore) ForceLoad(min, max Vec3i) {
	for _, k := range s.keysInArea(min, max) {
		delete(s.pending, k)
		s.loaded[k] = true
	}
}

func (s *ChunkStore) LoadedCount() int { return len(s.loaded) }
