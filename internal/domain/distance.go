package domain

import "time"

// Leg is the distance and travel time for one travel mode.
// Estimated is set when the values come from straight-line geometry
// instead of a routing engine.
type Leg struct {
	DistanceMeters int
	TimeSeconds    int
	Estimated      bool
}

// PairKey identifies a DistanceRecord. The order is significant:
// A is the origin side (property), B the destination side (POI).
type PairKey struct {
	EntityAID int64
	EntityBID int64
}

// UniqueIDs drops repeated ids and keeps the order of first occurrence.
func UniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	uniq := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	return uniq
}

// Represents one cached pairwise computation.
// A nil leg means that mode has never been computed for the pair.
type DistanceRecord struct {
	EntityAID    int64
	EntityBID    int64
	Walking      *Leg
	Driving      *Leg
	CalculatedAt time.Time
}

func (r DistanceRecord) Key() PairKey {
	return PairKey{EntityAID: r.EntityAID, EntityBID: r.EntityBID}
}

// Leg returns the cached leg for mode, if present.
func (r DistanceRecord) Leg(mode TravelMode) (Leg, bool) {
	var l *Leg
	switch mode {
	case Walking:
		l = r.Walking
	case Driving:
		l = r.Driving
	}
	if l == nil {
		return Leg{}, false
	}
	return *l, true
}

// WithLeg returns a copy of r with the leg for mode set.
func (r DistanceRecord) WithLeg(mode TravelMode, leg Leg) DistanceRecord {
	l := leg
	switch mode {
	case Walking:
		r.Walking = &l
	case Driving:
		r.Driving = &l
	}
	return r
}

// Merge overlays the legs present in update onto r and takes update's
// CalculatedAt. Legs absent from update are left untouched.
func (r DistanceRecord) Merge(update DistanceRecord) DistanceRecord {
	if update.Walking != nil {
		l := *update.Walking
		r.Walking = &l
	}
	if update.Driving != nil {
		l := *update.Driving
		r.Driving = &l
	}
	r.CalculatedAt = update.CalculatedAt
	return r
}

// Distance is the answer to a single (A, B, mode) query.
type Distance struct {
	EntityAID      int64
	EntityBID      int64
	Mode           TravelMode
	DistanceMeters int
	TimeSeconds    int
	Estimated      bool
	Cached         bool
}
