package index

import (
	"math"
	"sort"
	"sync"
)

// geoEntry is one indexed coordinate.
type geoEntry struct {
	ref      DocRef
	lat, lng float64
}

// GeoIndex backs both geo1 (one list-valued [lat,lng] attribute) and geo2
// (two separate numeric attributes) variants; which one is in effect is
// controlled by Fields having length 1 (geo1) or 2 (geo2).
type GeoIndex struct {
	BaseCleanup
	mu         sync.RWMutex
	iid        uint64
	fields     []string
	geoJSON    bool // for geo1: [lng,lat] order instead of [lat,lng]
	constraint bool // reject non-indexable documents
	ignoreNull bool // treat missing fields as "not indexed", not a violation
	entries    []*geoEntry
}

// NewGeo1Index builds a geo1 index over a single [lat,lng]/[lng,lat] field.
func NewGeo1Index(iid uint64, field string, geoJSON, constraint, ignoreNull bool) *GeoIndex {
	return &GeoIndex{iid: iid, fields: []string{field}, geoJSON: geoJSON, constraint: constraint, ignoreNull: ignoreNull}
}

// NewGeo2Index builds a geo2 index over two separate numeric fields.
func NewGeo2Index(iid uint64, latField, lngField string, constraint, ignoreNull bool) *GeoIndex {
	return &GeoIndex{iid: iid, fields: []string{latField, lngField}, constraint: constraint, ignoreNull: ignoreNull}
}

func (g *GeoIndex) IID() uint64 { return g.iid }

func (g *GeoIndex) Describe() Description {
	typ := "geo2"
	if len(g.fields) == 1 {
		typ = "geo1"
	}
	return Description{
		ID: g.iid, Type: typ, Unique: false, Fields: g.fields,
		GeoJSON: g.geoJSON, Constraint: g.constraint, IgnoreNull: g.ignoreNull,
	}
}

func (g *GeoIndex) extract(doc Document) (lat, lng float64, present bool) {
	if len(g.fields) == 1 {
		raw, ok := attr(doc, g.fields[0])
		if !ok {
			return 0, 0, false
		}
		list, ok := raw.([]interface{})
		if !ok || len(list) != 2 {
			return 0, 0, false
		}
		a, okA := toFloat(list[0])
		b, okB := toFloat(list[1])
		if !okA || !okB {
			return 0, 0, false
		}
		if g.geoJSON {
			return b, a, true // geoJson: [lng, lat]
		}
		return a, b, true
	}

	latRaw, okLat := attr(doc, g.fields[0])
	lngRaw, okLng := attr(doc, g.fields[1])
	if !okLat || !okLng {
		return 0, 0, false
	}
	lat, okLat = toFloat(latRaw)
	lng, okLng = toFloat(lngRaw)
	return lat, lng, okLat && okLng
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func (g *GeoIndex) Insert(doc Document, ref DocRef) Result {
	lat, lng, present := g.extract(doc)
	if !present {
		if g.ignoreNull {
			return ok()
		}
		if g.constraint {
			return fail(ErrGeoViolated)
		}
		return warn(WarnAttributeMissing)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries = append(g.entries, &geoEntry{ref: ref, lat: lat, lng: lng})
	return ok()
}

func (g *GeoIndex) Update(newDoc, oldDoc Document, ref DocRef) Result {
	g.Remove(oldDoc, ref)
	return g.Insert(newDoc, ref)
}

func (g *GeoIndex) Remove(doc Document, ref DocRef) Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, e := range g.entries {
		if e.ref == ref {
			g.entries = append(g.entries[:i], g.entries[i+1:]...)
			return ok()
		}
	}
	return warn(WarnRemoveItemMissing)
}

// haversineKM returns the great-circle distance in kilometers.
func haversineKM(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKM = 6371.0
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

// Within returns every indexed document within radiusKM of (lat, lon).
func (g *GeoIndex) Within(lat, lon, radiusKM float64) []DocRef {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []DocRef
	for _, e := range g.entries {
		if haversineKM(lat, lon, e.lat, e.lng) <= radiusKM {
			out = append(out, e.ref)
		}
	}
	return out
}

// Nearest returns the count closest indexed documents to (lat, lon).
func (g *GeoIndex) Nearest(lat, lon float64, count int) []DocRef {
	g.mu.RLock()
	defer g.mu.RUnlock()

	type scored struct {
		ref  DocRef
		dist float64
	}
	scoredEntries := make([]scored, 0, len(g.entries))
	for _, e := range g.entries {
		scoredEntries = append(scoredEntries, scored{ref: e.ref, dist: haversineKM(lat, lon, e.lat, e.lng)})
	}
	sort.Slice(scoredEntries, func(i, j int) bool { return scoredEntries[i].dist < scoredEntries[j].dist })

	if count > len(scoredEntries) {
		count = len(scoredEntries)
	}
	out := make([]DocRef, count)
	for i := 0; i < count; i++ {
		out[i] = scoredEntries[i].ref
	}
	return out
}
