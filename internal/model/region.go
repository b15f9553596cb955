package model

import "time"

// Region is a user-owned polygon geofence stored in the `regions`
// collection.  Geometry carries a 2dsphere index.  OwnerID is a reference
// to the owning user; the owner's RegionIDs list mirrors it.
type Region struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Geometry  Polygon   `bson:"geometry" json:"geometry"`
	OwnerID   string    `bson:"owner_id" json:"owner_id"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// RegionPatch carries a partial update of the mutable region fields.
type RegionPatch struct {
	Name     *string
	Geometry *Polygon
}

// Empty reports whether the patch changes nothing.
func (p RegionPatch) Empty() bool { return p.Name == nil && p.Geometry == nil }
