// Package fifo decides whether a unit leaving a process jumps the queue.
//
// Every eligible resident of the process is ranked by (sort key, created_at)
// where the sort key is exp_date_in_process, falling back to expire_date and
// finally to a far-future sentinel. A departing unit violates FIFO when any
// eligible resident ranks strictly before it.
package fifo

import (
	"fmt"
	"time"

	"production-tracker-backend/internal/model"
)

// sentinelHorizon pushes units without any expiry date behind all dated ones.
const sentinelHorizon = 100

// Violation names the unit that should have left first.
type Violation struct {
	SerialNumber string
	PlaceName    string
	SortKey      time.Time
}

func (v *Violation) Error() string {
	return fmt.Sprintf("object %s at place %q must leave first", v.SerialNumber, v.PlaceName)
}

// SortKey returns the FIFO ordering date of obj.
func SortKey(obj *model.ProductObject, now time.Time) time.Time {
	switch {
	case obj.ExpDateInProcess != nil:
		return *obj.ExpDateInProcess
	case obj.ExpireDate != nil:
		return *obj.ExpireDate
	default:
		return now.AddDate(sentinelHorizon, 0, 0)
	}
}

// Check scans residents (the units sharing departing's current process) and
// returns the earliest-ranked eligible unit that outranks departing, or nil.
// Residents must carry their Children and CurrentPlace associations.
func Check(departing *model.ProductObject, residents []model.ProductObject, now time.Time) *Violation {
	ownChildren := make(map[int64]struct{})
	if departing.IsMother {
		for _, r := range residents {
			if r.MotherObjectID != nil && *r.MotherObjectID == departing.ID {
				ownChildren[r.ID] = struct{}{}
			}
		}
	}

	key := SortKey(departing, now)
	var best *model.ProductObject
	var bestKey time.Time
	for i := range residents {
		r := &residents[i]
		if !eligible(r, departing, ownChildren) {
			continue
		}
		rk := SortKey(r, now)
		if !before(rk, r.CreatedAt, key, departing.CreatedAt) {
			continue
		}
		if best == nil || before(rk, r.CreatedAt, bestKey, best.CreatedAt) {
			best, bestKey = r, rk
		}
	}
	if best == nil {
		return nil
	}

	v := &Violation{SerialNumber: best.SerialNumber, SortKey: bestKey}
	if best.CurrentPlace != nil {
		v.PlaceName = best.CurrentPlace.Name
	}
	return v
}

func eligible(r, departing *model.ProductObject, ownChildren map[int64]struct{}) bool {
	if r.End || r.CurrentPlaceID == nil || r.ID == departing.ID {
		return false
	}
	if departing.CurrentProcessID == nil || r.CurrentProcessID == nil || *r.CurrentProcessID != *departing.CurrentProcessID {
		return false
	}
	if r.IsMother {
		return len(r.Children) == 0
	}
	_, own := ownChildren[r.ID]
	return !own
}

// before orders lexicographically on (key, createdAt).
func before(aKey, aCreated, bKey, bCreated time.Time) bool {
	if !aKey.Equal(bKey) {
		return aKey.Before(bKey)
	}
	return aCreated.Before(bCreated)
}
