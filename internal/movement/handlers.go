package movement

import (
	"context"
	"time"

	"production-tracker-backend/internal/model"
	"production-tracker-backend/internal/store"
)

// applier executes one validated transition inside the request transaction.
type applier struct {
	s     store.Store
	now   time.Time
	actor string

	// batch holds the ids of every unit travelling in this operation.
	batch   map[int64]struct{}
	details *Details
}

func newApplier(s store.Store, now time.Time, actor string, t *target, typ model.MovementType) *applier {
	d := &Details{
		MovementType: typ,
		SerialNumber: t.object.SerialNumber,
		FullSN:       t.object.FullSN,
		ProcessID:    t.process.ID,
		ProcessLabel: t.process.Label,
	}
	if t.place != nil {
		d.PlaceName = t.place.Name
	}
	return &applier{s: s, now: now, actor: actor, batch: make(map[int64]struct{}), details: d}
}

// collect returns root followed by all of its descendants, depth first.
func (a *applier) collect(ctx context.Context, root *model.ProductObject) ([]*model.ProductObject, error) {
	units := []*model.ProductObject{root}
	a.batch[root.ID] = struct{}{}
	for i := 0; i < len(units); i++ {
		if !units[i].IsMother {
			continue
		}
		children, err := a.s.Children(ctx, units[i].ID)
		if err != nil {
			return nil, err
		}
		for j := range children {
			child := &children[j]
			if _, seen := a.batch[child.ID]; seen {
				continue
			}
			a.batch[child.ID] = struct{}{}
			units = append(units, child)
		}
	}
	return units, nil
}

// detach unlinks u from a mother that is not travelling with it and returns
// the mother's id, or 0 when nothing changed. The caller saves u first and
// then calls settle.
func (a *applier) detach(u *model.ProductObject) int64 {
	if u.MotherObjectID == nil {
		return 0
	}
	motherID := *u.MotherObjectID
	if _, travelling := a.batch[motherID]; travelling {
		return 0
	}
	u.ExMotherID = &motherID
	u.MotherObjectID = nil
	a.details.Orphaned = append(a.details.Orphaned, u.SerialNumber)
	return motherID
}

// settle terminates a mother that has no children left.
func (a *applier) settle(ctx context.Context, motherID int64) error {
	if motherID == 0 {
		return nil
	}
	left, err := a.s.ChildCount(ctx, motherID)
	if err != nil || left > 0 {
		return err
	}
	mother, err := a.s.FindProductObjectByID(ctx, motherID)
	if err != nil || mother == nil || mother.End {
		return err
	}
	if mother.CurrentProcessID != nil {
		if _, err := a.s.CloseOpenLog(ctx, mother.ID, *mother.CurrentProcessID, a.now, a.actor); err != nil {
			return err
		}
	}
	mother.End = true
	mother.CurrentProcessID = nil
	mother.CurrentPlaceID = nil
	if err := a.s.SaveObject(ctx, mother); err != nil {
		return err
	}
	a.details.Terminated = append(a.details.Terminated, mother.SerialNumber)
	return nil
}

func (a *applier) save(ctx context.Context, u *model.ProductObject, orphanedFrom int64) error {
	if err := a.s.SaveObject(ctx, u); err != nil {
		return err
	}
	a.details.Affected = append(a.details.Affected, u.SerialNumber)
	return a.settle(ctx, orphanedFrom)
}

// placeName resolves the name of place id, reusing known when it is the same row.
func (a *applier) placeName(ctx context.Context, id *int64, known *model.Place) (string, error) {
	if id == nil {
		return "", nil
	}
	if known != nil && known.ID == *id {
		return known.Name, nil
	}
	place, err := a.s.FindPlaceByID(ctx, *id)
	if err != nil || place == nil {
		return "", err
	}
	return place.Name, nil
}

func (a *applier) move(ctx context.Context, t *target) error {
	units, err := a.collect(ctx, t.object)
	if err != nil {
		return err
	}

	for _, u := range units {
		vacated := u.CurrentPlaceID
		closed, err := a.s.CloseOpenLog(ctx, u.ID, t.process.ID, a.now, a.actor)
		if err != nil {
			return err
		}
		if !closed {
			entry := &model.ProductObjectProcessLog{
				ProductObjectID: u.ID,
				ProcessID:       t.process.ID,
				PlaceID:         vacated,
				MovementType:    model.MovementMove,
				EntryTime:       a.now,
				ExitTime:        &a.now,
				WhoExit:         a.actor,
			}
			if entry.PlaceName, err = a.placeName(ctx, vacated, t.place); err != nil {
				return err
			}
			if err := a.s.AppendLog(ctx, entry); err != nil {
				return err
			}
		}

		u.CurrentPlaceID = nil
		u.MaxTimeDeadline = nil
		if d, ok := t.settings.MoveQuarantine(); ok {
			until := a.now.Add(d)
			u.QuarantineTime = &until
		}
		if t.process.ChangingExpDate && t.process.HowMuchDaysExpDate > 0 {
			exp := a.now.AddDate(0, 0, t.process.HowMuchDaysExpDate)
			u.ExpDateInProcess = &exp
		}

		mother := a.detach(u)
		if err := a.save(ctx, u, mother); err != nil {
			return err
		}
	}

	if t.process.KillingApp && t.place != nil {
		if _, err := a.s.SetKillFlag(ctx, t.place.ID, false); err != nil {
			return err
		}
	}
	return nil
}

func (a *applier) receive(ctx context.Context, t *target, printer string) error {
	units, err := a.collect(ctx, t.object)
	if err != nil {
		return err
	}

	for _, u := range units {
		if u.CurrentProcessID != nil {
			if _, err := a.s.CloseOpenLog(ctx, u.ID, *u.CurrentProcessID, a.now, a.actor); err != nil {
				return err
			}
		}

		u.CurrentProcessID = &t.process.ID
		u.CurrentPlaceID = &t.place.ID
		if err := a.s.AppendLog(ctx, &model.ProductObjectProcessLog{
			ProductObjectID: u.ID,
			ProcessID:       t.process.ID,
			PlaceID:         &t.place.ID,
			PlaceName:       t.place.Name,
			MovementType:    model.MovementReceive,
			EntryTime:       a.now,
			WhoEntry:        a.actor,
			PrinterName:     printer,
		}); err != nil {
			return err
		}

		mother := a.detach(u)

		u.MaxTimeDeadline = nil
		u.OverdueNotified = false
		if d, ok := t.settings.MaxTimeInProcess(); ok {
			deadline := a.now.Add(d)
			u.MaxTimeDeadline = &deadline
		}
		if d, ok := t.settings.ReceiveQuarantine(); ok {
			until := a.now.Add(d)
			u.QuarantineTime = &until
		}
		if t.process.EndingProcess {
			u.End = true
			a.details.Ended = true
		}

		if err := a.save(ctx, u, mother); err != nil {
			return err
		}
	}

	if t.process.KillingApp {
		found, err := a.s.SetKillFlag(ctx, t.place.ID, false)
		if err != nil {
			return err
		}
		if !found {
			return fail(CodeAppKillNoExist, "no kill flag for place %q", t.place.Name)
		}
	}
	return nil
}

func (a *applier) check(ctx context.Context, t *target, result bool) error {
	obj := t.object
	if err := a.s.AppendConditionLog(ctx, &model.ConditionLog{
		ProcessID:       t.process.ID,
		ProductObjectID: obj.ID,
		Result:          result,
		Actor:           a.actor,
		CreatedAt:       a.now,
	}); err != nil {
		return err
	}
	obj.CurrentProcessID = &t.process.ID
	if err := a.s.SaveObject(ctx, obj); err != nil {
		return err
	}
	a.details.Affected = append(a.details.Affected, obj.SerialNumber)
	return nil
}

func (a *applier) trash(ctx context.Context, t *target) error {
	units, err := a.collect(ctx, t.object)
	if err != nil {
		return err
	}

	for _, u := range units {
		if u.CurrentProcessID != nil {
			if _, err := a.s.CloseOpenLog(ctx, u.ID, *u.CurrentProcessID, a.now, a.actor); err != nil {
				return err
			}
		}
		if err := a.s.AppendLog(ctx, &model.ProductObjectProcessLog{
			ProductObjectID: u.ID,
			ProcessID:       t.process.ID,
			PlaceID:         &t.place.ID,
			PlaceName:       t.place.Name,
			MovementType:    model.MovementTrash,
			EntryTime:       a.now,
			WhoEntry:        a.actor,
			ExitTime:        &a.now,
			WhoExit:         a.actor,
		}); err != nil {
			return err
		}

		u.CurrentProcessID = &t.process.ID
		u.CurrentPlaceID = &t.place.ID
		u.End = true
		u.QuarantineTime = nil
		u.MaxTimeDeadline = nil

		mother := a.detach(u)
		if err := a.save(ctx, u, mother); err != nil {
			return err
		}
	}
	a.details.Ended = true
	return nil
}
