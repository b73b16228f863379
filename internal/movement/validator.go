package movement

import (
	"context"
	"time"

	"production-tracker-backend/internal/fifo"
	"production-tracker-backend/internal/graph"
	"production-tracker-backend/internal/model"
	"production-tracker-backend/internal/store"
)

// target is a validated transition, ready for its handler.
type target struct {
	object   *model.ProductObject
	process  *model.Process
	settings graph.Settings
	place    *model.Place

	// current is the object's process before the transition, if any.
	current *model.Process
	// conditional is set when the transition leaves a condition process
	// along an edge chosen by its latest condition log.
	conditional bool
}

// validator runs the rule chains. Rules short-circuit on the first failure.
type validator struct {
	s   store.Store
	now time.Time
}

func (v *validator) validate(ctx context.Context, req Request) (*target, error) {
	obj, err := v.s.FindProductObjectByFullSN(ctx, req.FullSN)
	if err != nil {
		return nil, err
	}
	if err := usable(obj, req.FullSN); err != nil {
		return nil, err
	}
	if req.Actor == "" {
		return nil, fail(CodeNoUserLogged, "no user logged in")
	}
	if !req.Type.Valid() {
		return nil, fail(CodeMovementTypeDoesNotExist, "movement type %q does not exist", req.Type)
	}

	t := &target{object: obj}
	if obj.CurrentProcessID != nil {
		if t.current, err = v.s.FindProcess(ctx, *obj.CurrentProcessID); err != nil {
			return nil, err
		}
	}

	switch req.Type {
	case model.MovementMove:
		err = v.move(ctx, t, req)
	case model.MovementTrash:
		err = v.trash(ctx, t, req)
	default:
		err = v.receiveOrCheck(ctx, t, req)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func usable(obj *model.ProductObject, fullSN string) error {
	if obj == nil {
		return fail(CodeObjectDoesNotExist, "object %s does not exist", fullSN)
	}
	if obj.End {
		return fail(CodeObjectAlreadyEnded, "object %s has already ended", obj.SerialNumber)
	}
	return nil
}

func (v *validator) resolveProcess(ctx context.Context, t *target, id int64) error {
	p, err := v.s.FindProcess(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return fail(CodeTargetProcessNotFound, "process %d not found", id)
	}
	t.process = p
	t.settings = graph.Resolve(p)
	return nil
}

func (v *validator) resolvePlace(ctx context.Context, t *target, name string) error {
	place, err := v.s.FindPlace(ctx, name, t.process.ID)
	if err != nil {
		return err
	}
	if place == nil {
		return fail(CodePlaceNotFound, "place %q not found in process %s", name, t.process.Label)
	}
	t.place = place
	return nil
}

func (v *validator) receiveOrCheck(ctx context.Context, t *target, req Request) error {
	obj := t.object

	if err := v.resolveProcess(ctx, t, req.ProcessID); err != nil {
		return err
	}
	if req.Type != model.MovementCheck {
		if err := v.resolvePlace(ctx, t, req.PlaceName); err != nil {
			return err
		}
	}

	if t.process.KillingApp && t.place != nil {
		found, err := v.s.SetKillFlag(ctx, t.place.ID, true)
		if err != nil {
			return err
		}
		if !found {
			return fail(CodeAppKillNoExist, "no kill flag for place %q", t.place.Name)
		}
	}

	hasEdge := false
	if t.current != nil {
		var err error
		if hasEdge, err = v.s.HasEdge(ctx, t.current.ID, t.process.ID); err != nil {
			return err
		}
	}
	if hasEdge && graph.Resolve(t.current).IsCondition() {
		t.conditional = true
		path, ok := t.settings.CondPath()
		if !ok {
			return fail(CodeNoSettingsPhase, "process %s does not declare a condition path", t.process.Label)
		}
		entry, err := v.s.LatestConditionLog(ctx, t.current.ID, obj.ID)
		if err != nil {
			return err
		}
		if entry == nil {
			return fail(CodeLogNotExist, "no condition result for %s at %s", obj.SerialNumber, t.current.Label)
		}
		if entry.Result != path {
			return fail(CodeWrongCondition, "%s took the %t branch at %s, %s accepts %t",
				obj.SerialNumber, entry.Result, t.current.Label, t.process.Label, path)
		}
	}

	if err := usable(obj, req.FullSN); err != nil {
		return err
	}

	if t.current != nil && t.current.ID == t.process.ID {
		return fail(CodeAlreadyInProcess, "object %s is already in %s", obj.SerialNumber, t.process.Label)
	}

	if !t.conditional && obj.CurrentPlaceID != nil {
		return fail(CodeReceiveWithoutMove, "object %s must be moved out before it is received", obj.SerialNumber)
	}

	if req.Type == model.MovementReceive && t.place.OnlyOneProductObject {
		busy, err := v.s.PlaceOccupied(ctx, t.place.ID, obj.ID)
		if err != nil {
			return err
		}
		if busy {
			return fail(CodeBusyPlace, "place %q is occupied", t.place.Name)
		}
	}

	switch {
	case t.current == nil:
		if !t.settings.IsStart() {
			return fail(CodeEdgeNotDefined, "no edge from intake to %s", t.process.Label)
		}
	case !hasEdge:
		return fail(CodeEdgeNotDefined, "no edge from %s to %s", t.current.Label, t.process.Label)
	}

	if !t.settings.Present() {
		return fail(CodeNoProcessSettings, "process %s has no settings", t.process.Label)
	}
	return nil
}

func (v *validator) move(ctx context.Context, t *target, req Request) error {
	obj := t.object

	if t.current != nil && t.current.ID != req.ProcessID {
		return fail(CodeProcessMismatch, "object %s is in %s, not process %d", obj.SerialNumber, t.current.Label, req.ProcessID)
	}
	if err := v.resolveProcess(ctx, t, req.ProcessID); err != nil {
		return err
	}
	if !t.settings.Present() {
		return fail(CodeNoProcessSettings, "process %s has no settings", t.process.Label)
	}
	if obj.CurrentPlaceID == nil {
		return fail(CodeMoveWithoutPlace, "object %s has no place to move from", obj.SerialNumber)
	}

	if t.process.RespectFifoRules {
		residents, err := v.s.ProcessResidents(ctx, t.process.ID)
		if err != nil {
			return err
		}
		if violation := fifo.Check(obj, residents, v.now); violation != nil {
			return fail(CodeFifoViolation, "%s", violation.Error())
		}
	}

	if obj.QuarantineTime != nil && obj.QuarantineTime.After(v.now) {
		return fail(CodeQuarantineActive, "object %s is quarantined until %s",
			obj.SerialNumber, obj.QuarantineTime.UTC().Format(time.RFC3339))
	}

	place, err := v.s.FindPlaceByID(ctx, *obj.CurrentPlaceID)
	if err != nil {
		return err
	}
	t.place = place
	return nil
}

func (v *validator) trash(ctx context.Context, t *target, req Request) error {
	if err := v.resolveProcess(ctx, t, req.ProcessID); err != nil {
		return err
	}
	if err := v.resolvePlace(ctx, t, req.PlaceName); err != nil {
		return err
	}
	if err := usable(t.object, req.FullSN); err != nil {
		return err
	}
	if !t.settings.IsEnding() {
		return fail(CodeNotATrashProcess, "process %s is not a trash process", t.process.Label)
	}
	return nil
}
