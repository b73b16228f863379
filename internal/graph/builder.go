package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"production-tracker-backend/internal/model"
	"production-tracker-backend/internal/parse"
	"production-tracker-backend/internal/store"
)

var (
	// ErrInvalid is returned for definitions that can never be stored.
	ErrInvalid = errors.New("invalid definition")
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when the record already exists.
	ErrDuplicate = errors.New("already exists")
)

// Builder creates the configuration records the movement engine reads:
// products, processes with their settings, edges, places, and intake units.
type Builder struct {
	s store.Store
}

func NewBuilder(s store.Store) *Builder {
	return &Builder{s: s}
}

// ProcessSpec describes a process and its settings variant.
type ProcessSpec struct {
	ProductID          int64  `json:"product_id"`
	Label              string `json:"label"`
	Order              int    `json:"order"`
	Kind               Kind   `json:"kind"`
	IsRequired         bool   `json:"is_required"`
	KillingApp         bool   `json:"killing_app"`
	RespectFifoRules   bool   `json:"respect_fifo_rules"`
	ChangingExpDate    bool   `json:"changing_exp_date"`
	HowMuchDaysExpDate int    `json:"how_much_days_exp_date"`
	ExpectingChild     bool   `json:"expecting_child"`
	EndingProcess      bool   `json:"ending_process"`

	QuarantineHours         *int  `json:"quarantine_hours"`
	QuarantineMinutes       *int  `json:"quarantine_minutes"`
	MaxTimeInProcessMinutes *int  `json:"max_time_in_process_minutes"`
	CondPath                *bool `json:"cond_path"`
}

func wrap(err error) error {
	if store.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func (b *Builder) CreateProduct(ctx context.Context, name string) (*model.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: product name is required", ErrInvalid)
	}
	p := &model.Product{Name: name}
	if err := b.s.Create(ctx, p); err != nil {
		return nil, wrap(err)
	}
	return p, nil
}

// CreateProcess stores the process and its settings row in one transaction.
func (b *Builder) CreateProcess(ctx context.Context, spec ProcessSpec) (*model.Process, error) {
	spec.Label = strings.TrimSpace(spec.Label)
	if spec.Label == "" {
		return nil, fmt.Errorf("%w: process label is required", ErrInvalid)
	}
	switch spec.Kind {
	case KindDefault, KindStart, KindCondition, KindEnding:
	default:
		return nil, fmt.Errorf("%w: unknown settings kind %q", ErrInvalid, spec.Kind)
	}
	if spec.ChangingExpDate && spec.HowMuchDaysExpDate <= 0 {
		return nil, fmt.Errorf("%w: how_much_days_exp_date must be positive", ErrInvalid)
	}

	process := &model.Process{
		ProductID:          spec.ProductID,
		Label:              spec.Label,
		Order:              spec.Order,
		IsRequired:         spec.IsRequired,
		KillingApp:         spec.KillingApp,
		RespectFifoRules:   spec.RespectFifoRules,
		ChangingExpDate:    spec.ChangingExpDate,
		HowMuchDaysExpDate: spec.HowMuchDaysExpDate,
		ExpectingChild:     spec.ExpectingChild,
		EndingProcess:      spec.EndingProcess,
	}
	err := b.s.WithTx(ctx, func(tx store.Store) error {
		product, err := tx.FindProduct(ctx, spec.ProductID)
		if err != nil {
			return err
		}
		if product == nil {
			return fmt.Errorf("%w: product %d", ErrNotFound, spec.ProductID)
		}
		if err := tx.Create(ctx, process); err != nil {
			return wrap(err)
		}
		process.Settings = &model.ProcessSettings{
			ProcessID:               process.ID,
			Kind:                    model.SettingsKind(spec.Kind),
			QuarantineHours:         spec.QuarantineHours,
			QuarantineMinutes:       spec.QuarantineMinutes,
			MaxTimeInProcessMinutes: spec.MaxTimeInProcessMinutes,
			CondPath:                spec.CondPath,
		}
		return wrap(tx.Create(ctx, process.Settings))
	})
	if err != nil {
		return nil, err
	}
	return process, nil
}

// CreateEdge links two processes of the same product.
func (b *Builder) CreateEdge(ctx context.Context, sourceID, targetID int64) (*model.Edge, error) {
	if sourceID == targetID {
		return nil, fmt.Errorf("%w: a process cannot lead to itself", ErrInvalid)
	}
	edge := &model.Edge{SourceID: sourceID, TargetID: targetID}
	err := b.s.WithTx(ctx, func(tx store.Store) error {
		source, err := b.process(ctx, tx, sourceID)
		if err != nil {
			return err
		}
		target, err := b.process(ctx, tx, targetID)
		if err != nil {
			return err
		}
		if source.ProductID != target.ProductID {
			return fmt.Errorf("%w: %s and %s belong to different products", ErrInvalid, source.Label, target.Label)
		}
		return wrap(tx.Create(ctx, edge))
	})
	if err != nil {
		return nil, err
	}
	return edge, nil
}

// CreatePlace adds a place to a process. Places of killing-app processes get
// their kill flag record in the same transaction.
func (b *Builder) CreatePlace(ctx context.Context, name string, processID int64, onlyOne bool) (*model.Place, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: place name is required", ErrInvalid)
	}
	place := &model.Place{Name: name, ProcessID: processID, OnlyOneProductObject: onlyOne}
	err := b.s.WithTx(ctx, func(tx store.Store) error {
		process, err := b.process(ctx, tx, processID)
		if err != nil {
			return err
		}
		if err := tx.Create(ctx, place); err != nil {
			return wrap(err)
		}
		if process.KillingApp {
			return tx.Create(ctx, &model.AppToKill{PlaceID: place.ID})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return place, nil
}

// RegisterObject creates a fresh unit that has not entered any process.
func (b *Builder) RegisterObject(ctx context.Context, productID int64, rawScan string, expireDate *time.Time) (*model.ProductObject, error) {
	var obj *model.ProductObject
	err := b.s.WithTx(ctx, func(tx store.Store) error {
		var err error
		obj, err = b.register(ctx, tx, productID, rawScan, expireDate, false)
		return err
	})
	return obj, err
}

// RegisterMother creates a mother unit and links the given existing units
// under it. Children must belong to the same product, be active and have no
// mother yet.
func (b *Builder) RegisterMother(ctx context.Context, productID int64, rawScan string, childFullSNs []string) (*model.ProductObject, error) {
	if len(childFullSNs) == 0 {
		return nil, fmt.Errorf("%w: a mother needs at least one child", ErrInvalid)
	}
	var mother *model.ProductObject
	err := b.s.WithTx(ctx, func(tx store.Store) error {
		var err error
		if mother, err = b.register(ctx, tx, productID, rawScan, nil, true); err != nil {
			return err
		}
		for _, raw := range childFullSNs {
			fullSN := parse.ParseScan(raw).FullSN
			child, err := tx.FindProductObjectByFullSN(ctx, fullSN)
			if err != nil {
				return err
			}
			switch {
			case child == nil:
				return fmt.Errorf("%w: object %s", ErrNotFound, fullSN)
			case child.ProductID != productID:
				return fmt.Errorf("%w: object %s belongs to another product", ErrInvalid, child.SerialNumber)
			case child.End:
				return fmt.Errorf("%w: object %s has ended", ErrInvalid, child.SerialNumber)
			case child.MotherObjectID != nil:
				return fmt.Errorf("%w: object %s already has a mother", ErrInvalid, child.SerialNumber)
			case child.ID == mother.ID:
				return fmt.Errorf("%w: a mother cannot contain itself", ErrInvalid)
			}
			child.MotherObjectID = &mother.ID
			if err := tx.SaveObject(ctx, child); err != nil {
				return err
			}
			mother.Children = append(mother.Children, *child)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mother, nil
}

func (b *Builder) register(ctx context.Context, tx store.Store, productID int64, rawScan string, expireDate *time.Time, mother bool) (*model.ProductObject, error) {
	scan := parse.ParseScan(rawScan)
	if scan.SerialNumber == "" {
		return nil, fmt.Errorf("%w: serial number is required", ErrInvalid)
	}
	product, err := tx.FindProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, fmt.Errorf("%w: product %d", ErrNotFound, productID)
	}
	obj := &model.ProductObject{
		SerialNumber: scan.SerialNumber,
		FullSN:       scan.FullSN,
		ProductID:    productID,
		IsMother:     mother,
		ExpireDate:   expireDate,
	}
	if err := tx.Create(ctx, obj); err != nil {
		return nil, wrap(err)
	}
	return obj, nil
}

func (b *Builder) process(ctx context.Context, tx store.Store, id int64) (*model.Process, error) {
	p, err := tx.FindProcess(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: process %d", ErrNotFound, id)
	}
	return p, nil
}
