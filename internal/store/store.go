package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"production-tracker-backend/internal/model"
)

// Direction selects which end of an edge a process sits on.
type Direction int

const (
	Outgoing Direction = iota // process is the edge source
	Incoming                  // process is the edge target
)

// Store defines the repository used by the movement engine, the graph
// builder and the HTTP layer. Find* methods return (nil, nil) when the row
// does not exist.
type Store interface {
	DB() *gorm.DB
	// WithTx runs fn in one transaction. Nested calls reuse the outer one.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	FindProduct(ctx context.Context, id int64) (*model.Product, error)
	FindProductObjectByFullSN(ctx context.Context, fullSN string) (*model.ProductObject, error)
	FindProductObjectByID(ctx context.Context, id int64) (*model.ProductObject, error)
	FindProcess(ctx context.Context, id int64) (*model.Process, error)
	FindPlace(ctx context.Context, name string, processID int64) (*model.Place, error)
	FindPlaceByID(ctx context.Context, id int64) (*model.Place, error)

	HasEdge(ctx context.Context, sourceID, targetID int64) (bool, error)
	Edges(ctx context.Context, processID int64, dir Direction) ([]model.Edge, error)
	ProductGraph(ctx context.Context, productID int64) ([]model.Process, []model.Edge, error)

	PlaceOccupied(ctx context.Context, placeID, excludeObjectID int64) (bool, error)
	LatestConditionLog(ctx context.Context, processID, objectID int64) (*model.ConditionLog, error)
	AppToKill(ctx context.Context, placeID int64) (*model.AppToKill, error)
	SetKillFlag(ctx context.Context, placeID int64, flag bool) (bool, error)

	Children(ctx context.Context, motherID int64) ([]model.ProductObject, error)
	ChildCount(ctx context.Context, motherID int64) (int64, error)
	ProcessResidents(ctx context.Context, processID int64) ([]model.ProductObject, error)

	SaveObject(ctx context.Context, obj *model.ProductObject) error
	AppendLog(ctx context.Context, entry *model.ProductObjectProcessLog) error
	CloseOpenLog(ctx context.Context, objectID, processID int64, exitTime time.Time, whoExit string) (bool, error)
	AppendConditionLog(ctx context.Context, entry *model.ConditionLog) error
	ObjectLogs(ctx context.Context, objectID int64) ([]model.ProductObjectProcessLog, error)

	Create(ctx context.Context, records ...any) error

	ExpiredQuarantines(ctx context.Context, now time.Time) ([]model.ProductObject, error)
	OverdueObjects(ctx context.Context, now time.Time) ([]model.ProductObject, error)
	// ReleaseQuarantine clears an expired quarantine. It reports false when a
	// concurrent movement already replaced or cleared it.
	ReleaseQuarantine(ctx context.Context, objectID int64, now time.Time) (bool, error)
	// MarkOverdue flags an overdue unit once.
	MarkOverdue(ctx context.Context, objectID int64, now time.Time) (bool, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db   *gorm.DB
	lock bool // row locks are issued only inside a transaction on dialects that support them
	inTx bool
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db, lock: db.Dialector.Name() == "postgres"}
}

func (s *gormStore) DB() *gorm.DB { return s.db }

func (s *gormStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx, lock: s.lock, inTx: true})
	})
}

func (s *gormStore) q(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// forUpdate adds SELECT ... FOR UPDATE when running inside a transaction.
func (s *gormStore) forUpdate(q *gorm.DB) *gorm.DB {
	if s.lock && s.inTx {
		return q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func (s *gormStore) FindProduct(ctx context.Context, id int64) (*model.Product, error) {
	var p model.Product
	if err := s.q(ctx).Where("id = ?", id).Limit(1).Find(&p).Error; err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (s *gormStore) FindProductObjectByFullSN(ctx context.Context, fullSN string) (*model.ProductObject, error) {
	var obj model.ProductObject
	err := s.forUpdate(s.q(ctx).Where("full_sn = ?", fullSN)).Limit(1).Find(&obj).Error
	if err != nil {
		return nil, err
	}
	if obj.ID == 0 {
		return nil, nil
	}
	return &obj, nil
}

func (s *gormStore) FindProductObjectByID(ctx context.Context, id int64) (*model.ProductObject, error) {
	var obj model.ProductObject
	if err := s.q(ctx).Where("id = ?", id).Limit(1).Find(&obj).Error; err != nil {
		return nil, err
	}
	if obj.ID == 0 {
		return nil, nil
	}
	return &obj, nil
}

func (s *gormStore) FindProcess(ctx context.Context, id int64) (*model.Process, error) {
	var p model.Process
	if err := s.q(ctx).Preload("Settings").Where("id = ?", id).Limit(1).Find(&p).Error; err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (s *gormStore) FindPlace(ctx context.Context, name string, processID int64) (*model.Place, error) {
	var place model.Place
	err := s.forUpdate(s.q(ctx).Where("name = ? AND process_id = ?", name, processID)).Limit(1).Find(&place).Error
	if err != nil {
		return nil, err
	}
	if place.ID == 0 {
		return nil, nil
	}
	return &place, nil
}

func (s *gormStore) FindPlaceByID(ctx context.Context, id int64) (*model.Place, error) {
	var place model.Place
	if err := s.q(ctx).Where("id = ?", id).Limit(1).Find(&place).Error; err != nil {
		return nil, err
	}
	if place.ID == 0 {
		return nil, nil
	}
	return &place, nil
}

func (s *gormStore) HasEdge(ctx context.Context, sourceID, targetID int64) (bool, error) {
	var count int64
	err := s.q(ctx).Model(&model.Edge{}).
		Where("source_id = ? AND target_id = ?", sourceID, targetID).
		Count(&count).Error
	return count > 0, err
}

func (s *gormStore) Edges(ctx context.Context, processID int64, dir Direction) ([]model.Edge, error) {
	column := "source_id"
	if dir == Incoming {
		column = "target_id"
	}
	var edges []model.Edge
	err := s.q(ctx).Where(column+" = ?", processID).Order("id").Find(&edges).Error
	return edges, err
}

func (s *gormStore) ProductGraph(ctx context.Context, productID int64) ([]model.Process, []model.Edge, error) {
	var processes []model.Process
	if err := s.q(ctx).Preload("Settings").
		Where("product_id = ?", productID).
		Order("order_no, id").
		Find(&processes).Error; err != nil {
		return nil, nil, err
	}
	if len(processes) == 0 {
		return processes, nil, nil
	}
	ids := make([]int64, len(processes))
	for i, p := range processes {
		ids[i] = p.ID
	}
	var edges []model.Edge
	err := s.q(ctx).Where("source_id IN ?", ids).Order("id").Find(&edges).Error
	return processes, edges, err
}

func (s *gormStore) PlaceOccupied(ctx context.Context, placeID, excludeObjectID int64) (bool, error) {
	var count int64
	err := s.q(ctx).Model(&model.ProductObject{}).
		Where("current_place_id = ? AND is_end = ? AND id <> ?", placeID, false, excludeObjectID).
		Count(&count).Error
	return count > 0, err
}

func (s *gormStore) LatestConditionLog(ctx context.Context, processID, objectID int64) (*model.ConditionLog, error) {
	var entry model.ConditionLog
	err := s.q(ctx).
		Where("process_id = ? AND product_object_id = ?", processID, objectID).
		Order("created_at DESC, id DESC").
		Limit(1).
		Find(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (s *gormStore) AppToKill(ctx context.Context, placeID int64) (*model.AppToKill, error) {
	var flag model.AppToKill
	if err := s.q(ctx).Where("place_id = ?", placeID).Limit(1).Find(&flag).Error; err != nil {
		return nil, err
	}
	if flag.ID == 0 {
		return nil, nil
	}
	return &flag, nil
}

// SetKillFlag reports false when the place has no flag record.
func (s *gormStore) SetKillFlag(ctx context.Context, placeID int64, flag bool) (bool, error) {
	res := s.q(ctx).Model(&model.AppToKill{}).
		Where("place_id = ?", placeID).
		Updates(map[string]any{"killing_flag": flag, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *gormStore) Children(ctx context.Context, motherID int64) ([]model.ProductObject, error) {
	var children []model.ProductObject
	err := s.forUpdate(s.q(ctx).Where("mother_object_id = ?", motherID)).Order("id").Find(&children).Error
	return children, err
}

func (s *gormStore) ChildCount(ctx context.Context, motherID int64) (int64, error) {
	var count int64
	err := s.q(ctx).Model(&model.ProductObject{}).Where("mother_object_id = ?", motherID).Count(&count).Error
	return count, err
}

// ProcessResidents loads every non-ended unit in a process with its place and
// children, which is what the FIFO checker scans.
func (s *gormStore) ProcessResidents(ctx context.Context, processID int64) ([]model.ProductObject, error) {
	var residents []model.ProductObject
	err := s.q(ctx).
		Preload("CurrentPlace").
		Preload("Children").
		Where("current_process_id = ? AND is_end = ?", processID, false).
		Order("id").
		Find(&residents).Error
	return residents, err
}

func (s *gormStore) SaveObject(ctx context.Context, obj *model.ProductObject) error {
	if err := s.q(ctx).Omit(clause.Associations).Save(obj).Error; err != nil {
		return fmt.Errorf("failed to save product object %s: %w", obj.SerialNumber, err)
	}
	return nil
}

func (s *gormStore) AppendLog(ctx context.Context, entry *model.ProductObjectProcessLog) error {
	if err := s.q(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append process log for object %d: %w", entry.ProductObjectID, err)
	}
	return nil
}

// CloseOpenLog stamps the exit of the newest open log row of (object, process).
func (s *gormStore) CloseOpenLog(ctx context.Context, objectID, processID int64, exitTime time.Time, whoExit string) (bool, error) {
	var open model.ProductObjectProcessLog
	err := s.q(ctx).
		Where("product_object_id = ? AND process_id = ? AND exit_time IS NULL", objectID, processID).
		Order("entry_time DESC, id DESC").
		Limit(1).
		Find(&open).Error
	if err != nil {
		return false, err
	}
	if open.ID == 0 {
		return false, nil
	}
	res := s.q(ctx).Model(&model.ProductObjectProcessLog{}).
		Where("id = ?", open.ID).
		Updates(map[string]any{"exit_time": exitTime, "who_exit": whoExit})
	if res.Error != nil {
		return false, fmt.Errorf("failed to close process log %d: %w", open.ID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *gormStore) AppendConditionLog(ctx context.Context, entry *model.ConditionLog) error {
	if err := s.q(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append condition log for object %d: %w", entry.ProductObjectID, err)
	}
	return nil
}

func (s *gormStore) ObjectLogs(ctx context.Context, objectID int64) ([]model.ProductObjectProcessLog, error) {
	var logs []model.ProductObjectProcessLog
	err := s.q(ctx).Where("product_object_id = ?", objectID).Order("entry_time, id").Find(&logs).Error
	return logs, err
}

func (s *gormStore) Create(ctx context.Context, records ...any) error {
	for _, r := range records {
		if err := s.q(ctx).Create(r).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *gormStore) ExpiredQuarantines(ctx context.Context, now time.Time) ([]model.ProductObject, error) {
	var objs []model.ProductObject
	err := s.q(ctx).
		Where("quarantine_time IS NOT NULL AND quarantine_time <= ? AND is_end = ?", now, false).
		Order("quarantine_time").
		Find(&objs).Error
	return objs, err
}

func (s *gormStore) OverdueObjects(ctx context.Context, now time.Time) ([]model.ProductObject, error) {
	var objs []model.ProductObject
	err := s.q(ctx).
		Where("max_time_deadline IS NOT NULL AND max_time_deadline <= ? AND overdue_notified = ? AND is_end = ?", now, false, false).
		Order("max_time_deadline").
		Find(&objs).Error
	return objs, err
}

func (s *gormStore) ReleaseQuarantine(ctx context.Context, objectID int64, now time.Time) (bool, error) {
	res := s.q(ctx).Model(&model.ProductObject{}).
		Where("id = ? AND quarantine_time IS NOT NULL AND quarantine_time <= ?", objectID, now).
		Updates(map[string]any{"quarantine_time": nil, "updated_at": now})
	if res.Error != nil {
		return false, fmt.Errorf("failed to release quarantine of object %d: %w", objectID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *gormStore) MarkOverdue(ctx context.Context, objectID int64, now time.Time) (bool, error) {
	res := s.q(ctx).Model(&model.ProductObject{}).
		Where("id = ? AND overdue_notified = ? AND max_time_deadline IS NOT NULL AND max_time_deadline <= ?", objectID, false, now).
		Updates(map[string]any{"overdue_notified": true, "updated_at": now})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark object %d overdue: %w", objectID, res.Error)
	}
	return res.RowsAffected > 0, nil
}
