package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"production-tracker-backend/internal/graph"
	"production-tracker-backend/internal/model"
	"production-tracker-backend/internal/store"
)

type processView struct {
	ID                 int64      `json:"id"`
	ProductID          int64      `json:"product_id"`
	Label              string     `json:"label"`
	Order              int        `json:"order"`
	Kind               graph.Kind `json:"kind"`
	IsRequired         bool       `json:"is_required"`
	KillingApp         bool       `json:"killing_app"`
	RespectFifoRules   bool       `json:"respect_fifo_rules"`
	ChangingExpDate    bool       `json:"changing_exp_date"`
	HowMuchDaysExpDate int        `json:"how_much_days_exp_date"`
	ExpectingChild     bool       `json:"expecting_child"`
	EndingProcess      bool       `json:"ending_process"`
	CondPath           *bool      `json:"cond_path,omitempty"`
}

func newProcessView(p *model.Process) processView {
	v := processView{
		ID:                 p.ID,
		ProductID:          p.ProductID,
		Label:              p.Label,
		Order:              p.Order,
		Kind:               graph.Resolve(p).Kind,
		IsRequired:         p.IsRequired,
		KillingApp:         p.KillingApp,
		RespectFifoRules:   p.RespectFifoRules,
		ChangingExpDate:    p.ChangingExpDate,
		HowMuchDaysExpDate: p.HowMuchDaysExpDate,
		ExpectingChild:     p.ExpectingChild,
		EndingProcess:      p.EndingProcess,
	}
	if path, ok := graph.Resolve(p).CondPath(); ok {
		v.CondPath = &path
	}
	return v
}

type edgeView struct {
	ID       int64 `json:"id"`
	SourceID int64 `json:"source_id"`
	TargetID int64 `json:"target_id"`
}

type objectView struct {
	ID               int64      `json:"id"`
	SerialNumber     string     `json:"serial_number"`
	FullSN           string     `json:"full_sn"`
	ProductID        int64      `json:"product_id"`
	CurrentProcessID *int64     `json:"current_process_id"`
	CurrentPlaceID   *int64     `json:"current_place_id"`
	MotherObjectID   *int64     `json:"mother_object_id"`
	ExMotherID       *int64     `json:"ex_mother_id"`
	IsMother         bool       `json:"is_mother"`
	End              bool       `json:"end"`
	QuarantineTime   *time.Time `json:"quarantine_time"`
	ExpDateInProcess *time.Time `json:"exp_date_in_process"`
	ExpireDate       *time.Time `json:"expire_date"`
	MaxTimeDeadline  *time.Time `json:"max_time_deadline"`
	CreatedAt        time.Time  `json:"created_at"`
	Children         []string   `json:"children,omitempty"`
	NextProcessIDs   []int64    `json:"next_process_ids,omitempty"`
}

func newObjectView(o *model.ProductObject) objectView {
	return objectView{
		ID:               o.ID,
		SerialNumber:     o.SerialNumber,
		FullSN:           o.FullSN,
		ProductID:        o.ProductID,
		CurrentProcessID: o.CurrentProcessID,
		CurrentPlaceID:   o.CurrentPlaceID,
		MotherObjectID:   o.MotherObjectID,
		ExMotherID:       o.ExMotherID,
		IsMother:         o.IsMother,
		End:              o.End,
		QuarantineTime:   o.QuarantineTime,
		ExpDateInProcess: o.ExpDateInProcess,
		ExpireDate:       o.ExpireDate,
		MaxTimeDeadline:  o.MaxTimeDeadline,
		CreatedAt:        o.CreatedAt,
	}
}

type logView struct {
	ProcessID    int64              `json:"process_id"`
	PlaceName    string             `json:"place_name"`
	MovementType model.MovementType `json:"movement_type"`
	EntryTime    time.Time          `json:"entry_time"`
	WhoEntry     string             `json:"who_entry"`
	ExitTime     *time.Time         `json:"exit_time"`
	WhoExit      string             `json:"who_exit"`
	PrinterName  string             `json:"printer_name,omitempty"`
}

// GetProductGraph handles GET /api/products/:product_id/graph.
func (h *Handler) GetProductGraph(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product ID"})
		return
	}

	ctx := c.Request.Context()
	product, err := h.store.FindProduct(ctx, productID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if product == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}

	processes, edges, err := h.store.ProductGraph(ctx, productID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := struct {
		ProductID int64         `json:"product_id"`
		Name      string        `json:"name"`
		Processes []processView `json:"processes"`
		Edges     []edgeView    `json:"edges"`
	}{ProductID: product.ID, Name: product.Name, Processes: []processView{}, Edges: []edgeView{}}
	for i := range processes {
		resp.Processes = append(resp.Processes, newProcessView(&processes[i]))
	}
	for _, e := range edges {
		resp.Edges = append(resp.Edges, edgeView{ID: e.ID, SourceID: e.SourceID, TargetID: e.TargetID})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) findObject(c *gin.Context) (*model.ProductObject, bool) {
	obj, err := h.store.FindProductObjectByFullSN(c.Request.Context(), c.Param("full_sn"))
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	if obj == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
		return nil, false
	}
	return obj, true
}

// GetObject handles GET /api/objects/:full_sn.
func (h *Handler) GetObject(c *gin.Context) {
	obj, ok := h.findObject(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	view := newObjectView(obj)
	if obj.CurrentProcessID != nil {
		edges, err := h.store.Edges(ctx, *obj.CurrentProcessID, store.Outgoing)
		if err != nil {
			h.respondError(c, err)
			return
		}
		for _, e := range edges {
			view.NextProcessIDs = append(view.NextProcessIDs, e.TargetID)
		}
	}
	if obj.IsMother {
		children, err := h.store.Children(ctx, obj.ID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		for _, child := range children {
			view.Children = append(view.Children, child.SerialNumber)
		}
	}
	c.JSON(http.StatusOK, view)
}

// GetObjectLogs handles GET /api/objects/:full_sn/logs.
func (h *Handler) GetObjectLogs(c *gin.Context) {
	obj, ok := h.findObject(c)
	if !ok {
		return
	}
	logs, err := h.store.ObjectLogs(c.Request.Context(), obj.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	resp := make([]logView, 0, len(logs))
	for _, l := range logs {
		resp = append(resp, logView{
			ProcessID:    l.ProcessID,
			PlaceName:    l.PlaceName,
			MovementType: l.MovementType,
			EntryTime:    l.EntryTime,
			WhoEntry:     l.WhoEntry,
			ExitTime:     l.ExitTime,
			WhoExit:      l.WhoExit,
			PrinterName:  l.PrinterName,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// GetKillFlag handles GET /api/places/:place_id/kill_flag. Equipment attached
// to the place polls it to know whether it must halt.
func (h *Handler) GetKillFlag(c *gin.Context) {
	placeID, err := strconv.ParseInt(c.Param("place_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid place ID"})
		return
	}
	flag, err := h.store.AppToKill(c.Request.Context(), placeID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if flag == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "kill flag not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"place_id": flag.PlaceID, "killing_flag": flag.KillingFlag})
}
