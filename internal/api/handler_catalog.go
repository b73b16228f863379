package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"production-tracker-backend/internal/graph"
)

type createProductRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) CreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	p, err := h.builder.CreateProduct(c.Request.Context(), req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": p.ID, "name": p.Name})
}

// CreateProcess stores a process together with its settings variant.
func (h *Handler) CreateProcess(c *gin.Context) {
	var spec graph.ProcessSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	p, err := h.builder.CreateProcess(c.Request.Context(), spec)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newProcessView(p))
}

type createEdgeRequest struct {
	SourceID int64 `json:"source_id" binding:"required"`
	TargetID int64 `json:"target_id" binding:"required"`
}

func (h *Handler) CreateEdge(c *gin.Context) {
	var req createEdgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	e, err := h.builder.CreateEdge(c.Request.Context(), req.SourceID, req.TargetID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, edgeView{ID: e.ID, SourceID: e.SourceID, TargetID: e.TargetID})
}

type createPlaceRequest struct {
	Name                 string `json:"name" binding:"required"`
	ProcessID            int64  `json:"process_id" binding:"required"`
	OnlyOneProductObject bool   `json:"only_one_product_object"`
}

func (h *Handler) CreatePlace(c *gin.Context) {
	var req createPlaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	p, err := h.builder.CreatePlace(c.Request.Context(), req.Name, req.ProcessID, req.OnlyOneProductObject)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":                      p.ID,
		"name":                    p.Name,
		"process_id":              p.ProcessID,
		"only_one_product_object": p.OnlyOneProductObject,
	})
}

type registerObjectRequest struct {
	ProductID  int64      `json:"product_id" binding:"required"`
	FullSN     string     `json:"full_sn" binding:"required"`
	ExpireDate *time.Time `json:"expire_date"`
}

// RegisterObject creates a fresh unit at intake.
func (h *Handler) RegisterObject(c *gin.Context) {
	var req registerObjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	obj, err := h.builder.RegisterObject(c.Request.Context(), req.ProductID, req.FullSN, req.ExpireDate)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newObjectView(obj))
}

type registerMotherRequest struct {
	ProductID int64    `json:"product_id" binding:"required"`
	FullSN    string   `json:"full_sn" binding:"required"`
	Children  []string `json:"children" binding:"required,min=1"`
}

// RegisterMother creates a mother unit holding existing units.
func (h *Handler) RegisterMother(c *gin.Context) {
	var req registerMotherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	mother, err := h.builder.RegisterMother(c.Request.Context(), req.ProductID, req.FullSN, req.Children)
	if err != nil {
		h.respondError(c, err)
		return
	}
	view := newObjectView(mother)
	for _, child := range mother.Children {
		view.Children = append(view.Children, child.SerialNumber)
	}
	c.JSON(http.StatusCreated, view)
}
