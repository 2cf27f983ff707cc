package api

import (
	"net/http"

	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/gin-gonic/gin"
)

type ensureValueSetRequest struct {
	Context datasheet.ValueSetContext `json:"context" binding:"required"`
	PartyID string                    `json:"party_id"`
}

type transitionRequest struct {
	Status datasheet.ValueSetStatus `json:"status" binding:"required"`
}

type valuesRequest struct {
	Values map[string]*string `json:"values"`
}

// varianceRequest sets a variance; a null or missing status clears it.
type varianceRequest struct {
	Status *datasheet.VarianceStatus `json:"status"`
}

func (s *Server) listValueSets(c *gin.Context) {
	views, err := s.engine.ListValueSets(c.Request.Context(), scopeOf(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"value_sets": views})
}

func (s *Server) ensureValueSet(c *gin.Context) {
	var req ensureValueSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	vs, err := s.engine.EnsureValueSet(c.Request.Context(), scopeOf(c), c.Param("id"), req.Context, req.PartyID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, vs)
}

func (s *Server) transitionValueSet(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	vs, err := s.engine.TransitionValueSet(c.Request.Context(), scopeOf(c), c.Param("id"), c.Param("vs"), req.Status)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, vs)
}

func (s *Server) setValueSetValues(c *gin.Context) {
	var req valuesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	view, err := s.engine.SetValueSetValues(c.Request.Context(), scopeOf(c), c.Param("id"), c.Param("vs"), req.Values)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) patchVariance(c *gin.Context) {
	var req varianceRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	override, err := s.engine.PatchVariance(c.Request.Context(), scopeOf(c), c.Param("id"), c.Param("vs"), c.Param("field"), req.Status)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if override == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, override)
}

func (s *Server) compare(c *gin.Context) {
	data, err := s.engine.GetCompareData(c.Request.Context(), scopeOf(c), c.Param("id"), c.Query("party"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}
