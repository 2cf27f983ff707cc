package api

import (
	"net/http"

	"github.com/dyluth/lodge/internal/lifecycle"
	"github.com/gin-gonic/gin"
)

type createRatingsRequest struct {
	Title   string            `json:"title"`
	Ratings map[string]string `json:"ratings"`
}

func (s *Server) listRatings(c *gin.Context) {
	blocks, err := s.engine.ListRatingsBlocks(c.Request.Context(), scopeOf(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ratings_blocks": blocks})
}

func (s *Server) createRatings(c *gin.Context) {
	var req createRatingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	block, err := s.engine.CreateRatingsBlock(c.Request.Context(), scopeOf(c), c.Param("id"), req.Title, req.Ratings)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, block)
}

func (s *Server) updateRatings(c *gin.Context) {
	var req lifecycle.RatingsPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	block, err := s.engine.UpdateRatingsBlock(c.Request.Context(), scopeOf(c), c.Param("id"), c.Param("block"), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, block)
}

func (s *Server) deleteRatings(c *gin.Context) {
	if err := s.engine.DeleteRatingsBlock(c.Request.Context(), scopeOf(c), c.Param("id"), c.Param("block")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) lockRatings(c *gin.Context) {
	block, err := s.engine.LockRatingsBlock(c.Request.Context(), scopeOf(c), c.Param("id"), c.Param("block"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, block)
}

func (s *Server) unlockRatings(c *gin.Context) {
	block, err := s.engine.UnlockRatingsBlock(c.Request.Context(), scopeOf(c), c.Param("id"), c.Param("block"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, block)
}
