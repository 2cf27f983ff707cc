package api

import (
	"net/http"

	"github.com/dyluth/lodge/internal/lifecycle"
	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/gin-gonic/gin"
)

type fromTemplateRequest struct {
	Header datasheet.Header `json:"header"`
}

type rejectRequest struct {
	Comment string `json:"comment"`
}

type restoreRequest struct {
	Comment string `json:"comment"`
}

type pageQuery struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}

func (s *Server) listDocuments(c *gin.Context) {
	summaries, err := s.engine.ListSummaries(c.Request.Context(), scopeOf(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": summaries})
}

func (s *Server) createDocument(c *gin.Context) {
	var req lifecycle.NewDocument
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	doc, err := s.engine.CreateDocument(c.Request.Context(), scopeOf(c), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (s *Server) createFromTemplate(c *gin.Context) {
	var req fromTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	doc, err := s.engine.CreateFromTemplate(c.Request.Context(), scopeOf(c), c.Param("id"), req.Header)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (s *Server) getDocument(c *gin.Context) {
	state, err := s.engine.GetDocument(c.Request.Context(), scopeOf(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) updateDocument(c *gin.Context) {
	var req lifecycle.DocumentUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.engine.UpdateDocument(c.Request.Context(), scopeOf(c), c.Param("id"), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) getSummary(c *gin.Context) {
	summary, err := s.engine.GetSummary(c.Request.Context(), scopeOf(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) verify(c *gin.Context) {
	doc, err := s.engine.Verify(c.Request.Context(), scopeOf(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) approve(c *gin.Context) {
	doc, err := s.engine.Approve(c.Request.Context(), scopeOf(c), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) reject(c *gin.Context) {
	var req rejectRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	doc, err := s.engine.Reject(c.Request.Context(), scopeOf(c), c.Param("id"), req.Comment)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) listRevisions(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	page, err := s.engine.ListRevisions(c.Request.Context(), scopeOf(c), c.Param("id"), q.Page, q.PageSize)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) getRevision(c *gin.Context) {
	detail, err := s.engine.GetRevision(c.Request.Context(), scopeOf(c), c.Param("id"), c.Param("rev"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) restore(c *gin.Context) {
	var req restoreRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	res, err := s.engine.Restore(c.Request.Context(), scopeOf(c), c.Param("id"), c.Param("rev"), req.Comment)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// bindOptionalJSON decodes the body into v when there is one. It reports
// false after writing the error response.
func bindOptionalJSON(c *gin.Context, v interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		badRequest(c, err)
		return false
	}
	return true
}
