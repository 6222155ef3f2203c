package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tradingcore/operation"
)

func (s *Server) handleListOperations(c *gin.Context) {
	tid := tenantID(c)
	port, err := s.port(tid)
	if err != nil {
		respondError(c, http.StatusBadGateway, err)
		return
	}
	cards, err := operation.ProjectPortfolio(c.Request.Context(), port, s.operations, tid)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": cards})
}

func (s *Server) handleGetOperation(c *gin.Context) {
	tid := tenantID(c)
	id, err := parseInt64(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, errors.New("invalid operation id"))
		return
	}
	ctx := c.Request.Context()
	op, err := s.operations.GetByIDForTenant(ctx, id, tid)
	if err != nil {
		respondError(c, http.StatusNotFound, operation.ErrNotFound)
		return
	}
	port, err := s.port(tid)
	if err != nil {
		respondError(c, http.StatusBadGateway, err)
		return
	}
	card, err := operation.Project(ctx, port, op)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"operation": card})
}

func (s *Server) handleCancelOperation(c *gin.Context) {
	tid := tenantID(c)
	id, err := parseInt64(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, errors.New("invalid operation id"))
		return
	}
	op, err := operation.Cancel(c.Request.Context(), s.operations, id, tid)
	if err != nil {
		var conflict *operation.ErrConflict
		if errors.As(err, &conflict) {
			respondError(c, http.StatusConflict, conflict)
			return
		}
		respondError(c, http.StatusNotFound, operation.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"operation": op})
}

func (s *Server) handlePortfolioPositions(c *gin.Context) {
	s.handleListOperations(c)
}
