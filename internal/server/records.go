package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/duetrack/duetrack/internal/logging"
	"github.com/duetrack/duetrack/internal/remote"
)

// The record endpoints are the wire surface the sync agents speak. Error
// responses always carry both a human reason and a machine code so agents
// can distinguish "try again later" from "never retry this".

type updateBody struct {
	Filter remote.Filter `json:"filter"`
	Patch  remote.Record `json:"patch"`
}

func (s *Server) insertRecord(c *gin.Context) {
	table := c.Param("table")

	var rec remote.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": remote.CodeConstraint})
		return
	}

	created, err := s.records.Insert(c.Request.Context(), table, rec)
	if err != nil {
		s.writeRecordError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) updateRecords(c *gin.Context) {
	table := c.Param("table")

	var body updateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": remote.CodeConstraint})
		return
	}

	if err := s.records.Update(c.Request.Context(), table, body.Filter, body.Patch); err != nil {
		s.writeRecordError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) selectRecords(c *gin.Context) {
	table := c.Param("table")

	filter := remote.Filter{}
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			filter[key] = values[0]
		}
	}

	rows, err := s.records.Select(c.Request.Context(), table, filter)
	if err != nil {
		s.writeRecordError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

// writeRecordError maps store errors to HTTP statuses: rejections are 4xx
// with their code preserved, everything else is a 5xx the agent will retry.
func (s *Server) writeRecordError(c *gin.Context, err error) {
	if remote.IsTransient(err) {
		logging.L(c.Request.Context()).Error("record store failure", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
		return
	}

	status := http.StatusConflict
	switch remote.ErrCode(err) {
	case remote.CodeUnknownTable:
		status = http.StatusNotFound
	case remote.CodeUnauthorized:
		status = http.StatusForbidden
	case remote.CodeConstraint:
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": remote.Reason(err), "code": remote.ErrCode(err)})
}
