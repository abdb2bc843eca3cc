package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mfenderov/protokb/internal/apperr"
	"github.com/mfenderov/protokb/pkg/models"
)

func (s *Server) handleProtocols(c *gin.Context) {
	if s.deps.Catalog == nil {
		handleError(c, apperr.Missing("airtable"))
		return
	}
	items, err := s.deps.Catalog.FindProtocols(c.Request.Context(), c.Query("q"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, orEmpty(items))
}

func (s *Server) handleSubstances(c *gin.Context) {
	if s.deps.Catalog == nil {
		handleError(c, apperr.Missing("airtable"))
		return
	}
	items, err := s.deps.Catalog.FindSubstances(c.Request.Context(), c.Query("q"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, orEmpty(items))
}

func (s *Server) handleSymptoms(c *gin.Context) {
	if s.deps.Catalog == nil {
		handleError(c, apperr.Missing("airtable"))
		return
	}
	items, err := s.deps.Catalog.FindSymptoms(c.Request.Context(), c.Query("q"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, orEmpty(items))
}

func (s *Server) handleChat(c *gin.Context) {
	if s.deps.Chat == nil {
		handleError(c, apperr.Missing("llm"))
		return
	}
	var req struct {
		SessionID string `json:"sessionId"`
		Message   string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	reply, err := s.deps.Chat.Ask(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (s *Server) handleChatReset(c *gin.Context) {
	if s.deps.Chat == nil {
		handleError(c, apperr.Missing("llm"))
		return
	}
	if !s.deps.Chat.Reset(c.Param("id")) {
		handleError(c, fmt.Errorf("session %s: %w", c.Param("id"), apperr.ErrNotFound))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDiaryList(c *gin.Context) {
	if s.deps.Diary == nil {
		handleError(c, apperr.Missing("storage"))
		return
	}
	ctx := c.Request.Context()
	dates, err := s.deps.Diary.ListEntries(ctx, c.Query("from"), c.Query("to"))
	if err != nil {
		handleError(c, err)
		return
	}

	entries := make([]*models.DiaryEntry, 0, len(dates))
	for _, d := range dates {
		entry, err := s.deps.Diary.GetEntry(ctx, d)
		if err != nil {
			handleError(c, err)
			return
		}
		entries = append(entries, entry)
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) handleDiaryGet(c *gin.Context) {
	if s.deps.Diary == nil {
		handleError(c, apperr.Missing("storage"))
		return
	}
	entry, err := s.deps.Diary.GetEntry(c.Request.Context(), c.Param("date"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleDiaryPut(c *gin.Context) {
	if s.deps.Diary == nil {
		handleError(c, apperr.Missing("storage"))
		return
	}
	var entry models.DiaryEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	date := c.Param("date")
	if entry.Date != "" && entry.Date != date {
		badRequest(c, fmt.Sprintf("Body date %s does not match %s", entry.Date, date), nil)
		return
	}
	entry.Date = date

	saved, err := s.deps.Diary.PutEntry(c.Request.Context(), entry)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) handleDiaryDelete(c *gin.Context) {
	if s.deps.Diary == nil {
		handleError(c, apperr.Missing("storage"))
		return
	}
	if err := s.deps.Diary.DeleteEntry(c.Request.Context(), c.Param("date")); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
