package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mfenderov/protokb/internal/apperr"
	"github.com/mfenderov/protokb/internal/ingestion"
	"github.com/mfenderov/protokb/pkg/models"
)

// maxWarmBatch bounds the documents accepted by one pre-warm request.
const maxWarmBatch = 200

// handleDriveHealth lists the remote folder and reports connectivity.
func (s *Server) handleDriveHealth(c *gin.Context) {
	if s.deps.Drive == nil {
		handleError(c, apperr.Missing("drive"))
		return
	}
	h := s.deps.Drive.Check(c.Request.Context())
	status := http.StatusOK
	if !h.Connected {
		status = http.StatusInternalServerError
	}
	c.JSON(status, h)
}

// handleDriveSearch searches every listed document, extracting the ones not
// cached yet.
func (s *Server) handleDriveSearch(c *gin.Context) {
	var req struct {
		Query string `json:"query"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	results, err := s.deps.Search.Search(c.Request.Context(), req.Query)
	if err != nil {
		handleError(c, err)
		return
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	c.JSON(http.StatusOK, results)
}

// handleGetContent returns the cached parsed document, or starts processing
// it and reports the task.
func (s *Server) handleGetContent(c *gin.Context) {
	id := strings.TrimSpace(c.Query("id"))
	if id == "" {
		badRequest(c, "Missing document id", nil)
		return
	}

	if doc, ok := s.deps.Documents.Lookup(id); ok {
		c.JSON(http.StatusOK, doc)
		return
	}

	task, started := s.deps.Documents.Submit(models.DocumentRef{ID: id, Name: c.Query("name")})
	if task.Status() == ingestion.StatusDone {
		if doc, err := task.Wait(c.Request.Context()); err == nil {
			c.JSON(http.StatusOK, doc)
			return
		}
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":  ingestion.StatusProcessing,
		"started": started,
		"task":    task.Info(),
	})
}

// handleSearchCached ranks cached documents without extracting anything.
func (s *Server) handleSearchCached(c *gin.Context) {
	var req struct {
		Query       string   `json:"query"`
		DocumentIDs []string `json:"documentIds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	res, err := s.deps.Search.SearchCached(req.Query, req.DocumentIDs)
	if err != nil {
		handleError(c, err)
		return
	}
	if res.Results == nil {
		res.Results = []models.SearchResult{}
	}
	c.JSON(http.StatusOK, res)
}

// handleWarm starts background processing of the listed documents and
// returns at once.
func (s *Server) handleWarm(c *gin.Context) {
	var req struct {
		Documents []models.DocumentRef `json:"documents"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	if len(req.Documents) > maxWarmBatch {
		badRequest(c, "Too many documents in one request", nil)
		return
	}
	refs := req.Documents[:0]
	for _, ref := range req.Documents {
		if strings.TrimSpace(ref.ID) != "" {
			refs = append(refs, ref)
		}
	}

	res := s.deps.Documents.Warm(refs)

	tasks := make([]ingestion.TaskInfo, 0, len(res.Tasks))
	for _, t := range res.Tasks {
		tasks = append(tasks, t.Info())
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message":  "Processing started",
		"inQueue":  res.Queued + res.InFlight,
		"started":  res.Queued,
		"inFlight": res.InFlight,
		"cached":   res.Cached,
		"tasks":    tasks,
	})
}

// handleTask reports the in-flight or recently settled task for a document.
func (s *Server) handleTask(c *gin.Context) {
	task, ok := s.deps.Documents.Task(c.Param("id"))
	if !ok {
		if _, cached := s.deps.Documents.Lookup(c.Param("id")); cached {
			c.JSON(http.StatusOK, gin.H{"documentId": c.Param("id"), "status": ingestion.StatusDone})
			return
		}
		handleError(c, apperr.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, task.Info())
}
