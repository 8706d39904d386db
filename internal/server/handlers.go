package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"consensus-radar/internal/collect"
	"consensus-radar/internal/logger"
	"consensus-radar/internal/progress"
	"consensus-radar/internal/storage"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type seedCompanyItem struct {
	Code     string `json:"code" binding:"required"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Market   string `json:"market" binding:"required"`
}

type seedCompaniesRequest struct {
	Companies []seedCompanyItem `json:"companies" binding:"required,min=1"`
}

// handleSeedCompanies upserts the collection universe. Re-posting a
// code refreshes its name and market.
func (s *Server) handleSeedCompanies(c *gin.Context) {
	var req seedCompaniesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	refs := make([]storage.CompanyRef, 0, len(req.Companies))
	for _, item := range req.Companies {
		m := storage.Market(item.Market)
		if m != storage.MarketKOSPI && m != storage.MarketKOSDAQ {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "market must be KOSPI or KOSDAQ",
				"code":  item.Code,
			})
			return
		}
		refs = append(refs, storage.CompanyRef{
			Code:     item.Code,
			Name:     item.Name,
			Exchange: item.Exchange,
			Market:   m,
		})
	}

	if err := s.companies.UpsertAll(c.Request.Context(), refs); err != nil {
		logger.ErrorWithErr(c.Request.Context(), "Company seed failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store companies"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"upserted": len(refs)})
}

// handleCollect runs one chunk of a collection session. The scheduler
// calls this once per batch index with the same session id.
func (s *Server) handleCollect(c *gin.Context) {
	var req collect.ChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.orchestrator.RunChunk(c.Request.Context(), req)
	if err != nil {
		logger.ErrorWithErr(c.Request.Context(), "Chunk run failed", err,
			"session_id", req.SessionID, "batch_index", req.BatchIndex)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleProgress(c *gin.Context) {
	sessionID := c.Param("session_id")
	row, err := s.tracker.Get(c.Request.Context(), sessionID)
	if errors.Is(err, progress.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found", "session_id": sessionID})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, row)
}

type computeRequest struct {
	SnapshotDate string `json:"snapshot_date" binding:"required"`
	TargetYear   int    `json:"target_year"`
	WithDiffs    bool   `json:"with_diffs"`
}

// handleCompute recomputes metrics for a stored snapshot date, and
// optionally the diff logs on top of them.
func (s *Server) handleCompute(c *gin.Context) {
	var req computeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	y1 := req.TargetYear
	if y1 == 0 {
		y1 = s.targetYear()
	}

	res, err := s.engine.Compute(c.Request.Context(), req.SnapshotDate, y1)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := gin.H{"compute": res}
	if req.WithDiffs {
		diffRes, err := s.engine.DeriveDiffs(c.Request.Context(), req.SnapshotDate, y1)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out["diffs"] = diffRes
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleMetrics(c *gin.Context) {
	date := c.Param("date")
	y1 := s.targetYear()
	rows, err := s.metrics.ListForDate(c.Request.Context(), date, y1)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot_date": date, "target_y1": y1, "metrics": rows})
}

func (s *Server) handleDiffs(c *gin.Context) {
	date := c.Param("date")
	y1 := s.targetYear()
	rows, err := s.diffs.ListForDate(c.Request.Context(), date, y1)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot_date": date, "target_y1": y1, "diffs": rows})
}
