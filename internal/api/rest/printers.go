package rest

import (
	"context"
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenPrinterCore/internal/printer"
	"github.com/gin-gonic/gin"
)

const areaPrinter = "PRINTER"

// engine resolves :id or writes a 404.
func (s *Server) engine(c *gin.Context) (*printer.Engine, bool) {
	e, err := s.lm.Fleet().Engine(c.Param("id"))
	if err != nil {
		s.respondError(c, areaPrinter, err)
		return nil, false
	}
	return e, true
}

// operate runs a state-changing engine operation and replies with its message.
func (s *Server) operate(c *gin.Context, op func(ctx context.Context, e *printer.Engine) (string, error)) {
	e, ok := s.engine(c)
	if !ok {
		return
	}
	msg, err := op(c.Request.Context(), e)
	if err != nil {
		s.respondError(c, areaPrinter, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"printer_id": e.ID(),
		"message":    msg,
	})
}

// GET /api/v1/printers
func (s *Server) listPrinters(c *gin.Context) {
	printers := s.lm.Fleet().Summaries(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"printers": printers,
		"count":    len(printers),
	})
}

// GET /api/v1/printers/:id/status
func (s *Server) getPrinterStatus(c *gin.Context) {
	e, ok := s.engine(c)
	if !ok {
		return
	}
	status, err := e.Status(c.Request.Context())
	if err != nil {
		s.respondError(c, areaPrinter, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GET /api/v1/printers/:id/queue
func (s *Server) getQueue(c *gin.Context) {
	e, ok := s.engine(c)
	if !ok {
		return
	}
	queue, err := e.Queue(c.Request.Context())
	if err != nil {
		s.respondError(c, areaPrinter, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": queue, "count": len(queue)})
}

// GET /api/v1/printers/:id/completed
func (s *Server) getCompletedJobs(c *gin.Context) {
	e, ok := s.engine(c)
	if !ok {
		return
	}
	jobs, err := e.CompletedJobs(c.Request.Context())
	if err != nil {
		s.respondError(c, areaPrinter, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

// GET /api/v1/printers/:id/statistics
func (s *Server) getStatistics(c *gin.Context) {
	e, ok := s.engine(c)
	if !ok {
		return
	}
	stats, err := e.Statistics(c.Request.Context())
	if err != nil {
		s.respondError(c, areaPrinter, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GET /api/v1/printers/:id/logs?limit=N returns the newest N entries.
func (s *Server) getLogs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, errorResponse("PRINTER_400", "Invalid limit", raw))
			return
		}
		limit = n
	}

	e, ok := s.engine(c)
	if !ok {
		return
	}
	logs, err := e.Logs(c.Request.Context())
	if err != nil {
		s.respondError(c, areaPrinter, err)
		return
	}
	if limit > 0 && len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

// POST /api/v1/printers/:id/jobs
func (s *Server) submitJob(c *gin.Context) {
	var spec printer.WorkSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("PRINTER_400", "Invalid request body", err.Error()))
		return
	}

	e, ok := s.engine(c)
	if !ok {
		return
	}
	job, err := e.SubmitJob(c.Request.Context(), spec)
	if err != nil {
		s.respondError(c, areaPrinter, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"printer_id": e.ID(),
		"job":        job,
	})
}

// GET /api/v1/printers/:id/jobs/:job_id
func (s *Server) getJob(c *gin.Context) {
	e, ok := s.engine(c)
	if !ok {
		return
	}
	job, err := e.Job(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		s.respondError(c, areaPrinter, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// DELETE /api/v1/printers/:id/jobs/:job_id
func (s *Server) cancelJob(c *gin.Context) {
	jobID := c.Param("job_id")
	s.operate(c, func(ctx context.Context, e *printer.Engine) (string, error) {
		return e.CancelJob(ctx, jobID)
	})
}

// POST /api/v1/printers/:id/pause
func (s *Server) pause(c *gin.Context) {
	s.operate(c, func(ctx context.Context, e *printer.Engine) (string, error) {
		return e.Pause(ctx)
	})
}

// POST /api/v1/printers/:id/resume
func (s *Server) resume(c *gin.Context) {
	s.operate(c, func(ctx context.Context, e *printer.Engine) (string, error) {
		return e.Resume(ctx)
	})
}

// POST /api/v1/printers/:id/power-cycle
func (s *Server) powerCycle(c *gin.Context) {
	s.operate(c, func(ctx context.Context, e *printer.Engine) (string, error) {
		return e.PowerCycle(ctx)
	})
}

// POST /api/v1/printers/:id/factory-reset
func (s *Server) factoryReset(c *gin.Context) {
	s.operate(c, func(ctx context.Context, e *printer.Engine) (string, error) {
		return e.FactoryReset(ctx)
	})
}

// POST /api/v1/printers/:id/resources/:resource/refill
func (s *Server) refillResource(c *gin.Context) {
	resource := printer.ResourceID(c.Param("resource"))
	s.operate(c, func(ctx context.Context, e *printer.Engine) (string, error) {
		return e.RefillResource(ctx, resource)
	})
}

// POST /api/v1/printers/:id/consumable
func (s *Server) loadConsumable(c *gin.Context) {
	var req struct {
		Count int                    `json:"count" binding:"required"`
		Kind  printer.ConsumableKind `json:"kind"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("PRINTER_400", "Invalid request body", err.Error()))
		return
	}
	s.operate(c, func(ctx context.Context, e *printer.Engine) (string, error) {
		return e.LoadConsumable(ctx, req.Count, req.Kind)
	})
}

// POST /api/v1/printers/:id/maintenance/:kind
func (s *Server) runMaintenance(c *gin.Context) {
	kind := printer.MaintenanceKind(c.Param("kind"))
	s.operate(c, func(ctx context.Context, e *printer.Engine) (string, error) {
		return e.RunMaintenance(ctx, kind)
	})
}

// DELETE /api/v1/printers/:id/faults/:kind
func (s *Server) clearFault(c *gin.Context) {
	kind := printer.FaultKind(c.Param("kind"))
	s.operate(c, func(ctx context.Context, e *printer.Engine) (string, error) {
		return e.ClearFault(ctx, kind)
	})
}
