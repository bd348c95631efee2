package rest

import (
	"net/http"

	"github.com/KevinKickass/OpenPrinterCore/internal/api/websocket"
	"github.com/KevinKickass/OpenPrinterCore/internal/fleet"
	"github.com/KevinKickass/OpenPrinterCore/internal/printer"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const areaLocation = "LOCATION"

// printRequest is the body of POST /locations/:id/print. The work spec
// fields sit at the top level next to the confirmation fields.
type printRequest struct {
	printer.WorkSpec
	Confirmed         bool   `json:"confirmed"`
	ProposedPrinterID string `json:"proposed_printer_id"`
}

// GET /api/v1/locations
func (s *Server) listLocations(c *gin.Context) {
	locations := s.lm.Directory().Locations()
	c.JSON(http.StatusOK, gin.H{
		"locations": locations,
		"count":     len(locations),
	})
}

// GET /api/v1/locations/:id/selection?color=true
// Reports which printer a job would go to without enqueueing anything.
func (s *Server) getSelection(c *gin.Context) {
	spec := printer.WorkSpec{Color: c.Query("color") == "true"}

	sel, err := s.lm.Dispatcher().Select(c.Request.Context(), c.Param("id"), spec.RequiredResources())
	if err != nil {
		s.respondError(c, areaLocation, err)
		return
	}
	if sel.Reason != nil && sel.Reason.Code == fleet.ReasonLocationNotFound {
		c.JSON(http.StatusNotFound, errorResponse("LOCATION_404", "Location not found", sel))
		return
	}
	c.JSON(http.StatusOK, sel)
}

// POST /api/v1/locations/:id/print
func (s *Server) printAtLocation(c *gin.Context) {
	var req printRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("LOCATION_400", "Invalid request body", err.Error()))
		return
	}

	locationID := c.Param("id")
	res, err := s.lm.Dispatcher().Submit(c.Request.Context(), fleet.PrintRequest{
		LocationID:        locationID,
		Spec:              req.WorkSpec,
		Confirmed:         req.Confirmed,
		ProposedPrinterID: req.ProposedPrinterID,
	})
	if err != nil {
		s.respondError(c, areaLocation, err)
		return
	}

	jobID := ""
	if res.Job != nil {
		jobID = res.Job.ID
	}
	s.wsHub.Broadcast(websocket.NewDispatchMessage(res.PrinterID, locationID, string(res.Outcome), jobID, res.Message))

	switch res.Outcome {
	case fleet.OutcomeSubmitted:
		c.JSON(http.StatusCreated, res)
	case fleet.OutcomeRequiresConfirmation:
		c.JSON(http.StatusAccepted, res)
	default:
		code := http.StatusConflict
		if res.Selection.Reason != nil && res.Selection.Reason.Code == fleet.ReasonLocationNotFound {
			code = http.StatusNotFound
		}
		s.logger.Debug("Print request not placed",
			zap.String("location", locationID),
			zap.String("message", res.Message))
		c.JSON(code, res)
	}
}
