package fleet

import (
	"context"
	"fmt"

	"github.com/KevinKickass/OpenPrinterCore/internal/printer"
	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeSubmitted            Outcome = "submitted"
	OutcomeRequiresConfirmation Outcome = "requires_confirmation"
	OutcomeUnavailable          Outcome = "unavailable"
)

// PrintRequest asks for a job at a location. A request that was answered
// with requires_confirmation is repeated with Confirmed set and the
// proposed printer echoed back.
type PrintRequest struct {
	LocationID        string           `json:"location_id"`
	Spec              printer.WorkSpec `json:"spec"`
	Confirmed         bool             `json:"confirmed"`
	ProposedPrinterID string           `json:"proposed_printer_id,omitempty"`
}

type DispatchResult struct {
	Outcome   Outcome      `json:"outcome"`
	PrinterID string       `json:"printer_id,omitempty"`
	Selection Selection    `json:"selection"`
	Job       *printer.Job `json:"job,omitempty"`
	Message   string       `json:"message"`
}

// JobSubmitter enqueues work on a specific printer.
type JobSubmitter interface {
	SubmitJob(ctx context.Context, printerID string, spec printer.WorkSpec) (printer.Job, error)
}

// Dispatcher runs the propose/confirm flow on top of a Selector.
type Dispatcher struct {
	selector            *Selector
	submitter           JobSubmitter
	requireConfirmation bool
	logger              *zap.Logger
}

func NewDispatcher(selector *Selector, submitter JobSubmitter, requireConfirmation bool, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		selector:            selector,
		submitter:           submitter,
		requireConfirmation: requireConfirmation,
		logger:              logger,
	}
}

// Select previews where work needing required would go.
func (d *Dispatcher) Select(ctx context.Context, locationID string, required []printer.ResourceID) (Selection, error) {
	return d.selector.Select(ctx, locationID, required)
}

// Submit selects a printer and enqueues the job on it. When the default
// is unavailable and confirmation is required, the first call only
// proposes a fallback; nothing is enqueued until a confirmed call names
// the same printer.
func (d *Dispatcher) Submit(ctx context.Context, req PrintRequest) (DispatchResult, error) {
	if err := printer.ValidateWorkSpec(req.Spec); err != nil {
		return DispatchResult{}, err
	}

	sel, err := d.selector.Select(ctx, req.LocationID, req.Spec.RequiredResources())
	if err != nil {
		return DispatchResult{}, err
	}

	if !sel.Available {
		d.logger.Info("No printer available",
			zap.String("location", req.LocationID),
			zap.String("reason", string(sel.Reason.Code)))
		return DispatchResult{
			Outcome:   OutcomeUnavailable,
			Selection: sel,
			Message:   sel.Reason.Message,
		}, nil
	}

	if sel.UsedFallback && d.requireConfirmation {
		confirmed := req.Confirmed && (req.ProposedPrinterID == "" || req.ProposedPrinterID == sel.PrinterID)
		if !confirmed {
			return DispatchResult{
				Outcome:   OutcomeRequiresConfirmation,
				PrinterID: sel.PrinterID,
				Selection: sel,
				Message:   fmt.Sprintf("%s; confirm to print on %s instead", sel.Reason.Message, sel.PrinterID),
			}, nil
		}
	}

	job, err := d.submitter.SubmitJob(ctx, sel.PrinterID, req.Spec)
	if err != nil {
		return DispatchResult{}, err
	}

	d.logger.Info("Job dispatched",
		zap.String("location", req.LocationID),
		zap.String("printer", sel.PrinterID),
		zap.String("job", job.ID),
		zap.Bool("fallback", sel.UsedFallback))

	msg := fmt.Sprintf("Job %s queued on %s", job.ID, sel.PrinterID)
	if sel.UsedFallback {
		msg = fmt.Sprintf("%s (fallback: %s)", msg, sel.Reason.Message)
	}
	return DispatchResult{
		Outcome:   OutcomeSubmitted,
		PrinterID: sel.PrinterID,
		Selection: sel,
		Job:       &job,
		Message:   msg,
	}, nil
}
