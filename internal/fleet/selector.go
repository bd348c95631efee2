package fleet

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/KevinKickass/OpenPrinterCore/internal/printer"
)

// ReasonCode classifies why a printer was not usable.
type ReasonCode string

const (
	ReasonLocationNotFound     ReasonCode = "location_not_found"
	ReasonDefaultNotConfigured ReasonCode = "default_not_configured"
	ReasonPrinterNotFound      ReasonCode = "printer_not_found"
	ReasonUnreachable          ReasonCode = "unreachable"
	ReasonStatus               ReasonCode = "status"
	ReasonResourceLow          ReasonCode = "resource_low"
	ReasonOutOfConsumable      ReasonCode = "out_of_consumable"
	ReasonExhausted            ReasonCode = "exhausted"
)

// DefaultMinResourceLevel is the lowest level, in percent, a required
// resource may have on a printer that takes new work.
const DefaultMinResourceLevel = 5.0

// Diagnosis explains why one printer cannot take work.
type Diagnosis struct {
	PrinterID    string                         `json:"printer_id,omitempty"`
	Code         ReasonCode                     `json:"code"`
	Status       printer.Status                 `json:"status,omitempty"`
	LowResources []printer.ResourceID           `json:"low_resources,omitempty"`
	Levels       map[printer.ResourceID]float64 `json:"levels,omitempty"`
	Message      string                         `json:"message"`
}

// Selection is the outcome of choosing a printer for a location.
type Selection struct {
	LocationID       string `json:"location_id"`
	PrinterID        string `json:"printer_id,omitempty"`
	DefaultPrinterID string `json:"default_printer_id,omitempty"`
	Available        bool   `json:"available"`
	UsedFallback     bool   `json:"used_fallback"`
	// Reason is why the default was passed over, or why nothing was found.
	Reason *Diagnosis `json:"reason,omitempty"`
	// Checked is the trail of every printer rejected along the way.
	Checked []Diagnosis `json:"checked,omitempty"`
}

// SummaryProvider resolves a printer id to its current summary. Unknown
// ids yield an error wrapping printer.ErrNotFound.
type SummaryProvider interface {
	Summary(ctx context.Context, printerID string) (printer.DeviceSummary, error)
}

// Selector picks a printer for a location: the default when it is ready
// for work, otherwise the first ready printer in location order.
type Selector struct {
	mu        sync.RWMutex
	directory *Directory
	printers  SummaryProvider
	minLevel  float64
}

func NewSelector(directory *Directory, printers SummaryProvider, minLevel float64) *Selector {
	if minLevel <= 0 {
		minLevel = DefaultMinResourceLevel
	}
	return &Selector{directory: directory, printers: printers, minLevel: minLevel}
}

// SetDirectory swaps the location directory used by later selections.
func (s *Selector) SetDirectory(directory *Directory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.directory = directory
}

func (s *Selector) Directory() *Directory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.directory
}

// Select reads summaries optimistically; the chosen printer is checked
// again by whoever submits to it. A nil required list means every resource.
func (s *Selector) Select(ctx context.Context, locationID string, required []printer.ResourceID) (Selection, error) {
	if err := ctx.Err(); err != nil {
		return Selection{}, err
	}
	if required == nil {
		required = printer.Resources
	}

	sel := Selection{LocationID: locationID}
	loc, ok := s.Directory().Location(locationID)
	if !ok {
		sel.Reason = &Diagnosis{
			Code:    ReasonLocationNotFound,
			Message: fmt.Sprintf("location %s not found", locationID),
		}
		return sel, nil
	}
	sel.DefaultPrinterID = loc.DefaultPrinterID

	if loc.DefaultPrinterID == "" {
		sel.Reason = &Diagnosis{
			Code:    ReasonDefaultNotConfigured,
			Message: fmt.Sprintf("location %s has no default printer", loc.ID),
		}
		for _, id := range loc.PrinterIDs {
			diag := s.check(ctx, id, required)
			if diag == nil {
				sel.PrinterID = id
				sel.Available = true
				return sel, nil
			}
			sel.Checked = append(sel.Checked, *diag)
		}
		sel.Reason = exhausted(loc, nil)
		if len(sel.Checked) > 0 && allNotFound(sel.Checked) {
			sel.Reason = &Diagnosis{
				Code:    ReasonPrinterNotFound,
				Message: fmt.Sprintf("no printer at %s is registered", loc.ID),
			}
		}
		return sel, nil
	}

	defaultDiag := s.check(ctx, loc.DefaultPrinterID, required)
	if defaultDiag == nil {
		sel.PrinterID = loc.DefaultPrinterID
		sel.Available = true
		return sel, nil
	}
	sel.Reason = defaultDiag
	sel.Checked = append(sel.Checked, *defaultDiag)

	for _, id := range loc.PrinterIDs {
		if id == loc.DefaultPrinterID {
			continue
		}
		diag := s.check(ctx, id, required)
		if diag == nil {
			sel.PrinterID = id
			sel.Available = true
			sel.UsedFallback = true
			return sel, nil
		}
		sel.Checked = append(sel.Checked, *diag)
	}

	// an unknown default is more useful to report than an empty scan
	if defaultDiag.Code != ReasonPrinterNotFound {
		sel.Reason = exhausted(loc, defaultDiag)
	}
	return sel, nil
}

func exhausted(loc Location, defaultDiag *Diagnosis) *Diagnosis {
	msg := fmt.Sprintf("no printer at %s is ready for work", loc.ID)
	if defaultDiag != nil {
		msg += "; default " + defaultDiag.Message
	}
	return &Diagnosis{Code: ReasonExhausted, Message: msg}
}

func allNotFound(checked []Diagnosis) bool {
	for _, d := range checked {
		if d.Code != ReasonPrinterNotFound {
			return false
		}
	}
	return true
}

// check returns nil when the printer is ready for work.
func (s *Selector) check(ctx context.Context, printerID string, required []printer.ResourceID) *Diagnosis {
	summary, err := s.printers.Summary(ctx, printerID)
	if errors.Is(err, printer.ErrNotFound) {
		return &Diagnosis{
			PrinterID: printerID,
			Code:      ReasonPrinterNotFound,
			Message:   fmt.Sprintf("printer %s is not registered", printerID),
		}
	}
	if err != nil {
		return &Diagnosis{
			PrinterID: printerID,
			Code:      ReasonUnreachable,
			Message:   fmt.Sprintf("printer %s could not be read: %v", printerID, err),
		}
	}
	return Diagnose(summary, required, s.minLevel)
}

// Diagnose reports the first reason a printer is not ready for work, in
// priority order: status, low resources (all of them), then consumables.
// It returns nil when the printer can take work.
func Diagnose(summary printer.DeviceSummary, required []printer.ResourceID, minLevel float64) *Diagnosis {
	if summary.Status != printer.StatusReady {
		return &Diagnosis{
			PrinterID: summary.ID,
			Code:      ReasonStatus,
			Status:    summary.Status,
			Message:   fmt.Sprintf("printer %s is %s", summary.ID, summary.Status),
		}
	}

	var low []printer.ResourceID
	levels := map[printer.ResourceID]float64{}
	for _, r := range printer.Resources {
		if !slices.Contains(required, r) {
			continue
		}
		if level := summary.ResourceLevels[r]; level < minLevel {
			low = append(low, r)
			levels[r] = level
		}
	}
	if len(low) > 0 {
		parts := make([]string, len(low))
		for i, r := range low {
			parts[i] = fmt.Sprintf("%s (%.1f%%)", r, levels[r])
		}
		return &Diagnosis{
			PrinterID:    summary.ID,
			Code:         ReasonResourceLow,
			Status:       summary.Status,
			LowResources: low,
			Levels:       levels,
			Message:      fmt.Sprintf("printer %s is low on %s", summary.ID, strings.Join(parts, ", ")),
		}
	}

	if summary.ConsumableCount < 1 {
		return &Diagnosis{
			PrinterID: summary.ID,
			Code:      ReasonOutOfConsumable,
			Status:    summary.Status,
			Message:   fmt.Sprintf("printer %s is out of paper", summary.ID),
		}
	}
	return nil
}
