package movement

import (
	"strings"

	"production-tracker-backend/internal/model"
	"production-tracker-backend/internal/parse"
)

// Request is one scan submitted by a station.
type Request struct {
	Type        model.MovementType
	ProcessID   int64
	FullSN      string
	PlaceName   string
	Actor       string
	Result      *bool
	PrinterName string
}

func (r Request) normalized() Request {
	r.Type = model.MovementType(strings.ToLower(strings.TrimSpace(string(r.Type))))
	r.FullSN = parse.ParseScan(r.FullSN).FullSN
	r.PlaceName = strings.TrimSpace(r.PlaceName)
	r.Actor = strings.TrimSpace(r.Actor)
	r.PrinterName = strings.TrimSpace(r.PrinterName)
	return r
}

// Result is returned for an accepted transition.
type Result struct {
	Status  string  `json:"status"`
	Details Details `json:"details"`
}

// Details describes what a transition changed.
type Details struct {
	MovementType model.MovementType `json:"movement_type"`
	SerialNumber string             `json:"serial_number"`
	FullSN       string             `json:"full_sn"`
	ProcessID    int64              `json:"process_id"`
	ProcessLabel string             `json:"process_label"`
	PlaceName    string             `json:"place_name,omitempty"`
	Affected     []string           `json:"affected"`
	Ended        bool               `json:"ended"`
	Orphaned     []string           `json:"orphaned,omitempty"`
	Terminated   []string           `json:"terminated_mothers,omitempty"`
}
