// Package models defines domain models for DataMantri alerting.
package models

import "time"

// AlertHistory records one triggered evaluation of an alert.
type AlertHistory struct {
	ID                string                    `json:"id"`
	AlertID           string                    `json:"alert_id"`
	AlertName         string                    `json:"alert_name"`
	TriggeredAt       time.Time                 `json:"triggered_at"`
	ConditionMet      map[string]any            `json:"condition_met"`
	Severity          Severity                  `json:"severity"`
	NotificationsSent map[Channel]ChannelResult `json:"notifications_sent"`
	ResolvedAt        *time.Time                `json:"resolved_at,omitempty"`
	ResolvedBy        string                    `json:"resolved_by,omitempty"`
	ResolutionNotes   string                    `json:"resolution_notes,omitempty"`
}

// IsResolved reports whether an operator has resolved the entry.
func (h *AlertHistory) IsResolved() bool {
	return h.ResolvedAt != nil
}

// SuccessfulChannels counts channels that reported success.
func (h *AlertHistory) SuccessfulChannels() int {
	n := 0
	for _, r := range h.NotificationsSent {
		if r.Success {
			n++
		}
	}
	return n
}
