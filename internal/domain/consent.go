package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	ConsentGDPR      = "gdpr"
	ConsentMarketing = "marketing"
	ConsentAIRemedy  = "ai_remedy"
)

// ConsentEvent is one entry of the append-only consent history.
type ConsentEvent struct {
	ConsentType string    `json:"consent_type"`
	Granted     bool      `json:"granted"`
	IPAddress   string    `json:"ip_address,omitempty"`
	Version     string    `json:"version"`
	RecordedAt  time.Time `json:"recorded_at"`
}

type ComplianceConsent struct {
	UserID           uuid.UUID      `json:"user_id"`
	GDPRConsent      bool           `json:"gdpr_consent"`
	MarketingConsent bool           `json:"marketing_consent"`
	AIRemedyConsent  bool           `json:"ai_remedy_consent"`
	IPAddress        string         `json:"ip_address,omitempty"`
	Version          string         `json:"version"`
	History          []ConsentEvent `json:"history"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type ConsentInput struct {
	GDPR      *bool  `json:"gdpr"`
	Marketing *bool  `json:"marketing"`
	AIRemedy  *bool  `json:"ai_remedy"`
	Version   string `json:"version"`
}

// Apply sets the flags present in the input and returns the history entries for the ones that changed.
// The caller persists the entries by appending; existing entries are never rewritten.
func (c *ComplianceConsent) Apply(in ConsentInput, ip, defaultVersion string, now time.Time) []ConsentEvent {
	version := in.Version
	if version == "" {
		version = defaultVersion
	}
	var events []ConsentEvent
	set := func(kind string, current *bool, next *bool) {
		if next == nil || *current == *next {
			return
		}
		*current = *next
		events = append(events, ConsentEvent{ConsentType: kind, Granted: *next, IPAddress: ip, Version: version, RecordedAt: now})
	}
	set(ConsentGDPR, &c.GDPRConsent, in.GDPR)
	set(ConsentMarketing, &c.MarketingConsent, in.Marketing)
	set(ConsentAIRemedy, &c.AIRemedyConsent, in.AIRemedy)
	if len(events) > 0 {
		c.IPAddress = ip
		c.Version = version
		c.UpdatedAt = now
		c.History = append(c.History, events...)
	}
	return events
}
