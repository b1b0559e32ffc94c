package entities

import (
	"encoding/json"
	"strings"
	"time"
)

// Candidate status lifecycle: sent -> replied -> escalated -> replied (resume).
const (
	StatusSent      = "sent"
	StatusReplied   = "replied"
	StatusEscalated = "escalated"
)

// History entry roles. State and summary entries are synthetic memory, not
// conversational turns.
const (
	RoleUser    = "user"
	RoleBot     = "bot"
	RoleAdmin   = "admin"
	RoleState   = "state"
	RoleSummary = "summary"
)

// HistoryEntry is one record of a candidate's append-only message log.
type HistoryEntry struct {
	From string `json:"from"`
	Text string `json:"text"`
}

// IsTurn reports whether the entry is a real conversational turn
// (user/bot/admin) rather than a synthetic memory entry.
func (e HistoryEntry) IsTurn() bool {
	switch e.From {
	case RoleUser, RoleBot, RoleAdmin:
		return true
	}
	return false
}

// StateFlags carries the orchestrator's boolean memory flags.
type StateFlags struct {
	WantsHuman bool `json:"wants_human"`
	Confused   bool `json:"confused"`
	Frustrated bool `json:"frustrated"`
}

// StateSnapshot is the structured short-term memory the orchestrator persists
// as a state history entry.
type StateSnapshot struct {
	Step  string     `json:"step"`
	Flags StateFlags `json:"flags"`
	Notes string     `json:"notes"`
}

// Candidate is the end-user record, keyed by phone number.
type Candidate struct {
	ID                  int            `json:"id"`
	Name                string         `json:"name"`
	Surname             string         `json:"surname"`
	PhoneNumber         string         `json:"phone_number"`
	Company             string         `json:"company"`
	Position            string         `json:"position"`
	Status              string         `json:"status"`
	EscalationReason    string         `json:"escalation_reason,omitempty"`
	History             []HistoryEntry `json:"history"`
	ProcessedMessageIDs []string       `json:"-"`
	LastUpdated         time.Time      `json:"last_updated"`
}

// UserMessageCount counts user-tagged history entries.
func (c *Candidate) UserMessageCount() int {
	n := 0
	for _, e := range c.History {
		if e.From == RoleUser {
			n++
		}
	}
	return n
}

// AppendHistory appends an entry to the candidate's log.
func (c *Candidate) AppendHistory(from, text string) {
	c.History = append(c.History, HistoryEntry{From: from, Text: text})
}

// AppendState serializes a state snapshot and appends it as a state entry.
func (c *Candidate) AppendState(s StateSnapshot) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	c.AppendHistory(RoleState, string(raw))
	return nil
}

// NormalizePhone strips "+" and spaces so "+39 333 1234567" and
// "393331234567" key the same candidate.
func NormalizePhone(phone string) string {
	phone = strings.ReplaceAll(phone, "+", "")
	return strings.ReplaceAll(phone, " ", "")
}

// Turns returns the conversational turns only, memory entries filtered out.
func (c *Candidate) Turns() []HistoryEntry {
	turns := make([]HistoryEntry, 0, len(c.History))
	for _, e := range c.History {
		if e.IsTurn() {
			turns = append(turns, e)
		}
	}
	return turns
}
