package core

import (
	"time"
)

// Rule is a user-defined classification rule mapping matching messages to a
// target folder. Keywords are matched case-insensitively; AIPrompt, when set,
// is a natural-language instruction evaluated by the reasoner.
type Rule struct {
	ID               string
	Name             string
	Description      string
	TargetFolderID   string
	TargetFolderName string
	Keywords         []string
	AIPrompt         string
	IsActive         bool
	CreatedAt        time.Time
}

// Message is the transient content of a mail message fetched for
// classification. It is never persisted by this service.
type Message struct {
	ID         string
	From       string
	Subject    string
	BodyText   string
	ReceivedAt time.Time
	IsRead     bool
}

// MatchReason explains the outcome of a single classification
type MatchReason string

const (
	// ReasonMatched means a rule matched with a non-zero score
	ReasonMatched MatchReason = "matched"
	// ReasonNoMatch means no rule produced a non-zero score
	ReasonNoMatch MatchReason = "no_match"
	// ReasonAIUnavailable means the reasoner could not be reached and
	// scoring fell back to keywords only
	ReasonAIUnavailable MatchReason = "ai_unavailable"
	// ReasonAlreadyExecuting means the message was skipped because another
	// execute call had already claimed it
	ReasonAlreadyExecuting MatchReason = "already_executing"
	// ReasonMoveFailed means the suggested move was attempted but the mail
	// API rejected it
	ReasonMoveFailed MatchReason = "move_failed"
)

// ClassificationResult is the outcome of classifying one message against the
// active rule set
type ClassificationResult struct {
	MessageID           string      `json:"message_id"`
	Subject             string      `json:"subject"`
	MatchedRuleID       string      `json:"matched_rule_id,omitempty"`
	RuleName            string      `json:"rule_name,omitempty"`
	SuggestedFolderID   string      `json:"suggested_folder_id,omitempty"`
	SuggestedFolderName string      `json:"suggested_folder_name,omitempty"`
	Confidence          float64     `json:"confidence"`
	Actionable          bool        `json:"actionable"`
	Moved               bool        `json:"moved"`
	Reason              MatchReason `json:"reason"`
}

// HistoryEntry records a successfully executed classification. Entries are
// append-only and are never rewritten when the originating rule is later
// edited or deleted.
type HistoryEntry struct {
	ID               string    `json:"id"`
	MessageID        string    `json:"message_id"`
	Subject          string    `json:"subject"`
	RuleID           string    `json:"rule_id"`
	RuleName         string    `json:"rule_name"`
	TargetFolderID   string    `json:"target_folder_id"`
	TargetFolderName string    `json:"target_folder_name"`
	Confidence       float64   `json:"confidence"`
	ClassifiedAt     time.Time `json:"classified_at"`
}

// RuleCount is the number of history entries produced by one rule
type RuleCount struct {
	Rule  string `json:"rule"`
	Count int    `json:"count"`
}

// FolderCount is the number of history entries targeting one folder
type FolderCount struct {
	Folder string `json:"folder"`
	Count  int    `json:"count"`
}

// Stats are aggregate counts derived from the history store
type Stats struct {
	TotalClassified int           `json:"total_classified"`
	ByRule          []RuleCount   `json:"by_rule"`
	ByFolder        []FolderCount `json:"by_folder"`
}

// Verdict is the reasoner's judgment of a message against one rule prompt
type Verdict struct {
	IsMatch    bool
	Confidence float64
}
