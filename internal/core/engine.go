package core

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
)

// DefaultActivationThreshold gates whether a suggestion is actionable
const DefaultActivationThreshold = 0.4

// DefaultKeywordWeight caps the contribution of keyword evidence alone.
// Keywords are a soft signal; a full keyword hit is not a confirmed match.
const DefaultKeywordWeight = 0.5

// ClassificationEngine scores one message against the active rule set and
// aggregates the per-rule scores into a single suggestion
type ClassificationEngine struct {
	reasoner      Reasoner
	logger        *zap.Logger
	threshold     float64
	keywordWeight float64
}

// NewClassificationEngine creates a new classification engine
func NewClassificationEngine(
	reasoner Reasoner,
	logger *zap.Logger,
	threshold float64,
	keywordWeight float64,
) *ClassificationEngine {
	if threshold <= 0 {
		threshold = DefaultActivationThreshold
	}
	if keywordWeight <= 0 {
		keywordWeight = DefaultKeywordWeight
	}
	return &ClassificationEngine{
		reasoner:      reasoner,
		logger:        logger,
		threshold:     threshold,
		keywordWeight: keywordWeight,
	}
}

// Classify scores msg against every active rule and returns the best
// suggestion. The reasoner verdict is authoritative for rules that carry a
// prompt; keyword evidence is the fallback when the reasoner is unreachable.
func (e *ClassificationEngine) Classify(ctx context.Context, msg *Message, rules []Rule) ClassificationResult {
	result := ClassificationResult{
		MessageID: msg.ID,
		Subject:   msg.Subject,
		Reason:    ReasonNoMatch,
	}

	active := activeByCreation(rules)
	if len(active) == 0 {
		return result
	}

	text := msg.Subject + "\n" + msg.BodyText
	folded := cases.Fold().String(text)

	var (
		best         *Rule
		bestScore    float64
		bestDegraded bool
		anyDegraded  bool
	)

	for i := range active {
		rule := &active[i]
		score, degraded := e.scoreRule(ctx, rule, text, folded)
		if degraded {
			anyDegraded = true
		}

		// Strict comparison keeps the earliest-created rule on ties
		if score > bestScore {
			best = rule
			bestScore = score
			bestDegraded = degraded
		}
	}

	if best == nil || bestScore <= 0 {
		if anyDegraded {
			result.Reason = ReasonAIUnavailable
		}
		return result
	}

	result.MatchedRuleID = best.ID
	result.RuleName = best.Name
	result.SuggestedFolderID = best.TargetFolderID
	result.SuggestedFolderName = best.TargetFolderName
	result.Confidence = clampScore(bestScore)
	result.Actionable = result.Confidence >= e.threshold
	if bestDegraded {
		result.Reason = ReasonAIUnavailable
	} else {
		result.Reason = ReasonMatched
	}

	return result
}

// Threshold returns the configured activation threshold
func (e *ClassificationEngine) Threshold() float64 {
	return e.threshold
}

// scoreRule computes the score of a single rule. The second return value is
// true when the rule has a prompt but the reasoner could not be consulted.
func (e *ClassificationEngine) scoreRule(ctx context.Context, rule *Rule, text, foldedText string) (float64, bool) {
	keywordScore := e.keywordScore(rule.Keywords, foldedText)

	if rule.AIPrompt == "" {
		return keywordScore, false
	}

	verdict, err := e.reasoner.Judge(ctx, text, rule.AIPrompt)
	if err != nil {
		e.logger.Warn("Reasoner unavailable, falling back to keyword score",
			zap.String("rule_id", rule.ID),
			zap.Error(err))
		return keywordScore, true
	}

	if !verdict.IsMatch {
		return 0, false
	}
	return clampScore(verdict.Confidence), false
}

// keywordScore is the weighted fraction of a rule's distinct keywords that
// occur as case-folded substrings of the message text
func (e *ClassificationEngine) keywordScore(keywords []string, foldedText string) float64 {
	distinct := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		distinct[cases.Fold().String(kw)] = struct{}{}
	}
	if len(distinct) == 0 {
		return 0
	}

	matched := 0
	for kw := range distinct {
		if strings.Contains(foldedText, kw) {
			matched++
		}
	}

	fraction := float64(matched) / float64(len(distinct))
	if fraction > 1 {
		fraction = 1
	}
	return e.keywordWeight * fraction
}

// activeByCreation returns the active rules ordered by creation time, so the
// earliest-created rule wins score ties
func activeByCreation(rules []Rule) []Rule {
	active := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.IsActive {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return active
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
