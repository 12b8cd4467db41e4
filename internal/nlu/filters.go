package nlu

import (
	"regexp"
	"strings"

	"github.com/veridex/veridex/internal/model"
)

// FilterPredicate is one named false-positive heuristic. Predicates run in
// order; the first match disqualifies the candidate.
type FilterPredicate struct {
	Name  string
	Match func(text string, tech *model.Technique) bool
}

// QualityFilter applies the ordered false-positive predicate list.
type QualityFilter struct {
	predicates []FilterPredicate
}

// NewQualityFilter returns the default predicate list in evaluation order.
func NewQualityFilter() *QualityFilter {
	return &QualityFilter{
		predicates: []FilterPredicate{
			{Name: "glossary-framing", Match: matchGlossaryFraming},
			{Name: "future-work", Match: matchFutureWork},
			{Name: "comparative", Match: matchComparative},
			{Name: "discussion-only", Match: matchDiscussionOnly},
			{Name: "access-control-refusal", Match: matchAccessControlRefusal},
			{Name: "proposed-pattern", Match: matchProposedPattern},
		},
	}
}

// Check returns the name of the first predicate that disqualifies the text,
// or "" when the text survives all filters.
func (f *QualityFilter) Check(text string, tech *model.Technique) string {
	for _, p := range f.predicates {
		if p.Match(text, tech) {
			return p.Name
		}
	}
	return ""
}

var glossaryMarkers = []string{
	"glossary", "overview:", "references:", "table of contents",
	"definitions:", "is defined as", "appendix",
}

// matchGlossaryFraming rejects definitional framing in the opening of the
// chunk. Definitions describe a technique without asserting its use.
func matchGlossaryFraming(text string, _ *model.Technique) bool {
	head := strings.ToLower(text)
	if len(head) > 100 {
		head = head[:100]
	}
	for _, m := range glossaryMarkers {
		if strings.Contains(head, m) {
			return true
		}
	}
	return false
}

var futureWorkMarkers = []string{
	"future work", "we plan to", "we intend to", "could implement",
	"may implement", "will explore", "plan to implement", "in the future",
	"roadmap", "aspire to", "we hope to", "would like to",
}

// matchFutureWork rejects aspirational language anywhere in the chunk.
func matchFutureWork(text string, _ *model.Technique) bool {
	lower := strings.ToLower(text)
	for _, m := range futureWorkMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

var comparativeMarkers = []string{
	"unlike", "rather than", "instead of", "as opposed to",
	"in contrast to", "contrary to", "whereas",
}

// matchComparative rejects contrastive framing: a technique mentioned as the
// thing the system does NOT do.
func matchComparative(text string, _ *model.Technique) bool {
	lower := strings.ToLower(text)
	for _, m := range comparativeMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

var discussionMarkers = []string{
	"discussed in", "refers to", "such as", "e.g.", "for example",
	"as described in", "see also", "literature on",
}

var implementationMarkers = []string{
	"we use", "we implement", "we apply", "we employ", "we deploy",
	"we deployed", "deployed", "in production", "our system uses",
	"is enforced", "we run", "we trained", "we built",
}

// hasImplementationLanguage reports whether the chunk asserts actual use.
// Shared with the confidence adjustment.
func hasImplementationLanguage(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range implementationMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// matchDiscussionOnly rejects chunks that talk about a technique without any
// implementation language backing the mention.
func matchDiscussionOnly(text string, _ *model.Technique) bool {
	lower := strings.ToLower(text)
	discussed := false
	for _, m := range discussionMarkers {
		if strings.Contains(lower, m) {
			discussed = true
			break
		}
	}
	if !discussed {
		return false
	}
	return !hasImplementationLanguage(text)
}

var refusalMarkers = []string{
	"refuse", "refusal", "decline", "declin", "abstain", "abstention",
}

// matchAccessControlRefusal distinguishes access-control techniques from
// refusal behavior: refusal language under an access-control technique is a
// category confusion, not evidence.
func matchAccessControlRefusal(text string, tech *model.Technique) bool {
	if tech == nil || !strings.Contains(strings.ToLower(tech.Name), "access control") {
		return false
	}
	lower := strings.ToLower(text)
	for _, m := range refusalMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

var proposedPattern = regexp.MustCompile(`(?i)\b(proposed|recommended|suggested)\s+(by|in|approach)`)

// matchProposedPattern rejects proposals attributed to others.
func matchProposedPattern(text string, _ *model.Technique) bool {
	return proposedPattern.MatchString(text)
}
