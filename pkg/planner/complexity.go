package planner

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	DefaultChatModel     = "deepseek-chat"
	DefaultReasonerModel = "deepseek-reasoner"
)

// Analysis is the outcome of scoring a goal for reasoning depth
type Analysis struct {
	IsComplex        bool    `json:"is_complex"`
	SimpleScore      float64 `json:"simple_score"`
	ComplexScore     float64 `json:"complex_score"`
	LengthScore      float64 `json:"length_score"`
	StructureScore   float64 `json:"structure_score"`
	RecommendedModel string  `json:"recommended_model"`
	Reasoning        string  `json:"reasoning"`
}

var complexKeywords = map[string][]string{
	"mathematical": {
		"prove", "derive", "theorem", "equation", "integral", "derivative",
		"optimization", "algorithm", "mathematical proof", "statistical analysis",
		"probability distribution", "regression", "hypothesis testing",
	},
	"logical": {
		"analyze", "reasoning", "logic", "deduction", "induction", "inference",
		"causality", "correlation", "implications", "consequences", "paradox",
		"philosophical", "ethical dilemma", "moral reasoning",
	},
	"strategic": {
		"strategy", "planning", "optimization", "decision tree", "cost-benefit",
		"trade-off", "prioritize", "feasibility", "risk assessment", "scenario analysis",
		"business plan", "market analysis", "competitive analysis",
	},
	"creative": {
		"creative", "innovative", "brainstorm", "design", "architect", "invent",
		"novel approach", "alternative solution", "think outside the box",
		"unconventional", "original idea",
	},
	"research": {
		"research", "investigate", "comprehensive analysis", "literature review",
		"systematic study", "data mining", "trend analysis", "comparative study",
		"longitudinal study", "meta-analysis",
	},
	"complex_programming": {
		"architecture", "design pattern", "refactor", "optimize performance",
		"scalability", "distributed system", "microservices", "algorithm design",
		"data structure optimization", "system design", "code review",
	},
}

var simpleKeywords = []string{
	"what is", "define", "explain", "describe", "list", "show", "tell me",
	"how to", "when", "where", "who", "which", "basic", "simple",
	"calculate", "convert", "translate", "find", "search", "lookup",
	"weather", "time", "date", "current", "today", "now",
}

var complexPatterns = compileAll(
	`\b(?:why|how).*?(?:work|function|operate).*?(?:complex|complicated|sophisticated)\b`,
	`\bcompare.*?(?:and|vs|versus).*?(?:analyze|evaluation|assessment)\b`,
	`\b(?:pros and cons|advantages and disadvantages)\b`,
	`\b(?:step by step|detailed|comprehensive).*?(?:analysis|explanation|guide)\b`,
	`\b(?:multiple|several|various).*?(?:factors|considerations|aspects)\b`,
	`\b(?:cause|reason|factor).*?(?:behind|for|why)\b`,
	`\b(?:predict|forecast|estimate).*?(?:future|outcome|result)\b`,
	`\b(?:what if|suppose|imagine|consider)\b`,
	`\b(?:recommend|suggest|advise).*?(?:strategy|approach|solution)\b`,
)

var simplePatterns = compileAll(
	`\bwhat is\b`,
	`\bhow to\b.*?\b(?:basic|simple|quick)\b`,
	`\b(?:current|today|now)\b.*?\b(?:weather|time|date)\b`,
	`\bcalculate\s+\d+`,
	`\bconvert\s+\d+`,
	`\b(?:show|list|display)\b`,
)

var (
	conditionalWords = []string{"if", "when", "unless", "provided that"}
	conjunctions     = []string{"and", "but", "however", "moreover", "furthermore", "nevertheless"}
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// Score rates goal (plus optional routing context) for simple versus
// complex reasoning. Keyword matching is substring based, as is the
// structure check for conditionals and conjunctions.
func Score(goal, context string) Analysis {
	goalLower := strings.ToLower(goal)
	fullText := goalLower + " " + strings.ToLower(context)

	a := Analysis{
		SimpleScore:    simpleScore(goalLower),
		ComplexScore:   complexScore(fullText),
		LengthScore:    lengthScore(goal),
		StructureScore: structureScore(goal),
	}

	total := a.ComplexScore + a.LengthScore + a.StructureScore
	a.IsComplex = total > a.SimpleScore && total >= 2
	a.RecommendedModel = DefaultChatModel
	if a.IsComplex {
		a.RecommendedModel = DefaultReasonerModel
	}
	a.Reasoning = a.explain(total)
	return a
}

// TotalComplex is the combined complexity score compared against SimpleScore
func (a Analysis) TotalComplex() float64 {
	return a.ComplexScore + a.LengthScore + a.StructureScore
}

func simpleScore(text string) float64 {
	score := 0.0
	for _, kw := range simpleKeywords {
		if strings.Contains(text, kw) {
			score += 1.0
		}
	}
	for _, re := range simplePatterns {
		if re.MatchString(text) {
			score += 1.5
		}
	}
	return score
}

func complexScore(text string) float64 {
	score := 0.0
	for _, keywords := range complexKeywords {
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		switch {
		case hits > 1:
			score += float64(hits) * 1.5
		case hits == 1:
			score += 1.0
		}
	}
	for _, re := range complexPatterns {
		if re.MatchString(text) {
			score += 2.0
		}
	}
	return score
}

func lengthScore(goal string) float64 {
	words := len(strings.Fields(goal))
	switch {
	case words > 20:
		return 1.5
	case words > 15:
		return 1.0
	case words > 10:
		return 0.5
	default:
		return 0
	}
}

func structureScore(goal string) float64 {
	score := 0.0
	if strings.Count(goal, "?") > 1 {
		score += 1.0
	}

	lower := strings.ToLower(goal)
	for _, w := range conditionalWords {
		if strings.Contains(lower, w) {
			score += 0.5
			break
		}
	}

	count := 0
	for _, c := range conjunctions {
		if strings.Contains(lower, c) {
			count++
		}
	}
	switch {
	case count >= 2:
		score += 1.0
	case count == 1:
		score += 0.5
	}
	return score
}

func (a Analysis) explain(total float64) string {
	var parts []string
	if a.SimpleScore > 0 {
		parts = append(parts, fmt.Sprintf("Simple indicators (score: %.1f)", a.SimpleScore))
	}
	if a.ComplexScore > 0 {
		parts = append(parts, fmt.Sprintf("Complex reasoning indicators (score: %.1f)", a.ComplexScore))
	}
	if a.LengthScore > 0 {
		parts = append(parts, fmt.Sprintf("Length complexity (score: %.1f)", a.LengthScore))
	}
	if a.StructureScore > 0 {
		parts = append(parts, fmt.Sprintf("Structural complexity (score: %.1f)", a.StructureScore))
	}

	choice := DefaultChatModel + " (simple query)"
	if a.IsComplex {
		choice = DefaultReasonerModel + " (complex reasoning)"
	}
	return fmt.Sprintf("%s. Total: Simple=%.1f, Complex=%.1f. Recommended: %s",
		strings.Join(parts, "; "), a.SimpleScore, total, choice)
}
