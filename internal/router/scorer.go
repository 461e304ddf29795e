// In file: internal/router/scorer.go
package router

import (
	"regexp"
	"sort"
	"strings"
)

// Confidence model: each capability tag found in the query adds
// capabilityWeight, and each distinct long query word found in the provider's
// operation descriptions adds descriptionWeight. A raw score above
// boostThreshold is multiplied by multiSignalBoost, then everything is scaled
// by the provider's priority.
const (
	capabilityWeight  = 1.0
	descriptionWeight = 0.5
	boostThreshold    = 1.0
	multiSignalBoost  = 1.5

	// minWordLength filters stop words; shorter query words never count as
	// description matches.
	minWordLength = 4
)

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

// scoreProviders ranks the given connected providers for a query. Providers
// with a zero score are excluded. Ties break by priority, then by name, so
// equal inputs always produce the same ranking.
func scoreProviders(query string, views []candidateView) []Candidate {
	lowered := strings.ToLower(query)
	queryWords := distinctLongWords(lowered)

	priorities := make(map[string]float64, len(views))
	candidates := make([]Candidate, 0, len(views))
	for _, view := range views {
		score := rawScore(lowered, queryWords, view)
		if score <= 0 {
			continue
		}
		if score > boostThreshold {
			score *= multiSignalBoost
		}
		score *= view.priority
		priorities[view.name] = view.priority
		candidates = append(candidates, Candidate{Provider: view.name, Confidence: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		pi, pj := priorities[candidates[i].Provider], priorities[candidates[j].Provider]
		if pi != pj {
			return pi > pj
		}
		return candidates[i].Provider < candidates[j].Provider
	})
	return candidates
}

// rawScore computes the unboosted, unscaled match score for one provider.
func rawScore(loweredQuery string, queryWords map[string]struct{}, view candidateView) float64 {
	score := 0.0
	for _, tag := range view.capabilities {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if strings.Contains(loweredQuery, tag) {
			score += capabilityWeight
		}
	}

	if len(queryWords) > 0 {
		descWords := descriptionWords(view.operations)
		for word := range queryWords {
			if _, ok := descWords[word]; ok {
				score += descriptionWeight
			}
		}
	}
	return score
}

// distinctLongWords tokenizes a lowered query into the set of words long
// enough to be meaningful match signals.
func distinctLongWords(lowered string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, word := range wordPattern.FindAllString(lowered, -1) {
		if len(word) >= minWordLength {
			words[word] = struct{}{}
		}
	}
	return words
}

// descriptionWords builds the word set of all operation descriptions. The
// qualified "[PROVIDER]" prefix is part of the description, so the provider's
// own name counts as a match signal too.
func descriptionWords(ops []Operation) map[string]struct{} {
	words := make(map[string]struct{})
	for _, op := range ops {
		for _, word := range wordPattern.FindAllString(strings.ToLower(op.Description), -1) {
			words[word] = struct{}{}
		}
	}
	return words
}
