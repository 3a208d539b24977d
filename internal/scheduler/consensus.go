package scheduler

import (
	"github.com/luigi-run/luigi/internal/types"
)

// ConsensusResult is the outcome of combining reviewer rankings and verdicts
// for one iteration (spec.md section 4.6 phase 6).
type ConsensusResult struct {
	WinnerID string
	// Unanimous is true when every reviewer's verdict on WinnerID agrees.
	Unanimous bool
	// Verdict is only meaningful when Unanimous is true.
	Verdict types.ReviewVerdict
}

// computeConsensus selects a winning candidate via Borda count across
// reviewer rankings, tie-broken by earliest candidate id, then checks
// whether every reviewer's verdict on that winner agrees (spec.md section
// 4.6 phase 6). candidateIDs fixes iteration order for determinism.
func computeConsensus(candidateIDs []string, reviews []types.Review) ConsensusResult {
	scores := make(map[string]int, len(candidateIDs))
	for _, id := range candidateIDs {
		scores[id] = 0
	}

	byReviewer := make(map[string][]types.Review)
	for _, r := range reviews {
		byReviewer[r.ReviewerID] = append(byReviewer[r.ReviewerID], r)
	}

	for _, revs := range byReviewer {
		ranking := rankingFor(revs, candidateIDs)
		n := len(ranking)
		for pos, id := range ranking {
			// Borda count: first place earns n-1 points, last place earns 0.
			scores[id] += n - 1 - pos
		}
	}

	winner := earliestHighestScore(candidateIDs, scores)

	verdicts := make(map[types.ReviewVerdict]int)
	for _, r := range reviews {
		if r.CandidateID == winner && r.Status == types.ReviewFinal {
			verdicts[r.Verdict]++
		}
	}

	result := ConsensusResult{WinnerID: winner}
	if len(verdicts) == 1 {
		for v := range verdicts {
			result.Unanimous = true
			result.Verdict = v
		}
	}
	return result
}

// rankingFor returns a single reviewer's ranking of candidates, falling back
// to candidateIDs order (stable) for any candidate the reviewer's ranking
// omitted — a defensive default so a malformed ranking never drops a
// candidate from scoring entirely.
func rankingFor(reviews []types.Review, candidateIDs []string) []string {
	if len(reviews) == 0 {
		return candidateIDs
	}
	ranking := reviews[0].Ranking

	seen := make(map[string]bool, len(ranking))
	out := make([]string, 0, len(candidateIDs))
	for _, id := range ranking {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range candidateIDs {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

// earliestHighestScore returns the candidate with the highest score,
// breaking ties by earliest position in candidateIDs (candidate creation
// order, per spec.md section 4.6 phase 6's "earliest candidate id").
func earliestHighestScore(candidateIDs []string, scores map[string]int) string {
	best := ""
	bestScore := -1
	for _, id := range candidateIDs {
		if scores[id] > bestScore {
			best = id
			bestScore = scores[id]
		}
	}
	return best
}
