package analysis

import (
	"maps"
	"slices"
	"strings"

	"docflow/internal/document/models"
)

// reconciler turns per-provider answers into one AIAnalysis.
type reconciler struct {
	threshold  float64
	quorum     int
	precedence map[string][]string
}

func (r reconciler) reconcile(results map[string]models.ProviderResult, failures map[string]string) *models.AIAnalysis {
	out := &models.AIAnalysis{
		Providers: results,
		Failures:  failures,
	}
	if len(failures) == 0 {
		out.Failures = nil
	}
	if len(results) == 0 {
		out.ValidationStatus = models.ValidationUndetermined
		return out
	}

	out.ConsensusCategory, out.ConsensusConfidence = consensus(results)
	out.Fields, out.FieldSources = r.reconcileFields(results)

	if out.ConsensusConfidence >= r.threshold && len(results) >= r.quorum {
		out.ValidationStatus = models.ValidationValid
	} else {
		out.ValidationStatus = models.ValidationNeedsReview
	}
	return out
}

// consensus is a majority vote over each responder's primary category.
// Ties go to the higher mean confidence, then to lexical order. Confidence is
// the agreeing providers' mean confidence scaled by agreeing/responding.
func consensus(results map[string]models.ProviderResult) (string, float64) {
	type tally struct {
		votes   int
		confSum float64
	}
	tallies := make(map[string]*tally)
	for _, res := range results {
		cat := normalizeCategory(res.PrimaryCategory())
		if cat == "" {
			continue
		}
		t, ok := tallies[cat]
		if !ok {
			t = &tally{}
			tallies[cat] = t
		}
		t.votes++
		t.confSum += res.Confidence
	}
	if len(tallies) == 0 {
		return "", 0
	}

	var (
		winner string
		best   *tally
	)
	for _, cat := range slices.Sorted(maps.Keys(tallies)) {
		t := tallies[cat]
		if best == nil {
			winner, best = cat, t
			continue
		}
		mean, bestMean := t.confSum/float64(t.votes), best.confSum/float64(best.votes)
		if t.votes > best.votes || (t.votes == best.votes && mean > bestMean) {
			winner, best = cat, t
		}
	}

	mean := best.confSum / float64(best.votes)
	return winner, mean * float64(best.votes) / float64(len(results))
}

// reconcileFields picks each field from the first provider in its precedence
// list that has it, falling back to the most confident responder.
func (r reconciler) reconcileFields(results map[string]models.ProviderResult) (map[string]string, map[string]string) {
	names := make(map[string]struct{})
	for _, res := range results {
		for k, v := range res.Fields {
			if strings.TrimSpace(v) != "" {
				names[k] = struct{}{}
			}
		}
	}
	if len(names) == 0 {
		return nil, nil
	}

	byConfidence := slices.SortedFunc(maps.Keys(results), func(a, b string) int {
		ca, cb := results[a].Confidence, results[b].Confidence
		switch {
		case ca > cb:
			return -1
		case ca < cb:
			return 1
		default:
			return strings.Compare(a, b)
		}
	})

	fields := make(map[string]string, len(names))
	sources := make(map[string]string, len(names))
	for name := range names {
		order := append(slices.Clone(r.precedence[name]), byConfidence...)
		for _, provider := range order {
			res, ok := results[provider]
			if !ok {
				continue
			}
			if v := strings.TrimSpace(res.Fields[name]); v != "" {
				fields[name] = v
				sources[name] = provider
				break
			}
		}
	}
	return fields, sources
}

func normalizeCategory(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}
