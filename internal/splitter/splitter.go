// Package splitter produces leakage-free, seeded train/val/test splits.
// Assignment operates on duplicate groups, never individual records, so two
// copies of one photograph can never straddle a split boundary.
package splitter

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/plantset-cli/internal/model"
)

// Split names by ratio count.
var splitNames = map[int][]string{
	2: {"train", "test"},
	3: {"train", "val", "test"},
}

const ratioSumTolerance = 1e-9

// InfeasibleSplitError means a class has fewer groups than splits, so at
// least one split would end up with no example of that class.
type InfeasibleSplitError struct {
	Class  model.ClassLabel
	Groups int
	Splits int
}

func (e *InfeasibleSplitError) Error() string {
	return fmt.Sprintf("class %q has %d duplicate groups but %d splits require at least one group each", e.Class, e.Groups, e.Splits)
}

// Manifest is the complete split output for one corpus.
type Manifest struct {
	Seed   int64     `json:"seed"`
	Ratios []float64 `json:"ratios"`
	Splits []string  `json:"splits"`

	// Assignments covers every record exactly once, sorted by canonical
	// path so repeated runs serialize byte-identically.
	Assignments []model.SplitAssignment `json:"assignments"`

	// Counts is the per-split per-class record tally.
	Counts map[string]map[model.ClassLabel]int `json:"counts"`
}

// ValidateRatios accepts two or three positive ratios summing to 1.
func ValidateRatios(ratios []float64) error {
	if _, ok := splitNames[len(ratios)]; !ok {
		return eris.Errorf("splitter: need 2 or 3 ratios, got %d", len(ratios))
	}
	sum := 0.0
	for _, r := range ratios {
		if r <= 0 {
			return eris.Errorf("splitter: ratio %v is not positive", r)
		}
		sum += r
	}
	if math.Abs(sum-1) > ratioSumTolerance {
		return eris.Errorf("splitter: ratios sum to %v, want 1", sum)
	}
	return nil
}

// classGroup is one assignment unit: a duplicate group projected onto the
// class of its survivor.
type classGroup struct {
	id      int
	records []model.ImageRecord
}

// Split assigns every duplicate group to one split. Within each class,
// groups are shuffled by the seeded generator and then placed greedily on
// whichever split is furthest below its target record share, which keeps
// class balance near the requested ratios even with uneven group sizes.
// The result is fully determined by (records, groups, ratios, seed).
func Split(records []model.ImageRecord, groups []model.DuplicateGroup, ratios []float64, seed int64) (*Manifest, error) {
	if err := ValidateRatios(ratios); err != nil {
		return nil, err
	}
	splits := splitNames[len(ratios)]

	byPath := make(map[string]model.ImageRecord, len(records))
	for _, rec := range records {
		byPath[rec.CanonicalPath] = rec
	}

	byClass := make(map[model.ClassLabel][]classGroup)
	for _, g := range groups {
		survivor, ok := byPath[g.Survivor]
		if !ok {
			return nil, eris.Errorf("splitter: group %d survivor %q not in corpus", g.ID, g.Survivor)
		}
		cg := classGroup{id: g.ID}
		for _, member := range g.Members {
			rec, ok := byPath[member]
			if !ok {
				return nil, eris.Errorf("splitter: group %d member %q not in corpus", g.ID, member)
			}
			cg.records = append(cg.records, rec)
		}
		byClass[survivor.Class] = append(byClass[survivor.Class], cg)
	}

	classes := make([]model.ClassLabel, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Slice(classes, func(a, b int) bool { return classes[a] < classes[b] })

	for _, class := range classes {
		if len(byClass[class]) < len(splits) {
			return nil, &InfeasibleSplitError{
				Class:  class,
				Groups: len(byClass[class]),
				Splits: len(splits),
			}
		}
	}

	m := &Manifest{
		Seed:   seed,
		Ratios: append([]float64(nil), ratios...),
		Splits: splits,
		Counts: make(map[string]map[model.ClassLabel]int, len(splits)),
	}
	for _, split := range splits {
		m.Counts[split] = make(map[model.ClassLabel]int, len(classes))
	}

	// One generator, classes in sorted order: the shuffle sequence depends
	// only on the seed and the corpus.
	rng := rand.New(rand.NewSource(seed))
	for _, class := range classes {
		cgs := byClass[class]
		sort.Slice(cgs, func(a, b int) bool { return cgs[a].id < cgs[b].id })
		rng.Shuffle(len(cgs), func(a, b int) { cgs[a], cgs[b] = cgs[b], cgs[a] })

		assigned := assignClass(cgs, ratios)
		if err := checkTolerance(class, cgs, assigned, ratios, splits); err != nil {
			return nil, err
		}
		for s, split := range splits {
			for _, cg := range assigned[s] {
				m.Counts[split][class] += len(cg.records)
				for _, rec := range cg.records {
					m.Assignments = append(m.Assignments, model.SplitAssignment{
						CanonicalPath: rec.CanonicalPath,
						Class:         class,
						GroupID:       cg.id,
						Split:         split,
					})
				}
			}
		}
	}

	sort.Slice(m.Assignments, func(a, b int) bool {
		return m.Assignments[a].CanonicalPath < m.Assignments[b].CanonicalPath
	})

	zap.L().Info("split assigned",
		zap.Int64("seed", seed),
		zap.Int("groups", len(groups)),
		zap.Int("records", len(m.Assignments)))
	return m, nil
}

// assignClass places each group of one class on the split currently furthest
// below its target record count, then repairs any split left empty by moving
// the smallest group out of the fullest donor.
func assignClass(cgs []classGroup, ratios []float64) [][]classGroup {
	total := 0
	for _, cg := range cgs {
		total += len(cg.records)
	}

	assigned := make([][]classGroup, len(ratios))
	counts := make([]int, len(ratios))
	for _, cg := range cgs {
		best := 0
		bestDeficit := math.Inf(-1)
		for s, ratio := range ratios {
			deficit := ratio*float64(total) - float64(counts[s])
			if deficit > bestDeficit {
				best, bestDeficit = s, deficit
			}
		}
		assigned[best] = append(assigned[best], cg)
		counts[best] += len(cg.records)
	}

	// Extreme ratios can starve a small split even when enough groups
	// exist; every split must still hold at least one group of the class.
	for s := range assigned {
		if len(assigned[s]) > 0 {
			continue
		}
		donor := -1
		for d := range assigned {
			if len(assigned[d]) < 2 {
				continue
			}
			if donor == -1 || counts[d] > counts[donor] {
				donor = d
			}
		}
		if donor == -1 {
			continue
		}
		smallest := 0
		for i, cg := range assigned[donor] {
			if len(cg.records) < len(assigned[donor][smallest].records) {
				smallest = i
			}
		}
		moved := assigned[donor][smallest]
		assigned[donor] = append(assigned[donor][:smallest], assigned[donor][smallest+1:]...)
		assigned[s] = append(assigned[s], moved)
		counts[donor] -= len(moved.records)
		counts[s] += len(moved.records)
	}
	return assigned
}

// checkTolerance asserts the observed deviation bound instead of hoping for
// it. Group-atomic assignment cannot land closer to a target than group
// granularity allows, so the bound scales with the class's largest group:
// one granule of overshoot per competing split.
func checkTolerance(class model.ClassLabel, cgs []classGroup, assigned [][]classGroup, ratios []float64, splits []string) error {
	total, maxGroup := 0, 0
	for _, cg := range cgs {
		total += len(cg.records)
		if len(cg.records) > maxGroup {
			maxGroup = len(cg.records)
		}
	}
	tolerance := float64(maxGroup * (len(splits) - 1))
	for s, ratio := range ratios {
		count := 0
		for _, cg := range assigned[s] {
			count += len(cg.records)
		}
		if math.Abs(float64(count)-ratio*float64(total)) > tolerance {
			return eris.Errorf("splitter: class %s split %s holds %d records, target %.1f exceeds tolerance %.0f",
				class, splits[s], count, ratio*float64(total), tolerance)
		}
	}
	return nil
}
