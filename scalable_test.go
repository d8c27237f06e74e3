package sbloom

import (
	"fmt"
	"iter"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// smallParams grows quickly so tests cross several generations.
var smallParams = FilterParams{
	FalsePositiveRate: 0.01,
	InitialCapacity:   10,
	GrowthRate:        2,
	TighteningRatio:   0.5,
}

func newStringBuilder(t *testing.T, p FilterParams) *Builder[string] {
	t.Helper()
	b, err := NewBuilder[string](p, StringHasher{})
	require.NoError(t, err)
	return b
}

// keys yields prefix-0 .. prefix-(n-1).
func keys(prefix string, n int) iter.Seq[string] {
	return func(yield func(string) bool) {
		for i := range n {
			if !yield(fmt.Sprintf("%s-%d", prefix, i)) {
				return
			}
		}
	}
}

// generationCounts returns each sub-filter's Count, most recent first.
func generationCounts[T any](s *Scalable[T]) []uint64 {
	var counts []uint64
	for _, f := range s.SubFilters() {
		counts = append(counts, f.Count())
	}
	return counts
}

func TestScalableGrowthScenario(t *testing.T) {
	b := newStringBuilder(t, smallParams)

	s := b.Build(keys("first", 5))
	require.Equal(t, 1, s.SubFilterCount())

	grown := s.AddAll(keys("second", 20))
	require.Greater(t, grown.SubFilterCount(), 1)

	for v := range keys("first", 5) {
		require.True(t, grown.MayContain(v), v)
	}
	for v := range keys("second", 20) {
		require.True(t, grown.MayContain(v), v)
	}
}

func TestScalableGenerationRouting(t *testing.T) {
	b := newStringBuilder(t, smallParams)

	// Filling generation 0 exactly does not open generation 1.
	s := b.Build(keys("a", 10))
	require.Equal(t, []uint64{10}, generationCounts(s))

	// The next element does.
	s = s.Add("overflow")
	require.Equal(t, []uint64{1, 10}, generationCounts(s))

	// 10 + 20 + 40 + 5
	s = b.Build(keys("b", 75))
	require.Equal(t, []uint64{5, 40, 20, 10}, generationCounts(s))
	require.Equal(t, uint64(75), s.ApproximateElementCount())
}

func TestScalableResumeMatchesSingleBuild(t *testing.T) {
	b := newStringBuilder(t, smallParams)
	all := slices.Collect(keys("k", 75))

	oneShot := b.BuildSlice(all)

	resumed := b.BuildSlice(all[:30])
	require.Equal(t, []uint64{20, 10}, generationCounts(resumed))

	// Batch boundaries land mid-generation, on a full head and at the end.
	prev := 30
	for _, cut := range []int{31, 44, 70, 75} {
		resumed = resumed.Add(all[prev:cut]...)
		prev = cut
	}

	require.Equal(t, generationCounts(oneShot), generationCounts(resumed))
	for i, f := range oneShot.SubFilters() {
		require.Equal(t, f.NumBlocks(), resumed.SubFilters()[i].NumBlocks(), "generation %d size", i)
		require.Equal(t, f.K(), resumed.SubFilters()[i].K(), "generation %d k", i)
	}
}

func TestScalableGenerationSizing(t *testing.T) {
	b := newStringBuilder(t, smallParams)
	s := b.Build(keys("k", 75))

	filters := s.SubFilters()
	for i, f := range filters {
		g := len(filters) - 1 - i
		numBlocks, k, _ := OptimalParams(smallParams.Capacity(g), smallParams.Probability(g))
		require.Equal(t, numBlocks, f.NumBlocks(), "generation %d", g)
		require.Equal(t, k, f.K(), "generation %d", g)
	}
}

func TestScalableNoFalseNegatives(t *testing.T) {
	params := []FilterParams{
		smallParams,
		{FalsePositiveRate: 0.1, InitialCapacity: 1, GrowthRate: 1, TighteningRatio: 0.9},
		{FalsePositiveRate: 0.001, InitialCapacity: 3, GrowthRate: 5, TighteningRatio: 0.1},
		{FalsePositiveRate: 0.5, InitialCapacity: 1000, GrowthRate: 4, TighteningRatio: 0.99},
	}

	for _, p := range params {
		t.Run(fmt.Sprintf("%+v", p), func(t *testing.T) {
			b := newStringBuilder(t, p)
			s := b.Build(keys("built", 500))
			s = s.AddAll(keys("added", 700))

			for v := range keys("built", 500) {
				require.True(t, s.MayContain(v), v)
			}
			for v := range keys("added", 700) {
				require.True(t, s.MayContain(v), v)
			}
			require.Equal(t, uint64(1200), s.ApproximateElementCount())
		})
	}
}

func TestScalableMonotonicity(t *testing.T) {
	b := newStringBuilder(t, smallParams)
	s := b.Empty()

	prevCount := s.ApproximateElementCount()
	prevFilters := s.SubFilterCount()
	for batch := range 20 {
		s = s.AddAll(keys(fmt.Sprintf("batch%d", batch), batch*3))

		require.GreaterOrEqual(t, s.SubFilterCount(), prevFilters)
		require.GreaterOrEqual(t, s.ApproximateElementCount(), prevCount)
		require.GreaterOrEqual(t, s.SubFilterCount(), 1)

		prevCount = s.ApproximateElementCount()
		prevFilters = s.SubFilterCount()
	}
}

func TestScalableAddDoesNotMutateSource(t *testing.T) {
	b := newStringBuilder(t, smallParams)
	base := b.Build(keys("base", 15)) // generations: [5, 10]
	baseCounts := generationCounts(base)
	baseFilters := base.SubFilters()

	grown := base.AddAll(keys("more", 3))

	require.Equal(t, baseCounts, generationCounts(base))
	require.Equal(t, []uint64{8, 10}, generationCounts(grown))

	// The active head is copied, frozen generations are shared.
	require.NotSame(t, baseFilters[0], grown.SubFilters()[0])
	require.Same(t, baseFilters[1], grown.SubFilters()[1])

	for v := range keys("more", 3) {
		require.True(t, grown.MayContain(v))
	}
}

func TestScalableAddAfterFullHeadSharesIt(t *testing.T) {
	b := newStringBuilder(t, smallParams)
	base := b.Build(keys("base", 10)) // head exactly full

	grown := base.Add("next")
	require.Equal(t, 2, grown.SubFilterCount())
	// Nothing was written to the old head, so it is shared as-is.
	require.Same(t, base.SubFilters()[0], grown.SubFilters()[1])
}

func TestScalableEmptyAddReturnsReceiver(t *testing.T) {
	b := newStringBuilder(t, smallParams)
	s := b.Build(keys("k", 7))

	require.Same(t, s, s.AddAll(keys("none", 0)))
	require.Same(t, s, s.Add())
}

func TestScalableBuildFromMapSequence(t *testing.T) {
	b := newStringBuilder(t, smallParams)

	m := map[string]struct{}{"x": {}, "y": {}, "z": {}}
	var seq iter.Seq[string] = func(yield func(string) bool) {
		for k := range m {
			if !yield(k) {
				return
			}
		}
	}
	s := b.Build(seq)
	require.Equal(t, uint64(3), s.ApproximateElementCount())
	for k := range m {
		require.True(t, s.MayContain(k))
	}
}

func TestScalableFalsePositiveRate(t *testing.T) {
	p := FilterParams{FalsePositiveRate: 0.01, InitialCapacity: 1000, GrowthRate: 2, TighteningRatio: 0.5}
	b := newStringBuilder(t, p)
	s := b.Build(keys("item", 10_000))
	require.Equal(t, 4, s.SubFilterCount())

	const probes = 20_000
	var falsePositives int
	for v := range keys("notitem", probes) {
		if s.MayContain(v) {
			falsePositives++
		}
	}

	// The compound rate is bounded by p / (1 - r); allow 1.5x for variance.
	bound := 1.5 * p.FalsePositiveRate / (1 - p.TighteningRatio)
	rate := float64(falsePositives) / probes
	require.LessOrEqual(t, rate, bound)
	require.Less(t, s.EstimatedFalsePositiveRate(), bound)

	t.Logf("FP rate: %.4f (estimated %.4f, bound %.4f, generations %d)",
		rate, s.EstimatedFalsePositiveRate(), bound, s.SubFilterCount())
}

func TestScalableConcurrentReadsAndGrowth(t *testing.T) {
	b := newStringBuilder(t, smallParams)
	base := b.Build(keys("base", 25))
	baseCounts := generationCounts(base)

	const workers = 8
	results := make([]*Scalable[string], workers)

	var wg sync.WaitGroup
	wg.Add(workers * 2)
	for w := range workers {
		go func() {
			defer wg.Done()
			results[w] = base.AddAll(keys(fmt.Sprintf("w%d", w), 100))
		}()
		go func() {
			defer wg.Done()
			for v := range keys("base", 25) {
				if !base.MayContain(v) {
					t.Errorf("false negative for %s during concurrent growth", v)
				}
			}
		}()
	}
	wg.Wait()

	require.Equal(t, baseCounts, generationCounts(base))
	for w, s := range results {
		require.Equal(t, uint64(125), s.ApproximateElementCount())
		for v := range keys(fmt.Sprintf("w%d", w), 100) {
			require.True(t, s.MayContain(v))
		}
		for v := range keys("base", 25) {
			require.True(t, s.MayContain(v))
		}
	}
}

func TestScalableCustomHasher(t *testing.T) {
	type user struct {
		ID   uint64
		Name string
	}
	byID := HasherFunc[user](func(u user) uint64 { return Uint64Hasher{}.Hash(u.ID) })

	b, err := NewBuilder[user](smallParams, byID)
	require.NoError(t, err)

	users := []user{{1, "ada"}, {2, "grace"}, {3, "edsger"}}
	s := b.BuildSlice(users)
	for _, u := range users {
		require.True(t, s.MayContain(u))
		// Only the ID takes part in the hash.
		require.True(t, s.MayContain(user{ID: u.ID}))
	}
}
