package access

import (
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// buildRootline turns generated page ids and group lists into a rootline,
// optionally terminated by a content element.
func buildRootline(pageIDs []int, groups [][]int, withContent bool) Rootline {
	var r Rootline
	for i, pid := range pageIDs {
		g := []int{pid % 7}
		if i < len(groups) {
			g = append(g, groups[i]...)
		}
		_ = r.Push(NewPageElement(pid, g))
	}
	if withContent {
		_ = r.Push(NewContentElement(append([]int{1}, pageIDs...)))
	}
	return r
}

func TestProperty_RootlineRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("parse(toString(r)) equals r", prop.ForAll(
		func(pageIDs []int, groups [][]int, withContent bool) bool {
			r := buildRootline(pageIDs, groups, withContent)
			parsed := Parse(r.String())
			return parsed.Equal(r) && Parse(parsed.String()).Equal(parsed)
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
		gen.SliceOf(gen.SliceOf(gen.IntRange(0, 50))),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestProperty_GroupsSortedUnique(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("groups are sorted and duplicate free", prop.ForAll(
		func(pageIDs []int, groups [][]int) bool {
			out := buildRootline(pageIDs, groups, false).Groups()
			if !sort.IntsAreSorted(out) {
				return false
			}
			for i := 1; i < len(out); i++ {
				if out[i] == out[i-1] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
		gen.SliceOf(gen.SliceOf(gen.IntRange(-5, 50))),
	))

	properties.TestingRun(t)
}
