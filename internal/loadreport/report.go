// Package loadreport summarizes a concurrent run against the counter.
package loadreport

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
)

// Recorder collects the outcome of each hit of a run. Safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	values    []int64
	successes int64
	errors    int64
}

// Record is for direct invocations, which return the new views.
func (r *Recorder) Record(views int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.errors++
		return
	}
	r.successes++
	r.values = append(r.values, views)
}

// RecordAccepted is for hits that only hand a view over, such as a Pub/Sub publish.
// They count as successes but return no value to compare.
func (r *Recorder) RecordAccepted(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.errors++
		return
	}
	r.successes++
}

func (r *Recorder) Successes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.successes
}

type Report struct {
	Initial   int64
	Final     int64
	Successes int64
	Errors    int64
	// Duplicates are values returned to more than one invocation.
	Duplicates []int64
	// Lost is the number of successful invocations not reflected in Final.
	Lost int64
}

func (r *Recorder) Report(initial, final int64) Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	dups := lo.FindDuplicates(r.values)
	sort.Slice(dups, func(i, j int) bool { return dups[i] < dups[j] })

	return Report{
		Initial:    initial,
		Final:      final,
		Successes:  r.successes,
		Errors:     r.errors,
		Duplicates: dups,
		Lost:       r.successes - (final - initial),
	}
}

func (r Report) String() string {
	return fmt.Sprintf("initial=%s, final=%s, successes=%s, errors=%s, lost=%s, duplicated values=%s",
		humanize.Comma(r.Initial),
		humanize.Comma(r.Final),
		humanize.Comma(r.Successes),
		humanize.Comma(r.Errors),
		humanize.Comma(r.Lost),
		humanize.Comma(int64(len(r.Duplicates))),
	)
}
