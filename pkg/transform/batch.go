package transform

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/gnana997/tsrewrite/pkg/query"
	"github.com/gnana997/tsrewrite/pkg/util"
)

// Job is one independent transformation of a batch.
type Job struct {
	// Name identifies the job in its Result, typically a file path.
	Name     string
	Source   string
	Query    *query.Query
	Template string
	Options  []Option
}

// Result is the outcome of one Job.
type Result struct {
	Name   string
	Output string
	Err    error
}

// RunBatch transforms every job concurrently, at most limit at a time. A
// non-positive limit selects a CPU-derived worker count.
//
// Results are in job order. A failing job does not stop the others; its
// error is reported in its Result. Jobs not yet started when ctx is
// cancelled report ctx.Err(), which RunBatch also returns.
func RunBatch(ctx context.Context, p Parser, jobs []Job, limit int) ([]Result, error) {
	results := make([]Result, len(jobs))
	if limit <= 0 {
		limit = util.GetOptimalPoolSize()
	}

	g := new(errgroup.Group)
	g.SetLimit(limit)
	for i, job := range jobs {
		g.Go(func() error {
			results[i].Name = job.Name
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}

			out, err := New(job.Source, p, job.Query, job.Template, job.Options...).Run()
			results[i].Output = out
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	return results, ctx.Err()
}
