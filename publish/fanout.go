package publish

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
)

// Result is the outcome of one sink.
type Result struct {
	Sink string
	Err  error
}

// Fanout delivers a metric to each publisher in turn. A failing sink does
// not stop the ones after it.
type Fanout []Publisher

// Publish returns one Result per publisher, in order.
func (f Fanout) Publish(ctx context.Context, m Metric) []Result {
	results := make([]Result, 0, len(f))
	for _, p := range f {
		err := p.Publish(ctx, m)
		if err != nil {
			log.Errorf("Delivery to %s failed: %v", p.Name(), err)
		} else {
			log.Debugf("Delivered to %s", p.Name())
		}
		results = append(results, Result{Sink: p.Name(), Err: err})
	}
	return results
}

// Err joins the errors of every failed sink, or returns nil.
func Err(results []Result) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}
