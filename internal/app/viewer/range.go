package viewer

import (
	"fmt"
	"time"

	"logview/internal/app/errors"
	"logview/internal/app/instances"
)

// DateRange is the window of logs to load; a nil Until means live
type DateRange struct {
	Since time.Time
	Until *time.Time
}

// Live returns an open-ended range starting at since
func Live(since time.Time) DateRange {
	return DateRange{Since: since}
}

// Bounded returns the closed range [since, until]
func Bounded(since, until time.Time) DateRange {
	return DateRange{Since: since, Until: &until}
}

// IsLive reports whether the range follows new logs
func (r DateRange) IsLive() bool {
	return r.Until == nil
}

// Validate checks that since is not after until
func (r DateRange) Validate() error {
	if r.Until != nil && r.Since.After(*r.Until) {
		return fmt.Errorf("%w: since %s is after until %s", errors.ErrInvalidDateRange,
			r.Since.Format(time.RFC3339), r.Until.Format(time.RFC3339))
	}

	return nil
}

func (r DateRange) String() string {
	if r.Until == nil {
		return fmt.Sprintf("[%s, live)", r.Since.Format(time.RFC3339))
	}

	return fmt.Sprintf("[%s, %s]", r.Since.Format(time.RFC3339), r.Until.Format(time.RFC3339))
}

// narrow intersects a bounded range with the lifetimes of the selected instances.
// Live ranges, empty selections and selections holding a ghost are returned unchanged.
func narrow(r DateRange, selected []*instances.Instance) DateRange {
	if r.IsLive() || len(selected) == 0 {
		return r
	}

	var (
		first time.Time
		last  time.Time
	)

	for i, inst := range selected {
		if inst.Ghost {
			return r
		}

		end := *r.Until
		if inst.DeletionDate != nil {
			end = *inst.DeletionDate
		}

		if i == 0 || inst.CreationDate.Before(first) {
			first = inst.CreationDate
		}

		if i == 0 || end.After(last) {
			last = end
		}
	}

	since := r.Since
	if first.After(since) {
		since = first
	}

	until := *r.Until
	if last.Before(until) {
		until = last
	}

	if since.After(until) {
		return r
	}

	return Bounded(since, until)
}

// rangeOf derives the range covering a deployment's instances
func rangeOf(list []*instances.Instance) DateRange {
	var d *instances.Deployment

	for _, inst := range list {
		if inst.Deployment != nil {
			d = inst.Deployment
			break
		}
	}

	if d != nil {
		if d.InProgress() || d.EndDate == nil {
			return Live(d.CreationDate)
		}

		return Bounded(d.CreationDate, *d.EndDate)
	}

	var since time.Time

	for i, inst := range list {
		if i == 0 || inst.CreationDate.Before(since) {
			since = inst.CreationDate
		}
	}

	return Live(since)
}

func ids(list []*instances.Instance) []string {
	out := make([]string, 0, len(list))
	for _, inst := range list {
		out = append(out, inst.ID)
	}

	return out
}
