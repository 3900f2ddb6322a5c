package store

import (
	"context"
)

// Filter selects records by channel, id, time range and a free-form SQL
// clause, combined with AND. Zero values select everything.
type Filter struct {
	Channels  []int
	IDs       []int64
	TimeStart *float64
	TimeStop  *float64
	Where     string
	WhereArgs []any
}

// Conditions translates f into conditions on the data view. The time range
// is resolved to bounds on indexCol by binary search, so the scan never
// filters on the unindexed time column. ok is false when the range cannot
// match any row.
func (d *Database) Conditions(ctx context.Context, f Filter, indexCol string) (c Conditions, ok bool, err error) {
	if f.TimeStart != nil || f.TimeStop != nil {
		b, err := d.ResolveTimeRange(ctx, d.kind.DataTable(), indexCol, f.TimeStart, f.TimeStop)
		if err != nil {
			return c, false, err
		}
		if b.Empty {
			return c, false, nil
		}
		c.Bounds(indexCol, b)
	}
	if len(f.Channels) > 0 {
		chans := make([]int64, len(f.Channels))
		for i, ch := range f.Channels {
			chans[i] = int64(ch)
		}
		c.In("Chan", chans)
	}
	c.In(indexCol, f.IDs)
	c.Where(f.Where, f.WhereArgs...)
	return c, true, nil
}
