package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ae-archive/vae/internal/errs"
)

// Predicate is a condition on a value column.
type Predicate func(v float64) bool

func GreaterThan(x float64) Predicate  { return func(v float64) bool { return v > x } }
func GreaterEqual(x float64) Predicate { return func(v float64) bool { return v >= x } }
func LessThan(x float64) Predicate     { return func(v float64) bool { return v < x } }
func LessEqual(x float64) Predicate    { return func(v float64) bool { return v <= x } }
func Equal(x float64) Predicate        { return func(v float64) bool { return v == x } }

type searcher struct {
	q          querier
	table      string
	valueCol   string
	indexCol   string
	minI, maxI int64
}

func (s *searcher) bounds(ctx context.Context) (bool, error) {
	var lo, hi sql.NullInt64
	// Two aggregate queries use the index; a combined MIN/MAX does not.
	if err := s.q.QueryRowContext(ctx, fmt.Sprintf("SELECT MIN(%s) FROM %s", s.indexCol, s.table)).Scan(&lo); err != nil {
		return false, fmt.Errorf("reading min %s: %w", s.indexCol, err)
	}
	if err := s.q.QueryRowContext(ctx, fmt.Sprintf("SELECT MAX(%s) FROM %s", s.indexCol, s.table)).Scan(&hi); err != nil {
		return false, fmt.Errorf("reading max %s: %w", s.indexCol, err)
	}
	if !lo.Valid || !hi.Valid {
		return false, nil
	}
	s.minI, s.maxI = lo.Int64, hi.Int64
	return true, nil
}

// probe returns the nearest existing index in the given direction from i,
// inclusive, together with its value.
func (s *searcher) probe(ctx context.Context, i int64, forward, inclusive bool) (int64, float64, bool, error) {
	op, order := ">", "ASC"
	if !forward {
		op, order = "<", "DESC"
	}
	if inclusive {
		op += "="
	}
	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s %s ? ORDER BY %s %s LIMIT 1",
		s.indexCol, s.valueCol, s.table, s.indexCol, op, s.indexCol, order)

	var idx int64
	var v sql.NullFloat64
	err := s.q.QueryRowContext(ctx, query, i).Scan(&idx, &v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("reading %s at %s %d: %w", s.valueCol, s.indexCol, i, err)
	}
	if !v.Valid {
		return 0, 0, false, fmt.Errorf("%w: %s.%s is NULL at %s %d", errs.ErrConsistency, s.table, s.valueCol, s.indexCol, idx)
	}
	return idx, v.Float64, true, nil
}

func (s *searcher) valueAt(ctx context.Context, i int64) (float64, error) {
	_, v, ok, err := s.probe(ctx, i, true, true)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: no row at %s %d", errs.ErrConsistency, s.indexCol, i)
	}
	return v, nil
}

func (s *searcher) unsorted(i int64) error {
	return &UnsortedColumnError{Table: s.table, Column: s.valueCol, Index: i}
}

// FindBoundary locates the boundary index of pred on a value column that
// is non-decreasing in indexCol. If pred holds on a run of equal values,
// lowerBound selects the first index of the run, otherwise the last. The
// second return value is false if pred holds nowhere, or when it is false
// at both ends of the table.
func (d *Database) FindBoundary(ctx context.Context, table, valueCol, indexCol string, pred Predicate, lowerBound bool) (int64, bool, error) {
	return findBoundary(ctx, d.reader, table, valueCol, indexCol, pred, lowerBound)
}

func findBoundary(ctx context.Context, q querier, table, valueCol, indexCol string, pred Predicate, lowerBound bool) (int64, bool, error) {
	s := &searcher{q: q, table: table, valueCol: valueCol, indexCol: indexCol}
	ok, err := s.bounds(ctx)
	if err != nil || !ok {
		return 0, false, err
	}

	i, found, err := s.bisect(ctx, pred, lowerBound)
	if err != nil || !found {
		return 0, false, err
	}
	i, err = s.extend(ctx, i, lowerBound)
	return i, err == nil, err
}

func (s *searcher) bisect(ctx context.Context, pred Predicate, lowerBound bool) (int64, bool, error) {
	lo, hi := s.minI, s.maxI
	vLo, err := s.valueAt(ctx, lo)
	if err != nil {
		return 0, false, err
	}
	vHi, err := s.valueAt(ctx, hi)
	if err != nil {
		return 0, false, err
	}
	if vLo > vHi {
		return 0, false, s.unsorted(lo)
	}

	cLo, cHi := pred(vLo), pred(vHi)
	switch {
	case cLo && cHi:
		if lowerBound {
			return lo, true, nil
		}
		return hi, true, nil
	case !cLo && !cHi:
		return 0, false, nil
	}

	for {
		mid, vMid, ok, err := s.interior(ctx, lo, hi)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			if cLo {
				return lo, true, nil
			}
			return hi, true, nil
		}
		if vMid < vLo || vMid > vHi {
			return 0, false, s.unsorted(mid)
		}
		if pred(vMid) == cLo {
			lo, vLo = mid, vMid
		} else {
			hi, vHi = mid, vMid
		}
	}
}

// interior returns an existing index strictly between lo and hi, as close
// to the midpoint as the stored indices allow.
func (s *searcher) interior(ctx context.Context, lo, hi int64) (int64, float64, bool, error) {
	if hi-lo < 2 {
		return 0, 0, false, nil
	}
	mid := lo + (hi-lo)/2
	i, v, ok, err := s.probe(ctx, mid, true, true)
	if err != nil {
		return 0, 0, false, err
	}
	if ok && i < hi {
		return i, v, true, nil
	}
	i, v, ok, err = s.probe(ctx, mid, false, true)
	if err != nil {
		return 0, 0, false, err
	}
	if ok && i > lo {
		return i, v, true, nil
	}
	return 0, 0, false, nil
}

// extend walks from start across neighbors with the same value, downwards
// for lowerBound and upwards otherwise.
func (s *searcher) extend(ctx context.Context, start int64, lowerBound bool) (int64, error) {
	v0, err := s.valueAt(ctx, start)
	if err != nil {
		return 0, err
	}
	i := start
	for {
		next, v, ok, err := s.probe(ctx, i, !lowerBound, false)
		if err != nil {
			return 0, err
		}
		if !ok || v != v0 {
			return i, nil
		}
		i = next
	}
}

// Bounds is an inclusive index range. Nil ends are unbounded.
type Bounds struct {
	Lo, Hi *int64
	// Empty is set when no index can satisfy the range.
	Empty bool
}

// ResolveTimeRange maps a [start, stop) range in seconds onto an inclusive
// index range using the raw tick column of table.
func (d *Database) ResolveTimeRange(ctx context.Context, table, indexCol string, start, stop *float64) (Bounds, error) {
	var b Bounds
	if start != nil {
		lo, ok, err := d.FindBoundary(ctx, table, "Time", indexCol, GreaterEqual(float64(d.Ticks(*start))), true)
		if err != nil {
			return b, err
		}
		if !ok {
			return Bounds{Empty: true}, nil
		}
		b.Lo = &lo
	}
	if stop != nil {
		hi, ok, err := d.FindBoundary(ctx, table, "Time", indexCol, LessThan(float64(d.Ticks(*stop))), false)
		if err != nil {
			return b, err
		}
		if !ok {
			return Bounds{Empty: true}, nil
		}
		b.Hi = &hi
	}
	if b.Lo != nil && b.Hi != nil && *b.Lo > *b.Hi {
		return Bounds{Empty: true}, nil
	}
	return b, nil
}
