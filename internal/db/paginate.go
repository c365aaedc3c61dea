package db

import (
	"context"

	"github.com/uptrace/bun"
)

// Pagination describes a window into a larger result set.
type Pagination struct {
	Offset     int `json:"offset"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	StartIndex int `json:"start_index"`
	EndIndex   int `json:"end_index"`
}

// defaultPageSize caps unbounded list requests.
const defaultPageSize = 100

// Paginate calculates pagination info for a bun query and returns the SelectQuery
// for the caller to execute.
func Paginate(
	ctx context.Context, q *bun.SelectQuery, offset, limit int,
) (*bun.SelectQuery, *Pagination, error) {
	// Count number of items without any limits or offsets.
	total, err := q.Count(ctx)
	if err != nil {
		return nil, nil, err
	}

	startIndex := offset
	if offset > total || offset < 0 {
		startIndex = min(max(offset, 0), total)
	}

	endIndex := startIndex + limit
	switch {
	case limit <= 0:
		endIndex = startIndex + defaultPageSize
	case startIndex+limit > total:
		endIndex = total
	}
	if endIndex > total {
		endIndex = total
	}

	q.Offset(startIndex)
	q.Limit(endIndex - startIndex)

	return q, &Pagination{
		Offset:     offset,
		Limit:      limit,
		Total:      total,
		StartIndex: startIndex,
		EndIndex:   endIndex,
	}, nil
}
