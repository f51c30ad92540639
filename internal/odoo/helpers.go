package odoo

import (
	"context"
	"fmt"
)

// SearchOptions tune a search_read call.
type SearchOptions struct {
	Limit   int
	Offset  int
	Order   string
	Context map[string]any
}

// SearchRead runs one search_read page.
func SearchRead(ctx context.Context, c Caller, model string, domain []any, fields []string, opts SearchOptions) ([]Record, error) {
	kwargs := map[string]any{"fields": fields}
	if opts.Limit > 0 {
		kwargs["limit"] = opts.Limit
	}
	if opts.Offset > 0 {
		kwargs["offset"] = opts.Offset
	}
	if opts.Order != "" {
		kwargs["order"] = opts.Order
	}
	if opts.Context != nil {
		kwargs["context"] = opts.Context
	}
	reply, err := c.ExecuteKw(ctx, model, "search_read", []any{domain}, kwargs)
	if err != nil {
		return nil, err
	}
	return asRecords(reply), nil
}

// SearchReadAll pages through search_read until the result set is exhausted.
func SearchReadAll(ctx context.Context, c Caller, model string, domain []any, fields []string, batchSize int, extra map[string]any) ([]Record, error) {
	if batchSize <= 0 {
		batchSize = 200
	}
	var all []Record
	offset := 0
	for {
		page, err := SearchRead(ctx, c, model, domain, fields, SearchOptions{
			Limit:   batchSize,
			Offset:  offset,
			Context: extra,
		})
		if err != nil {
			return nil, fmt.Errorf("%s search_read offset %d: %w", model, offset, err)
		}
		if len(page) == 0 {
			return all, nil
		}
		all = append(all, page...)
		offset += batchSize
	}
}

// SearchAllIDs pages through plain search. Used instead of search_read for
// models where search_read is known to hang on large result sets.
func SearchAllIDs(ctx context.Context, c Caller, model string, domain []any, batchSize int) ([]int64, error) {
	if batchSize <= 0 {
		batchSize = 2000
	}
	var all []int64
	offset := 0
	for {
		reply, err := c.ExecuteKw(ctx, model, "search", []any{domain}, map[string]any{
			"limit":  batchSize,
			"offset": offset,
		})
		if err != nil {
			return nil, fmt.Errorf("%s search offset %d: %w", model, offset, err)
		}
		page := asIDList(reply)
		if len(page) == 0 {
			return all, nil
		}
		all = append(all, page...)
		offset += batchSize
	}
}

// ReadRecords reads ids in batches.
func ReadRecords(ctx context.Context, c Caller, model string, ids []int64, fields []string, batchSize int) ([]Record, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	var all []Record
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))
		reply, err := c.ExecuteKw(ctx, model, "read", []any{ids[start:end]}, map[string]any{"fields": fields})
		if err != nil {
			return nil, fmt.Errorf("%s read: %w", model, err)
		}
		all = append(all, asRecords(reply)...)
	}
	return all, nil
}

// Create inserts one or many records and returns the new ids.
func Create(ctx context.Context, c Caller, model string, vals any) ([]int64, error) {
	reply, err := c.ExecuteKw(ctx, model, "create", []any{vals}, nil)
	if err != nil {
		return nil, err
	}
	ids := asIDList(reply)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%s create: no ids returned", model)
	}
	return ids, nil
}

// Write applies one shared field map to a list of ids.
func Write(ctx context.Context, c Caller, model string, ids []int64, vals map[string]any) error {
	_, err := c.ExecuteKw(ctx, model, "write", []any{ids, vals}, nil)
	return err
}

// Unlink deletes records by id.
func Unlink(ctx context.Context, c Caller, model string, ids []int64) error {
	_, err := c.ExecuteKw(ctx, model, "unlink", []any{ids}, nil)
	return err
}
