package odoosync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/proconsa/erp-bridge/internal/odoo"
	"github.com/proconsa/erp-bridge/internal/runlog"
)

var errBoom = fmt.Errorf("connection reset by peer")

// rpcCall is one recorded ExecuteKw invocation.
type rpcCall struct {
	Model  string
	Method string
	Args   []any
	Kwargs map[string]any
}

func (c rpcCall) String() string {
	return c.Model + "." + c.Method
}

// fakeOdoo is an in-memory stand-in for the XML-RPC port: a per-model record
// store with just enough domain/search semantics for the pipeline's queries,
// plus a full call log and per-endpoint fault injection.
type fakeOdoo struct {
	mu       sync.Mutex
	calls    []rpcCall
	data     map[string][]odoo.Record
	nextID   int64
	failures map[string]int // "model.method" → remaining forced failures
	failErr  error
	applyErr error // returned by action_apply_inventory
	// onCreate lets a test enrich stored records with server-computed
	// fields (e.g. a warehouse's lot_stock_id).
	onCreate func(model string, rec odoo.Record)
}

func newFakeOdoo() *fakeOdoo {
	return &fakeOdoo{
		data:     make(map[string][]odoo.Record),
		failures: make(map[string]int),
		nextID:   100,
	}
}

// seed inserts a record with an explicit id.
func (f *fakeOdoo) seed(model string, rec odoo.Record) {
	f.data[model] = append(f.data[model], rec)
}

func (f *fakeOdoo) failNext(model, method string, times int, err error) {
	f.failures[model+"."+method] = times
	f.failErr = err
}

func (f *fakeOdoo) callsTo(model, method string) []rpcCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []rpcCall
	for _, c := range f.calls {
		if c.Model == model && c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeOdoo) records(model string) []odoo.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]odoo.Record(nil), f.data[model]...)
}

func (f *fakeOdoo) byID(model string, id int64) odoo.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.data[model] {
		if r.ID() == id {
			return r
		}
	}
	return nil
}

func (f *fakeOdoo) ExecuteKw(_ context.Context, model, method string, args []any, kwargs map[string]any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rpcCall{Model: model, Method: method, Args: args, Kwargs: kwargs})

	key := model + "." + method
	if n := f.failures[key]; n > 0 {
		f.failures[key] = n - 1
		return nil, f.failErr
	}

	switch method {
	case "search_read":
		matched := f.filter(model, domainOf(args))
		return recordsToAny(page(matched, kwargs)), nil
	case "search":
		matched := f.filter(model, domainOf(args))
		ids := make([]any, 0, len(matched))
		for _, r := range page(matched, kwargs) {
			ids = append(ids, r.ID())
		}
		return ids, nil
	case "read":
		wanted := toIDSet(args[0])
		var out []any
		for _, r := range f.data[model] {
			if wanted[r.ID()] {
				out = append(out, map[string]any(r))
			}
		}
		return out, nil
	case "create":
		var valsList []map[string]any
		switch v := args[0].(type) {
		case map[string]any:
			valsList = []map[string]any{v}
		case []map[string]any:
			valsList = v
		default:
			return nil, fmt.Errorf("fake: unsupported create payload %T", args[0])
		}
		ids := make([]any, 0, len(valsList))
		for _, vals := range valsList {
			f.nextID++
			rec := odoo.Record{"id": f.nextID}
			for k, v := range vals {
				if ids, ok := replaceCommandIDs(v); ok {
					rec[k] = ids
					continue
				}
				rec[k] = v
			}
			if _, ok := rec["active"]; !ok {
				rec["active"] = true
			}
			// Odoo serializes many2one fields back as [id, name] pairs.
			for _, m2o := range []string{"parent_id", "product_id", "location_id", "categ_id", "lot_stock_id", "model_id"} {
				if id, ok := rec[m2o].(int64); ok {
					rec[m2o] = []any{id, ""}
				}
			}
			if f.onCreate != nil {
				f.onCreate(model, rec)
			}
			f.data[model] = append(f.data[model], rec)
			ids = append(ids, f.nextID)
		}
		if len(ids) == 1 {
			if _, batch := args[0].([]map[string]any); !batch {
				return ids[0], nil
			}
		}
		return ids, nil
	case "write":
		wanted := toIDSet(args[0])
		vals := args[1].(map[string]any)
		for _, r := range f.data[model] {
			if wanted[r.ID()] {
				for k, v := range vals {
					// x2many replace commands land as plain id lists, the
					// shape the server echoes back on read.
					if ids, ok := replaceCommandIDs(v); ok {
						r[k] = ids
						continue
					}
					r[k] = v
				}
			}
		}
		return true, nil
	case "unlink":
		wanted := toIDSet(args[0])
		kept := f.data[model][:0]
		for _, r := range f.data[model] {
			if !wanted[r.ID()] {
				kept = append(kept, r)
			}
		}
		f.data[model] = kept
		return true, nil
	case "action_apply_inventory":
		if f.applyErr != nil {
			return nil, f.applyErr
		}
		// Applying commits the counted quantity, like the real action.
		wanted := toIDSet(args[0])
		for _, r := range f.data[model] {
			if wanted[r.ID()] {
				r["quantity"] = r["inventory_quantity"]
			}
		}
		return true, nil
	}
	return nil, fmt.Errorf("fake: unsupported method %s on %s", method, model)
}

func domainOf(args []any) []any {
	if len(args) == 0 {
		return nil
	}
	d, _ := args[0].([]any)
	return d
}

func (f *fakeOdoo) filter(model string, domain []any) []odoo.Record {
	var out []odoo.Record
	for _, r := range f.data[model] {
		ok := true
		for _, raw := range domain {
			cond, isCond := raw.([]any)
			if !isCond || len(cond) != 3 {
				continue
			}
			if !matches(r, cond) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, r)
		}
	}
	return out
}

func matches(r odoo.Record, cond []any) bool {
	field, _ := cond[0].(string)
	op, _ := cond[1].(string)
	want := cond[2]
	got := r[field]

	switch op {
	case "=":
		return fmt.Sprint(got) == fmt.Sprint(want)
	case "!=":
		if want == false {
			// Odoo's "set and non-empty" idiom.
			return got != nil && got != false && got != ""
		}
		return fmt.Sprint(got) != fmt.Sprint(want)
	case "in":
		id := refID(got)
		for _, w := range anySlice(want) {
			if fmt.Sprint(w) == fmt.Sprint(id) {
				return true
			}
		}
		return false
	}
	return false
}

// replaceCommandIDs recognizes a [[6, 0, ids]] x2many replace command.
func replaceCommandIDs(v any) ([]any, bool) {
	cmds, ok := v.([]any)
	if !ok || len(cmds) != 1 {
		return nil, false
	}
	cmd, ok := cmds[0].([]any)
	if !ok || len(cmd) != 3 || fmt.Sprint(cmd[0]) != "6" {
		return nil, false
	}
	ids, ok := cmd[2].([]int64)
	if !ok {
		return nil, false
	}
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out, true
}

// refID unwraps a many2one [id, name] pair to its id.
func refID(v any) any {
	if pair, ok := v.([]any); ok && len(pair) > 0 {
		return pair[0]
	}
	return v
}

func anySlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []int64:
		out := make([]any, len(s))
		for i, n := range s {
			out[i] = n
		}
		return out
	}
	return nil
}

func page(records []odoo.Record, kwargs map[string]any) []odoo.Record {
	offset, _ := kwargs["offset"].(int)
	if offset >= len(records) {
		return nil
	}
	records = records[offset:]
	if limit, ok := kwargs["limit"].(int); ok && limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}

func recordsToAny(records []odoo.Record) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = map[string]any(r)
	}
	return out
}

func toIDSet(v any) map[int64]bool {
	out := make(map[int64]bool)
	switch ids := v.(type) {
	case []int64:
		for _, id := range ids {
			out[id] = true
		}
	case []any:
		for _, raw := range ids {
			switch id := raw.(type) {
			case int64:
				out[id] = true
			case int:
				out[int64(id)] = true
			}
		}
	}
	return out
}

// fakeERP serves canned extract rows.
type fakeERP struct {
	articles    []ArticleRow
	stock       []StockRow
	equivalents []EquivalentRow
	imageMeta   []ImageMetaRow
	imageBlobs  map[string][]byte
	articlesErr error

	blobRequests [][]string
}

func (f *fakeERP) FetchArticles(context.Context) ([]ArticleRow, error) {
	return f.articles, f.articlesErr
}

func (f *fakeERP) FetchStock(context.Context) ([]StockRow, error) {
	return f.stock, nil
}

func (f *fakeERP) FetchEquivalents(context.Context) ([]EquivalentRow, error) {
	return f.equivalents, nil
}

func (f *fakeERP) FetchImageMetadata(context.Context) ([]ImageMetaRow, error) {
	return f.imageMeta, nil
}

func (f *fakeERP) FetchImageBlobs(_ context.Context, skus []string) ([]ImageBlobRow, error) {
	f.blobRequests = append(f.blobRequests, skus)
	var out []ImageBlobRow
	for _, sku := range skus {
		if data, ok := f.imageBlobs[sku]; ok {
			out = append(out, ImageBlobRow{SKU: sku, Data: data})
		}
	}
	return out, nil
}

func newTestService(t *testing.T, rpc odoo.Caller, erpStore ERPStore, opts Options) *Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))
	rec := runlog.NewRecorder("test", opts.DryRun, logger)
	return NewService(rpc, erpStore, logger, opts, rec)
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
