package odoo

// Record is one row returned by search_read/read. Odoo models are open
// schemas, so unknown fields are preserved in the bag rather than dropped;
// the typed accessors below cover the closed set of fields the bridge
// actually interprets.
type Record map[string]any

// ID returns the record id, or 0 when absent.
func (r Record) ID() int64 {
	return asInt(r["id"])
}

// Str returns a string field, trimming is left to callers.
func (r Record) Str(key string) string {
	// Odoo serializes empty char fields as boolean false.
	if s, ok := r[key].(string); ok {
		return s
	}
	return ""
}

// Float returns a numeric field as float64 (ints are widened).
func (r Record) Float(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// Bool returns a boolean field.
func (r Record) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}

// Ref resolves a many2one field serialized as [id, display_name].
// Returns 0 when the field is unset (false on the wire).
func (r Record) Ref(key string) int64 {
	pair, ok := r[key].([]any)
	if !ok || len(pair) == 0 {
		return 0
	}
	return asInt(pair[0])
}

// IDs resolves a x2many field serialized as a list of ids.
func (r Record) IDs(key string) []int64 {
	list, ok := r[key].([]any)
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(list))
	for _, v := range list {
		if id := asInt(v); id != 0 {
			out = append(out, id)
		}
	}
	return out
}

func asInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

// asRecords converts a raw reply into Records.
func asRecords(reply any) []Record {
	list, ok := reply.([]any)
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Record(m))
		}
	}
	return out
}

// asIDList normalizes a create reply, which is a scalar id for a single
// record and a list for a batch.
func asIDList(reply any) []int64 {
	switch v := reply.(type) {
	case []any:
		out := make([]int64, 0, len(v))
		for _, item := range v {
			out = append(out, asInt(item))
		}
		return out
	default:
		if id := asInt(v); id != 0 {
			return []int64{id}
		}
	}
	return nil
}
