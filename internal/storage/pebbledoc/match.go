package pebbledoc

import (
	"reflect"
	"sort"
	"strings"

	"github.com/docq-io/docq/internal/storage"
)

// lookupPath resolves a dotted field path in a document.
func lookupPath(doc map[string]any, path string) (any, bool) {
	cur := any(doc)
	for _, part := range strings.Split(path, ".") {
		m, ok := toMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func toMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case storage.Doc:
		return m, true
	}
	return nil, false
}

// isOperatorDoc reports whether v is a {"$op": ...} document.
func isOperatorDoc(v any) bool {
	m, ok := toMap(v)
	if !ok || len(m) == 0 {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

// matches reports whether doc satisfies every constraint in filter.
func matches(doc map[string]any, filter storage.Doc) bool {
	for path, want := range filter {
		got, ok := lookupPath(doc, path)
		if isOperatorDoc(want) {
			ops, _ := toMap(want)
			for op, arg := range ops {
				if !evalOp(op, got, ok, arg) {
					return false
				}
			}
			continue
		}
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

func evalOp(op string, got any, present bool, arg any) bool {
	switch op {
	case "$exists":
		want, _ := arg.(bool)
		return present == want
	case "$eq":
		return present && valuesEqual(got, arg)
	case "$ne":
		// An absent field satisfies $ne, matching Mongo semantics.
		return !present || !valuesEqual(got, arg)
	case "$in":
		if !present {
			return false
		}
		list := reflect.ValueOf(arg)
		if list.Kind() != reflect.Slice {
			return false
		}
		for i := 0; i < list.Len(); i++ {
			if valuesEqual(got, list.Index(i).Interface()) {
				return true
			}
		}
		return false
	case "$gt", "$gte", "$lt", "$lte":
		if !present {
			return false
		}
		c, ok := compareValues(got, arg)
		if !ok {
			return false
		}
		switch op {
		case "$gt":
			return c > 0
		case "$gte":
			return c >= 0
		case "$lt":
			return c < 0
		default:
			return c <= 0
		}
	}
	return false
}

// normalize maps values onto a canonical form so documents loaded from JSON
// (where every number is float64) compare equal to freshly written ones.
func normalize(v any) any {
	switch x := v.(type) {
	case storage.ID:
		return string(x)
	case storage.BlobID:
		return string(x)
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case storage.Doc:
		return normalizeMap(x)
	case map[string]any:
		return normalizeMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out
	}
	return v
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

func valuesEqual(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// compareValues orders two scalars. Numbers compare numerically, strings
// lexically; anything else is incomparable.
func compareValues(a, b any) (int, bool) {
	na, okA := normalize(a).(float64)
	nb, okB := normalize(b).(float64)
	if okA && okB {
		switch {
		case na < nb:
			return -1, true
		case na > nb:
			return 1, true
		}
		return 0, true
	}
	sa, okA := normalize(a).(string)
	sb, okB := normalize(b).(string)
	if okA && okB {
		return strings.Compare(sa, sb), true
	}
	return 0, false
}

// sortDocs orders docs by the given sort fields. An absent field sorts
// before any present value; incomparable values rank equal.
func sortDocs(docs []map[string]any, fields []storage.SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			av, aok := lookupPath(docs[i], f.Field)
			bv, bok := lookupPath(docs[j], f.Field)
			var c int
			switch {
			case !aok && !bok:
				c = 0
			case !aok:
				c = -1
			case !bok:
				c = 1
			default:
				c, _ = compareValues(av, bv)
			}
			if c == 0 {
				continue
			}
			if !f.Ascending {
				c = -c
			}
			return c < 0
		}
		return false
	})
}
