package cache

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// CacheKey identifies a logical upstream request.
type CacheKey struct {
	// Endpoint is the logical endpoint name (e.g., "lpus")
	Endpoint string

	// Params are the request parameters. Nil values and nil pointers are
	// treated as absent.
	Params map[string]any
}

// String generates a deterministic cache key string.
// Format: endpoint_param1:val1_param2:val2 with params sorted by name.
//
// Example:
//
//	lpus_district_id:7
//
// Values are not escaped, so a value containing "_name:" can produce the
// same key as a different parameter set. Callers must keep free-form values
// out of the key or make sure they sort last.
func (k CacheKey) String() string {
	var b strings.Builder
	b.WriteString(k.Endpoint)

	if len(k.Params) == 0 {
		return b.String()
	}

	names := make([]string, 0, len(k.Params))
	for name := range k.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v, ok := present(k.Params[name])
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "_%s:%v", name, v)
	}

	return b.String()
}

// Key is shorthand for CacheKey{Endpoint: endpoint, Params: params}.String().
func Key(endpoint string, params map[string]any) string {
	return CacheKey{Endpoint: endpoint, Params: params}.String()
}

// present dereferences pointers and reports whether v carries a value.
func present(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	return rv.Interface(), true
}
