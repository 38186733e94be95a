// internal/rules/fieldpath.go
package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/solatis/tradepromo/internal/types"
)

/*
 * Field path resolution over subject records.
 *
 * Lets a variable read a nested field ("order.totals.net") instead of a
 * top-level key. Segments are separated by dots; a segment made of digits
 * indexes into a slice. Missing fields resolve to Found=false so the
 * variable's default applies.
 *
 * Path depth is bounded by MaxConditionDepth at parse time.
 */

// PathSegment is one component of a field path.
type PathSegment struct {
	Key     string
	Index   int
	IsIndex bool // disambiguates Index=0 from unset
}

// FieldPath is a parsed field path.
type FieldPath []PathSegment

// String renders the path in dotted form.
func (p FieldPath) String() string {
	parts := make([]string, len(p))
	for i, seg := range p {
		if seg.IsIndex {
			parts[i] = strconv.Itoa(seg.Index)
		} else {
			parts[i] = seg.Key
		}
	}
	return strings.Join(parts, ".")
}

// ParseFieldPath parses a dotted path. Empty segments are rejected.
func ParseFieldPath(s string) (FieldPath, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty field path", types.ErrMalformedRule)
	}
	parts := strings.Split(s, ".")
	if len(parts) > types.MaxConditionDepth {
		return nil, fmt.Errorf("%w: field path %q exceeds depth %d", types.ErrMalformedRule, s, types.MaxConditionDepth)
	}
	path := make(FieldPath, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("%w: empty segment in field path %q", types.ErrMalformedRule, s)
		}
		if idx, err := strconv.Atoi(part); err == nil && idx >= 0 {
			path = append(path, PathSegment{Index: idx, IsIndex: true})
			continue
		}
		path = append(path, PathSegment{Key: part})
	}
	return path, nil
}

// ResolveResult contains the resolved value.
type ResolveResult struct {
	Value any  // resolved value (nil if not found)
	Found bool // true if path resolved to a non-nil value
}

// Resolve walks subject following path.
func Resolve(path FieldPath, subject types.Subject) ResolveResult {
	var current any = map[string]any(subject)
	for _, seg := range path {
		next, ok := step(current, seg)
		if !ok {
			return ResolveResult{}
		}
		current = next
	}
	if current == nil {
		return ResolveResult{}
	}
	return ResolveResult{Value: current, Found: true}
}

func step(current any, seg PathSegment) (any, bool) {
	switch v := current.(type) {
	case map[string]any:
		if seg.IsIndex {
			val, ok := v[strconv.Itoa(seg.Index)]
			return val, ok
		}
		val, ok := v[seg.Key]
		return val, ok
	case types.Subject:
		return step(map[string]any(v), seg)
	case []any:
		if !seg.IsIndex || seg.Index >= len(v) {
			return nil, false
		}
		return v[seg.Index], true
	default:
		// Scalar value but path continues
		return nil, false
	}
}
