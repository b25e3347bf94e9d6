package app

import (
	"strconv"
	"strings"

	"codex-pipeline/internal/domain"
)

// IndexArgKind enumerates the accepted shapes of an index argument.
type IndexArgKind int

const (
	// IndexAbsent means "infer the default from the experiment configuration".
	IndexAbsent IndexArgKind = iota
	// IndexScalar is a single integer.
	IndexScalar
	// IndexString is a single numeric string.
	IndexString
	// IndexRange is a right-open integer range [Start, Stop).
	IndexRange
	// IndexList is an explicit list of integers, passed through unchanged.
	IndexList
)

// IndexArg is a closed tagged variant over the heterogeneous index argument
// shapes accepted on the CLI surface.
type IndexArg struct {
	Kind   IndexArgKind
	Scalar int
	Str    string
	Start  int
	Stop   int
	Values []int
}

func AbsentIndexes() IndexArg { return IndexArg{Kind: IndexAbsent} }

func ScalarIndex(v int) IndexArg { return IndexArg{Kind: IndexScalar, Scalar: v} }

func StringIndex(s string) IndexArg { return IndexArg{Kind: IndexString, Str: s} }

func RangeIndexes(a, b int) IndexArg { return IndexArg{Kind: IndexRange, Start: a, Stop: b} }

func ListIndexes(values []int) IndexArg { return IndexArg{Kind: IndexList, Values: values} }

// Resolve normalizes the argument to a concrete integer list. A nil result
// with nil error means the argument was absent and the caller should infer
// a default. An explicit list is returned unchanged. Positivity is not
// enforced here; PipelineConfig validates downstream.
func (a IndexArg) Resolve() ([]int, error) {
	switch a.Kind {
	case IndexAbsent:
		return nil, nil
	case IndexScalar:
		return []int{a.Scalar}, nil
	case IndexString:
		v, err := strconv.Atoi(strings.TrimSpace(a.Str))
		if err != nil {
			return nil, domain.ConfigurationErrorf("index argument %q is not an integer", a.Str)
		}
		return []int{v}, nil
	case IndexRange:
		var values []int
		for v := a.Start; v < a.Stop; v++ {
			values = append(values, v)
		}
		return values, nil
	case IndexList:
		return a.Values, nil
	default:
		return a.Values, nil
	}
}

// ParseIndexArg interprets a CLI index argument. Supported forms:
//
//	""        absent (infer default)
//	"3"       single index
//	"2-5"     right-open range [2, 5)
//	"(2,5)"   right-open range [2, 5)
//	"1,4,7"   explicit list
func ParseIndexArg(arg string) (IndexArg, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return AbsentIndexes(), nil
	}

	if strings.HasPrefix(arg, "(") && strings.HasSuffix(arg, ")") {
		inner := strings.TrimSuffix(strings.TrimPrefix(arg, "("), ")")
		parts := strings.Split(inner, ",")
		if len(parts) != 2 {
			return IndexArg{}, domain.ConfigurationErrorf("range argument %q must have two items", arg)
		}
		return parseRange(arg, parts[0], parts[1])
	}

	if strings.Contains(arg, ",") {
		parts := strings.Split(arg, ",")
		values := make([]int, 0, len(parts))
		for _, p := range parts {
			v, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return IndexArg{}, domain.ConfigurationErrorf("index list %q contains non-integer %q", arg, p)
			}
			values = append(values, v)
		}
		return ListIndexes(values), nil
	}

	if i := strings.Index(arg, "-"); i > 0 {
		return parseRange(arg, arg[:i], arg[i+1:])
	}

	return StringIndex(arg), nil
}

func parseRange(arg, start, stop string) (IndexArg, error) {
	a, err := strconv.Atoi(strings.TrimSpace(start))
	if err != nil {
		return IndexArg{}, domain.ConfigurationErrorf("range argument %q has non-integer start", arg)
	}
	b, err := strconv.Atoi(strings.TrimSpace(stop))
	if err != nil {
		return IndexArg{}, domain.ConfigurationErrorf("range argument %q has non-integer stop", arg)
	}
	return RangeIndexes(a, b), nil
}
