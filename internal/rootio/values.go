package rootio

import (
	"fmt"

	"go-hep.org/x/hep/groot/rtree"
)

// selectVars returns read variables for the named branches of t. Required
// branches missing from the tree are an error; optional ones are left out.
// The count leaf of an array branch is always selected ahead of the array,
// since the reader resolves array sizes from leaves it has already seen.
func selectVars(t rtree.Tree, required, optional []string) ([]rtree.ReadVar, error) {
	all := rtree.NewReadVars(t)
	byName := make(map[string]rtree.ReadVar, len(all))
	for _, rv := range all {
		byName[rv.Name] = rv
	}

	out := make([]rtree.ReadVar, 0, len(required)+len(optional))
	seen := make(map[string]bool, len(required)+len(optional))
	add := func(rv rtree.ReadVar) {
		if seen[rv.Name] {
			return
		}
		if cnt := leafCount(t, rv); cnt != "" && !seen[cnt] {
			if c, ok := byName[cnt]; ok {
				seen[c.Name] = true
				out = append(out, c)
			}
		}
		seen[rv.Name] = true
		out = append(out, rv)
	}

	for _, name := range required {
		rv, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("tree %q: missing branch %q", t.Name(), name)
		}
		add(rv)
	}
	for _, name := range optional {
		if rv, ok := byName[name]; ok {
			add(rv)
		}
	}
	return out, nil
}

// leafCount returns the name of the leaf-count of rv, if any.
func leafCount(t rtree.Tree, rv rtree.ReadVar) string {
	b := t.Branch(rv.Name)
	if b == nil {
		return ""
	}
	leaf := b.Leaf(rv.Leaf)
	if leaf == nil || leaf.LeafCount() == nil {
		return ""
	}
	return leaf.LeafCount().Name()
}

// varsByName indexes read variables by branch name.
func varsByName(rvars []rtree.ReadVar) map[string]interface{} {
	m := make(map[string]interface{}, len(rvars))
	for _, rv := range rvars {
		m[rv.Name] = rv.Value
	}
	return m
}

func toInt64(v interface{}) (int64, error) {
	switch v := v.(type) {
	case *int8:
		return int64(*v), nil
	case *int16:
		return int64(*v), nil
	case *int32:
		return int64(*v), nil
	case *int64:
		return *v, nil
	case *uint8:
		return int64(*v), nil
	case *uint16:
		return int64(*v), nil
	case *uint32:
		return int64(*v), nil
	case *uint64:
		return int64(*v), nil
	}
	return 0, fmt.Errorf("unsupported integer branch type %T", v)
}

func toFloat64(v interface{}) (float64, error) {
	switch v := v.(type) {
	case *float32:
		return float64(*v), nil
	case *float64:
		return *v, nil
	}
	i, err := toInt64(v)
	if err != nil {
		return 0, fmt.Errorf("unsupported float branch type %T", v)
	}
	return float64(i), nil
}

// appendInts appends the elements of a slice branch to dst.
func appendInts(dst []int64, v interface{}) ([]int64, error) {
	switch v := v.(type) {
	case *[]int16:
		for _, x := range *v {
			dst = append(dst, int64(x))
		}
	case *[]int32:
		for _, x := range *v {
			dst = append(dst, int64(x))
		}
	case *[]int64:
		dst = append(dst, *v...)
	case *[]uint16:
		for _, x := range *v {
			dst = append(dst, int64(x))
		}
	case *[]uint32:
		for _, x := range *v {
			dst = append(dst, int64(x))
		}
	case *[]uint64:
		for _, x := range *v {
			dst = append(dst, int64(x))
		}
	default:
		return dst, fmt.Errorf("unsupported integer slice branch type %T", v)
	}
	return dst, nil
}

func appendFloats(dst []float64, v interface{}) ([]float64, error) {
	switch v := v.(type) {
	case *[]float32:
		for _, x := range *v {
			dst = append(dst, float64(x))
		}
	case *[]float64:
		dst = append(dst, *v...)
	default:
		return dst, fmt.Errorf("unsupported float slice branch type %T", v)
	}
	return dst, nil
}

// vec3 reads three scalar float branches as a vector.
func vec3(vars map[string]interface{}, x, y, z string) ([3]float64, error) {
	var out [3]float64
	for i, name := range []string{x, y, z} {
		f, err := toFloat64(vars[name])
		if err != nil {
			return out, fmt.Errorf("branch %q: %w", name, err)
		}
		out[i] = f
	}
	return out, nil
}
