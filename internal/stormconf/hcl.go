package stormconf

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// hclEntry is one flattened attribute with its source position.
type hclEntry struct {
	key   string
	pos   int
	value any
}

// loadHCL reads an HCL document. Storm keys contain dots, which HCL
// identifiers cannot, so blocks are flattened into dotted keys:
//
//	topology {
//	  workers = 4
//	}
//
// yields "topology.workers" = 4. Block labels become key segments too.
// Keys keep source order.
func loadHCL(src []byte) (*Map, error) {
	file, diags := hclsyntax.ParseConfig(src, "config.hcl", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, diags
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("unexpected HCL body type %T", file.Body)
	}

	var entries []hclEntry
	if err := collectHCL(body, "", &entries); err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].pos < entries[j].pos })

	m := NewMap()
	for _, e := range entries {
		m.Set(e.key, e.value)
	}
	return m, nil
}

func collectHCL(body *hclsyntax.Body, prefix string, out *[]hclEntry) error {
	for name, attr := range body.Attributes {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return diags
		}
		native, err := ctyToNative(val)
		if err != nil {
			return fmt.Errorf("attribute %q: %w", prefix+name, err)
		}
		*out = append(*out, hclEntry{key: prefix + name, pos: attr.SrcRange.Start.Byte, value: native})
	}
	for _, block := range body.Blocks {
		segments := append([]string{block.Type}, block.Labels...)
		if err := collectHCL(block.Body, prefix+strings.Join(segments, ".")+".", out); err != nil {
			return err
		}
	}
	return nil
}

// ctyToNative converts a cty.Value into plain Go values. Whole numbers
// become int so they compare equal to values decoded from YAML.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return int(i), nil
			}
		}
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert number to float64: %w", err)
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		it := v.ElementIterator()
		for it.Next() {
			key, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute '%s': %w", key.AsString(), err)
			}
			out[key.AsString()] = native
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
