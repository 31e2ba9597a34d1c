// Package schema validates document trees against declared node specs.
//
// A Schema maps node types to NodeSpec values describing the attributes a
// node may carry, the child node types it accepts, and the marks that may be
// applied to it. Attribute values are checked through a small type system
// (string, int, bool, slices, custom validators).
//
// Basic usage:
//
//	s := schema.Schema{
//	    "doc":       {Content: []string{"paragraph", "heading"}},
//	    "paragraph": {Content: []string{"text"}, Marks: []string{"bold", "italic"}},
//	    "heading": {
//	        Attrs:    schema.AttrSchema{"level": schema.Int()},
//	        Required: []string{"level"},
//	        Content:  []string{"text"},
//	    },
//	    "text": {Content: []string{}},
//	}
//
//	if err := s.ValidatePool(pool); err != nil {
//	    // Handle validation errors
//	}
//
// Attribute schemas can be created programmatically or parsed from type
// strings:
//
//	attrs, err := schema.ParseTypeMap(map[string]string{
//	    "level": "int",
//	    "align": "string",
//	})
//
// Custom validators handle domain-specific constraints:
//
//	level := schema.Custom("heading_level", func(v any) error {
//	    n, ok := v.(int)
//	    if !ok || n < 1 || n > 6 {
//	        return fmt.Errorf("expected level 1-6")
//	    }
//	    return nil
//	})
package schema
