package form

import (
	"fmt"

	"github.com/spf13/cast"
)

// ToMap flattens a field into the mapping handed to serving layers and
// value generators. Rectangles are always page units.
func (f Field) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"id":               f.ID,
		"type":             string(f.FieldType),
		"x":                f.Rect.X,
		"y":                f.Rect.Y,
		"width":            f.Rect.Width,
		"height":           f.Rect.Height,
		"page":             f.PageIndex,
		"context":          f.Context,
		"confidence":       f.Confidence,
		"detection_method": string(f.Method),
		"user_value":       f.Values.UserValue,
		"ai_value":         f.Values.AIValue,
		"enhanced":         f.Values.Enhanced,
		"required":         f.Required,
	}
	if f.NativeName != "" {
		m["native_name"] = f.NativeName
		m["native_kind"] = string(f.NativeKind)
	}
	if len(f.Options) > 0 {
		m["options"] = f.Options
	}
	if len(f.ValidationRules) > 0 {
		m["validation_rules"] = f.ValidationRules
	}
	return m
}

// FieldFromMap is the inverse of ToMap. Numeric values may arrive as any
// numeric type or numeric string (JSON decoders differ).
func FieldFromMap(m map[string]interface{}) (Field, error) {
	var f Field
	var err error

	if f.ID, err = cast.ToStringE(m["id"]); err != nil || f.ID == "" {
		return Field{}, fmt.Errorf("field id missing or invalid")
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"x", &f.Rect.X},
		{"y", &f.Rect.Y},
		{"width", &f.Rect.Width},
		{"height", &f.Rect.Height},
		{"confidence", &f.Confidence},
	}
	for _, fl := range floats {
		if *fl.dst, err = cast.ToFloat64E(m[fl.key]); err != nil {
			return Field{}, fmt.Errorf("field %s: invalid %s: %w", f.ID, fl.key, err)
		}
	}

	if f.PageIndex, err = cast.ToIntE(m["page"]); err != nil {
		return Field{}, fmt.Errorf("field %s: invalid page: %w", f.ID, err)
	}

	f.FieldType = FieldType(cast.ToString(m["type"]))
	if f.FieldType == "" {
		f.FieldType = FieldTypeText
	}
	f.Method = DetectionMethod(cast.ToString(m["detection_method"]))
	if !f.Method.Valid() {
		return Field{}, fmt.Errorf("field %s: unknown detection method %q", f.ID, f.Method)
	}

	f.Context = cast.ToString(m["context"])
	f.Values.UserValue = cast.ToString(m["user_value"])
	f.Values.AIValue = cast.ToString(m["ai_value"])
	f.Values.Enhanced = cast.ToBool(m["enhanced"])
	f.Required = cast.ToBool(m["required"])
	f.NativeName = cast.ToString(m["native_name"])
	f.NativeKind = WidgetKind(cast.ToString(m["native_kind"]))
	f.Options = cast.ToStringSlice(m["options"])
	f.ValidationRules = cast.ToStringSlice(m["validation_rules"])

	return f, nil
}

// FieldsToMaps serializes a field list in order
func FieldsToMaps(fields []Field) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.ToMap())
	}
	return out
}
