package feature

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// DecodeCollection reads a feature-collection envelope ({"features": [...]}).
//
// It never fails. A body that is not an object, or whose features member is
// missing or not an array, yields an empty sequence. Each element is decoded
// leniently: non-object elements become empty Features (they keep their place in
// the sequence), non-scalar attributes are treated as absent, and coordinates
// count only when they are JSON numbers.
func DecodeCollection(data []byte) []Feature {
	var env map[string]json.RawMessage
	if err := unmarshalNumbers(data, &env); err != nil {
		return []Feature{}
	}
	raw, ok := env["features"]
	if !ok {
		return []Feature{}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []Feature{}
	}

	out := make([]Feature, 0, len(items))
	for _, item := range items {
		out = append(out, decodeFeature(item))
	}
	return out
}

func decodeFeature(raw json.RawMessage) Feature {
	var obj map[string]any
	if err := unmarshalNumbers(raw, &obj); err != nil {
		return Feature{}
	}

	var f Feature
	if props, ok := obj["properties"].(map[string]any); ok {
		f.ID = scalar(props["id"])
		f.Year = scalar(props["year"])
		f.Direction = scalar(props["direction"])
		f.PropLat = number(props["lat"])
		f.PropLon = number(props["lon"])
	}
	if geom, ok := obj["geometry"].(map[string]any); ok {
		if coords, ok := geom["coordinates"].([]any); ok {
			if len(coords) > 0 {
				f.GeomLon = number(coords[0])
			}
			if len(coords) > 1 {
				f.GeomLat = number(coords[1])
			}
		}
	}
	return f
}

func unmarshalNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func scalar(v any) Value {
	switch t := v.(type) {
	case string:
		return Text(t)
	case json.Number:
		return Text(t.String())
	case bool:
		return Text(strconv.FormatBool(t))
	default:
		return Value{}
	}
}

func number(v any) *float64 {
	n, ok := v.(json.Number)
	if !ok {
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil
	}
	return &f
}
