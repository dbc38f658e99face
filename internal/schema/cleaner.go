// Package schema cleans JSON Schema tool definitions down to the subset
// upstream chat-completions providers accept: unsupported keywords
// stripped, nullable type arrays coerced, $ref inlined, and malformed
// schemas replaced with a minimal placeholder.
package schema

import "fmt"

// unsupportedKeywords are dropped silently, recursively, from every
// subschema (properties.*, items, and each element of anyOf/oneOf/allOf).
var unsupportedKeywords = map[string]bool{
	"additionalProperties": true,
	"default":              true,
	"$schema":              true,
	"$defs":                true,
	"definitions":          true,
	"$ref":                 true,
	"$id":                  true,
	"$comment":             true,
	"title":                true,
	"minLength":            true,
	"maxLength":            true,
	"pattern":              true,
	"format":               true,
	"minItems":             true,
	"maxItems":             true,
	"examples":             true,
	"allOf":                true,
	"anyOf":                true,
	"oneOf":                true,
	"not":                  true,
	"if":                   true,
	"then":                 true,
	"else":                 true,
	"dependentSchemas":     true,
	"dependentRequired":    true,
	"unevaluatedProperties": true,
	"unevaluatedItems":      true,
	"contentMediaType":      true,
	"contentEncoding":       true,
	"const":                 true,
}

// constraintKeywords are migrated into a human-readable description note
// by MoveConstraintsToDescription before CleanJSONSchema removes them.
var constraintKeywords = []string{"minLength", "maxLength", "pattern", "minimum", "maximum", "minItems", "maxItems"}

func walk(v any, f func(map[string]any)) {
	switch t := v.(type) {
	case map[string]any:
		f(t)
		for _, child := range t {
			walk(child, f)
		}
	case []any:
		for _, child := range t {
			walk(child, f)
		}
	}
}

// CleanJSONSchema removes every unsupported keyword and coerces nullable
// type arrays, recursively. Keyword removal runs before coercion, so a
// type array with several non-null types survives as the anyOf that
// coercion builds. Idempotent for every other schema; an anyOf produced
// that way is itself removed by a second pass.
func CleanJSONSchema(s map[string]any) map[string]any {
	cleanNode(s)
	return s
}

func cleanNode(node map[string]any) {
	for key := range node {
		if unsupportedKeywords[key] {
			delete(node, key)
		}
	}

	coerceNullableType(node)

	if props, ok := node["properties"].(map[string]any); ok {
		for _, v := range props {
			if sub, ok := v.(map[string]any); ok {
				cleanNode(sub)
			}
		}
	}
	if items, ok := node["items"].(map[string]any); ok {
		cleanNode(items)
	}
}

func coerceNullableType(node map[string]any) {
	arr, ok := node["type"].([]any)
	if !ok {
		return
	}

	var types []string
	hasNull := false
	for _, t := range arr {
		s, ok := t.(string)
		if !ok {
			continue
		}
		if s == "null" {
			hasNull = true
			continue
		}
		types = append(types, s)
	}

	if hasNull {
		node["nullable"] = true
	}

	switch len(types) {
	case 0:
		delete(node, "type")
	case 1:
		node["type"] = types[0]
	default:
		delete(node, "type")
		anyOf := make([]any, 0, len(types))
		for _, t := range types {
			anyOf = append(anyOf, map[string]any{"type": t})
		}
		node["anyOf"] = anyOf
	}
}

// EnsureValidSchema guarantees the result is a usable object schema: a
// non-object input becomes the placeholder; an object schema with empty
// properties gets a single "reason" property injected.
func EnsureValidSchema(s any) map[string]any {
	obj, ok := s.(map[string]any)
	if !ok {
		return placeholderSchema()
	}

	if t, _ := obj["type"].(string); t == "object" || t == "" {
		props, _ := obj["properties"].(map[string]any)
		if len(props) == 0 {
			obj["type"] = "object"
			obj["properties"] = map[string]any{
				"reason": map[string]any{
					"type":        "string",
					"description": "Reason for calling this tool",
				},
			}
			obj["required"] = []any{"reason"}
		}
	}

	return obj
}

func placeholderSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{
				"type":        "string",
				"description": "Reason for calling this tool",
			},
		},
		"required": []any{"reason"},
	}
}

// MoveConstraintsToDescription appends a human-readable note to each
// subschema's description for any of minLength/maxLength/pattern/
// minimum/maximum/minItems/maxItems found on it, joined with ", ".
// Applied before keyword removal when the caller wants constraints
// preserved as prose.
func MoveConstraintsToDescription(s map[string]any) map[string]any {
	walk(s, moveNodeConstraints)
	return s
}

func moveNodeConstraints(node map[string]any) {
	var notes []string
	for _, key := range constraintKeywords {
		if v, ok := node[key]; ok {
			notes = append(notes, fmt.Sprintf("%s: %v", key, v))
		}
	}
	if len(notes) == 0 {
		return
	}

	desc, _ := node["description"].(string)
	joined := ""
	for i, n := range notes {
		if i > 0 {
			joined += ", "
		}
		joined += n
	}
	if desc == "" {
		node["description"] = joined
	} else {
		node["description"] = desc + ", " + joined
	}
}

// ExpandRefs inlines every $ref:"#/$defs/NAME" or "#/definitions/NAME" by
// copying the referent's fields onto the referencing node without
// overwriting fields already present there, then drops the definition maps
// from the result. A schema with no $ref is returned as a fixed point.
func ExpandRefs(s map[string]any) map[string]any {
	defs := map[string]any{}
	if d, ok := s["$defs"].(map[string]any); ok {
		for k, v := range d {
			defs[k] = v
		}
	}
	if d, ok := s["definitions"].(map[string]any); ok {
		for k, v := range d {
			defs[k] = v
		}
	}

	expandNode(s, defs, 0)

	delete(s, "$defs")
	delete(s, "definitions")
	return s
}

const maxRefDepth = 32

func expandNode(node map[string]any, defs map[string]any, depth int) {
	if depth > maxRefDepth {
		return
	}

	if ref, ok := node["$ref"].(string); ok {
		name := refName(ref)
		if referent, ok := defs[name].(map[string]any); ok {
			for k, v := range referent {
				if _, exists := node[k]; !exists {
					node[k] = v
				}
			}
		}
		delete(node, "$ref")
	}

	if props, ok := node["properties"].(map[string]any); ok {
		for _, v := range props {
			if sub, ok := v.(map[string]any); ok {
				expandNode(sub, defs, depth+1)
			}
		}
	}
	if items, ok := node["items"].(map[string]any); ok {
		expandNode(items, defs, depth+1)
	}
	for _, combinator := range []string{"anyOf", "oneOf", "allOf"} {
		if arr, ok := node[combinator].([]any); ok {
			for _, v := range arr {
				if sub, ok := v.(map[string]any); ok {
					expandNode(sub, defs, depth+1)
				}
			}
		}
	}
}

func refName(ref string) string {
	for _, prefix := range []string{"#/$defs/", "#/definitions/"} {
		if len(ref) > len(prefix) && ref[:len(prefix)] == prefix {
			return ref[len(prefix):]
		}
	}
	return ref
}

// Clean runs the full pipeline in the order the request path uses for
// OpenAI-dialect tool schemas: expand_refs -> move_constraints_to_description
// -> clean_json_schema -> ensure_valid_schema.
func Clean(s map[string]any) map[string]any {
	s = ExpandRefs(s)
	s = MoveConstraintsToDescription(s)
	s = CleanJSONSchema(s)
	return EnsureValidSchema(s)
}
