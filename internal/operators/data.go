package operators

import (
	"context"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

func init() {
	RegisterFunc("yaml", opYAML)
	RegisterFunc("csv", opCSV)
	RegisterFunc("xml", opXML)
	RegisterFunc("toml", opTOML)
}

// opYAML implements @yaml(parse, text).
func opYAML(ctx context.Context, call Call, env *Env) (any, error) {
	text, err := dataParam(ctx, call, env, "yaml")
	if err != nil {
		return nil, err
	}
	var out any
	if err := yaml.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return normalizeYAML(out), nil
}

// normalizeYAML rewrites yaml.v3's map[string]any/int values onto the
// document's canonical types (int64 integers).
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case int:
		return int64(t)
	case []any:
		for i, e := range t {
			t[i] = normalizeYAML(e)
		}
		return t
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeYAML(e)
		}
		return t
	}
	return v
}

// opCSV implements @csv(parse, text): the first record is the header, each
// following record becomes a map.
func opCSV(ctx context.Context, call Call, env *Env) (any, error) {
	text, err := dataParam(ctx, call, env, "csv")
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(strings.NewReader(text))
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if len(records) == 0 {
		return []any{}, nil
	}
	header := records[0]
	out := make([]any, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// opXML implements @xml(parse, text): elements become map entries, repeated
// siblings collapse into arrays, text-only elements become strings.
func opXML(ctx context.Context, call Call, env *Env) (any, error) {
	text, err := dataParam(ctx, call, env, "xml")
	if err != nil {
		return nil, err
	}
	dec := xml.NewDecoder(strings.NewReader(text))
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parse: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			v, err := decodeXMLElement(dec, start)
			if err != nil {
				return nil, fmt.Errorf("parse: %w", err)
			}
			return map[string]any{start.Name.Local: v}, nil
		}
	}
}

func decodeXMLElement(dec *xml.Decoder, start xml.StartElement) (any, error) {
	children := make(map[string]any)
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := decodeXMLElement(dec, t)
			if err != nil {
				return nil, err
			}
			name := t.Name.Local
			if existing, ok := children[name]; ok {
				if arr, isArr := existing.([]any); isArr {
					children[name] = append(arr, child)
				} else {
					children[name] = []any{existing, child}
				}
			} else {
				children[name] = child
			}
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if len(children) == 0 {
				return strings.TrimSpace(text.String()), nil
			}
			return children, nil
		}
	}
}

// opTOML implements @toml(parse, text).
func opTOML(ctx context.Context, call Call, env *Env) (any, error) {
	text, err := dataParam(ctx, call, env, "toml")
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := toml.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return out, nil
}

func dataParam(ctx context.Context, call Call, env *Env, name string) (string, error) {
	params := call.Params()
	if len(params) < 2 || strings.ToLower(Unquote(params[0])) != "parse" {
		return "", fmt.Errorf("expected @%s(parse, text)", name)
	}
	return env.EvalParamString(ctx, strings.Join(params[1:], ", "))
}
