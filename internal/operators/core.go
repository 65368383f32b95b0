package operators

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tusklang/tusk-go/internal/document"
	"gopkg.in/yaml.v3"
)

func init() {
	RegisterFunc("env", opEnv)
	RegisterFunc("date", opDate)
	RegisterFunc("file", opFile)
	RegisterFunc("json", opJSON)
	RegisterFunc("cache", opCache)
	RegisterFunc("if", opIf)
	RegisterFunc("output", opOutput)
	RegisterFunc("query", opQuery)
	RegisterFunc("q", opQuery)
	RegisterFunc("request", opRequest)
	RegisterFunc("metrics", opMetrics)
	RegisterFunc("learn", opLearn)
	RegisterFunc("optimize", opOptimize)
	RegisterFunc("feature", opFeature)
}

// opEnv implements @env(NAME, default?).
func opEnv(ctx context.Context, call Call, env *Env) (any, error) {
	params := call.Params()
	if len(params) == 0 {
		return nil, fmt.Errorf("expected @env(NAME, default?)")
	}
	name := Unquote(params[0])
	if v, ok := os.LookupEnv(name); ok {
		return v, nil
	}
	if len(params) > 1 {
		return env.EvalParam(ctx, params[1])
	}
	return "", nil
}

// phpDateRunes maps the PHP-style format characters the original language
// documented onto Go layout fragments. Unknown characters pass through.
var phpDateRunes = map[rune]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'n': "1",
	'd': "02",
	'j': "2",
	'H': "15",
	'G': "15",
	'i': "04",
	's': "05",
	'D': "Mon",
	'l': "Monday",
	'M': "Jan",
	'F': "January",
	'a': "pm",
	'A': "PM",
	'g': "3",
	'h': "03",
	'T': "MST",
	'U': "", // unix timestamp, handled separately
}

func phpToGoLayout(format string) string {
	var sb strings.Builder
	for _, r := range format {
		if layout, ok := phpDateRunes[r]; ok {
			sb.WriteString(layout)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// opDate implements @date(fmt). The format may be a PHP-style string
// (Y-m-d H:i:s) or a native Go layout; @date() with no argument uses
// the ISO form.
func opDate(_ context.Context, call Call, env *Env) (any, error) {
	now := env.Now()
	format := Unquote(strings.TrimSpace(call.RawArgs))
	if format == "" {
		return now.Format("2006-01-02 15:04:05"), nil
	}
	if format == "U" {
		return now.Unix(), nil
	}
	// A format containing a Go reference-time fragment is used verbatim.
	if strings.Contains(format, "2006") || strings.Contains(format, "15:04") {
		return now.Format(format), nil
	}
	return now.Format(phpToGoLayout(format)), nil
}

// opFile implements @file(path, read|write|exists, content?). Relative
// paths resolve against the evaluating document's directory.
func opFile(ctx context.Context, call Call, env *Env) (any, error) {
	params := call.Params()
	if len(params) == 0 {
		return nil, fmt.Errorf("expected @file(path, read|write|exists)")
	}
	path := Unquote(params[0])
	if !filepath.IsAbs(path) && env.BaseDir != "" {
		path = filepath.Join(env.BaseDir, path)
	}

	action := "read"
	if len(params) > 1 {
		action = strings.ToLower(Unquote(params[1]))
	}

	switch action {
	case "read":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return string(data), nil
	case "exists":
		_, err := os.Stat(path)
		return err == nil, nil
	case "write":
		if len(params) < 3 {
			return nil, fmt.Errorf("@file write needs content")
		}
		content, err := env.EvalParamString(ctx, params[2])
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		return true, nil
	default:
		return nil, fmt.Errorf("unknown @file action %q", action)
	}
}

// opJSON implements @json(parse|stringify, data).
func opJSON(ctx context.Context, call Call, env *Env) (any, error) {
	params := call.Params()
	if len(params) < 2 {
		return nil, fmt.Errorf("expected @json(parse|stringify, data)")
	}
	action := strings.ToLower(Unquote(params[0]))
	switch action {
	case "parse":
		text, err := env.EvalParamString(ctx, params[1])
		if err != nil {
			return nil, err
		}
		var out any
		if err := json.Unmarshal([]byte(text), &out); err != nil {
			return nil, fmt.Errorf("parse: %w", err)
		}
		return normalizeJSON(out), nil
	case "stringify":
		v, err := env.EvalParam(ctx, params[1])
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("stringify: %w", err)
		}
		return string(b), nil
	default:
		return nil, fmt.Errorf("unknown @json action %q", action)
	}
}

// normalizeJSON converts json.Unmarshal's float64 integers back to int64 so
// the document's typing rules hold for parsed payloads.
func normalizeJSON(v any) any {
	switch t := v.(type) {
	case float64:
		if t == float64(int64(t)) {
			return int64(t)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeJSON(e)
		}
		return t
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeJSON(e)
		}
		return t
	}
	return v
}

// parseTTL accepts a bare number of seconds or a Go duration string.
func parseTTL(raw string) (time.Duration, error) {
	raw = Unquote(strings.TrimSpace(raw))
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid ttl %q", raw)
	}
	return d, nil
}

// opCache implements @cache(ttl, value): the value expression is evaluated
// once and memoized for the ttl, keyed by its source text within the
// current section.
func opCache(ctx context.Context, call Call, env *Env) (any, error) {
	params := call.Params()
	if len(params) < 2 {
		return nil, fmt.Errorf("expected @cache(ttl, value)")
	}
	ttl, err := parseTTL(params[0])
	if err != nil {
		return nil, err
	}
	valueExpr := strings.TrimSpace(strings.Join(params[1:], ", "))

	if env.Cache == nil {
		return env.EvalParam(ctx, valueExpr)
	}
	key := env.Section + "\x00" + valueExpr
	if v, ok := env.Cache.Get(key); ok {
		return v, nil
	}
	v, err := env.EvalParam(ctx, valueExpr)
	if err != nil {
		return nil, err
	}
	env.Cache.Set(key, v, ttl)
	return v, nil
}

// opIf implements @if(cond, then, else). Only the chosen branch is
// evaluated.
func opIf(ctx context.Context, call Call, env *Env) (any, error) {
	params := call.Params()
	if len(params) < 2 {
		return nil, fmt.Errorf("expected @if(cond, then, else?)")
	}
	cond, err := env.EvalParam(ctx, params[0])
	if err != nil {
		return nil, err
	}
	if document.Truthy(cond) {
		return env.EvalParam(ctx, params[1])
	}
	if len(params) > 2 {
		return env.EvalParam(ctx, params[2])
	}
	return nil, nil
}

// opOutput implements @output(json|yaml|xml, value).
func opOutput(ctx context.Context, call Call, env *Env) (any, error) {
	params := call.Params()
	if len(params) < 2 {
		return nil, fmt.Errorf("expected @output(format, value)")
	}
	format := strings.ToLower(Unquote(params[0]))
	v, err := env.EvalParam(ctx, strings.Join(params[1:], ", "))
	if err != nil {
		return nil, err
	}
	switch format {
	case "json":
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case "yaml":
		b, err := yaml.Marshal(v)
		if err != nil {
			return nil, err
		}
		return strings.TrimRight(string(b), "\n"), nil
	case "xml":
		return renderXML(v), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// renderXML writes the minimal element form the original emitted for
// config payloads. Maps become elements, everything else text content.
func renderXML(v any) string {
	var sb strings.Builder
	sb.WriteString("<root>")
	writeXMLValue(&sb, v)
	sb.WriteString("</root>")
	return sb.String()
}

func writeXMLValue(sb *strings.Builder, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		// Deterministic element order.
		for i := 0; i < len(keys); i++ {
			for j := i + 1; j < len(keys); j++ {
				if keys[j] < keys[i] {
					keys[i], keys[j] = keys[j], keys[i]
				}
			}
		}
		for _, k := range keys {
			fmt.Fprintf(sb, "<%s>", k)
			writeXMLValue(sb, t[k])
			fmt.Fprintf(sb, "</%s>", k)
		}
	case []any:
		for _, e := range t {
			sb.WriteString("<item>")
			writeXMLValue(sb, e)
			sb.WriteString("</item>")
		}
	default:
		xmlEscape(sb, document.Stringify(t))
	}
}

func xmlEscape(sb *strings.Builder, s string) {
	for _, r := range s {
		switch r {
		case '<':
			sb.WriteString("&lt;")
		case '>':
			sb.WriteString("&gt;")
		case '&':
			sb.WriteString("&amp;")
		default:
			sb.WriteRune(r)
		}
	}
}

// opQuery implements @query(sql, binds...) and its @q alias through the
// configured database adapter. A single-row single-column result unwraps
// to the bare value.
func opQuery(ctx context.Context, call Call, env *Env) (any, error) {
	if env.DB == nil {
		return nil, NotConfigured("database")
	}
	params := call.Params()
	if len(params) == 0 {
		return nil, fmt.Errorf("expected @query(sql, binds...)")
	}
	sql := Unquote(params[0])
	binds := make([]any, 0, len(params)-1)
	for _, p := range params[1:] {
		v, err := env.EvalParam(ctx, p)
		if err != nil {
			return nil, err
		}
		binds = append(binds, v)
	}
	rows, err := env.DB.Query(ctx, sql, binds...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 1 && len(rows[0]) == 1 {
		for _, v := range rows[0] {
			return v, nil
		}
	}
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out, nil
}

// opRequest implements @request(url) and @request(method, url, body?).
func opRequest(ctx context.Context, call Call, env *Env) (any, error) {
	params := call.Params()
	if len(params) == 0 {
		return nil, fmt.Errorf("expected @request(url) or @request(method, url, body?)")
	}

	method := http.MethodGet
	url := Unquote(params[0])
	var body io.Reader
	if len(params) > 1 {
		method = strings.ToUpper(Unquote(params[0]))
		url = Unquote(params[1])
	}
	if len(params) > 2 {
		content, err := env.EvalParamString(ctx, params[2])
		if err != nil {
			return nil, err
		}
		body = strings.NewReader(content)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := env.HTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s: status %d", method, url, resp.StatusCode)
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var parsed any
		if err := json.Unmarshal(data, &parsed); err == nil {
			return normalizeJSON(parsed), nil
		}
	}
	return string(data), nil
}

// opMetrics implements @metrics(name, value?): with a value it records and
// returns it, without one it reads the current value.
func opMetrics(ctx context.Context, call Call, env *Env) (any, error) {
	if env.Metrics == nil {
		return nil, NotConfigured("metrics store")
	}
	params := call.Params()
	if len(params) == 0 {
		return nil, fmt.Errorf("expected @metrics(name, value?)")
	}
	name := Unquote(params[0])
	if len(params) > 1 {
		v, err := env.EvalParam(ctx, params[1])
		if err != nil {
			return nil, err
		}
		f, ok := document.ToFloat(v)
		if !ok {
			return nil, fmt.Errorf("metric value %v is not numeric", v)
		}
		env.Metrics.Record(name, f)
		return f, nil
	}
	v, ok := env.Metrics.Value(name)
	if !ok {
		return float64(0), nil
	}
	return v, nil
}

// opLearn implements @learn(key, default): returns the persisted tuned
// value when one exists, otherwise records and returns the default.
func opLearn(ctx context.Context, call Call, env *Env) (any, error) {
	params := call.Params()
	if len(params) < 2 {
		return nil, fmt.Errorf("expected @learn(key, default)")
	}
	key := "learn." + Unquote(params[0])
	def, err := env.EvalParam(ctx, params[1])
	if err != nil {
		return nil, err
	}
	if env.Metrics == nil {
		return def, nil
	}
	if v, ok := env.Metrics.Value(key); ok {
		return v, nil
	}
	if f, ok := document.ToFloat(def); ok {
		env.Metrics.Record(key, f)
	}
	return def, nil
}

// opOptimize implements @optimize(param, initial): like @learn but the key
// namespace is shared with the optimizer state in the local store.
func opOptimize(ctx context.Context, call Call, env *Env) (any, error) {
	params := call.Params()
	if len(params) < 2 {
		return nil, fmt.Errorf("expected @optimize(param, initial)")
	}
	key := "optimize." + Unquote(params[0])
	initial, err := env.EvalParam(ctx, params[1])
	if err != nil {
		return nil, err
	}
	if env.Metrics == nil {
		return initial, nil
	}
	if v, ok := env.Metrics.Value(key); ok {
		return v, nil
	}
	if f, ok := document.ToFloat(initial); ok {
		env.Metrics.Record(key, f)
	}
	return initial, nil
}

// opFeature implements @feature(name): true when the feature is part of
// the core runtime or unlocked by the active license.
func opFeature(_ context.Context, call Call, env *Env) (any, error) {
	name := strings.ToLower(Unquote(strings.TrimSpace(call.RawArgs)))
	if name == "" {
		return nil, fmt.Errorf("expected @feature(name)")
	}
	switch name {
	case "parsing", "operators", "cross-file", "peanut", "binary", "fujsen":
		return true, nil
	}
	if _, ok := defaultRegistry.Lookup(name); ok {
		return true, nil
	}
	if env.License != nil {
		return env.License.Allows(name), nil
	}
	return false, nil
}
