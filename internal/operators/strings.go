package operators

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"regexp"
	"strings"
	"unicode"

	"github.com/tusklang/tusk-go/internal/document"
)

func init() {
	RegisterFunc("string", opString)
	RegisterFunc("regex", opRegex)
	RegisterFunc("hash", opHash)
	RegisterFunc("base64", opBase64)
	RegisterFunc("template", opTemplate)
}

// opString implements @string(op, text) with the transforms the language
// documents: uppercase, lowercase, capitalize, title, strip, length.
func opString(ctx context.Context, call Call, env *Env) (any, error) {
	params := call.Params()
	if len(params) < 2 {
		return nil, fmt.Errorf("expected @string(op, text)")
	}
	op := strings.ToLower(Unquote(params[0]))
	text, err := env.EvalParamString(ctx, params[1])
	if err != nil {
		return nil, err
	}

	switch op {
	case "uppercase", "upper":
		return strings.ToUpper(text), nil
	case "lowercase", "lower":
		return strings.ToLower(text), nil
	case "capitalize":
		if text == "" {
			return "", nil
		}
		r := []rune(text)
		r[0] = unicode.ToUpper(r[0])
		return string(r), nil
	case "title":
		return titleCase(text), nil
	case "strip", "trim":
		return strings.TrimSpace(text), nil
	case "length", "len":
		return int64(len(text)), nil
	case "reverse":
		r := []rune(text)
		for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
			r[i], r[j] = r[j], r[i]
		}
		return string(r), nil
	default:
		return nil, fmt.Errorf("unknown @string op %q", op)
	}
}

func titleCase(s string) string {
	var sb strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) && !prevLetter {
			sb.WriteRune(unicode.ToUpper(r))
		} else {
			sb.WriteRune(unicode.ToLower(r))
		}
		prevLetter = unicode.IsLetter(r)
	}
	return sb.String()
}

// opRegex implements @regex(op, text, pattern, replacement?): match,
// findall, replace.
func opRegex(ctx context.Context, call Call, env *Env) (any, error) {
	params := call.Params()
	if len(params) < 3 {
		return nil, fmt.Errorf("expected @regex(op, text, pattern)")
	}
	op := strings.ToLower(Unquote(params[0]))
	text, err := env.EvalParamString(ctx, params[1])
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(Unquote(params[2]))
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	switch op {
	case "match":
		return re.MatchString(text), nil
	case "findall", "find":
		matches := re.FindAllString(text, -1)
		out := make([]any, len(matches))
		for i, m := range matches {
			out[i] = m
		}
		return out, nil
	case "replace":
		replacement := ""
		if len(params) > 3 {
			replacement = Unquote(params[3])
		}
		return re.ReplaceAllString(text, replacement), nil
	default:
		return nil, fmt.Errorf("unknown @regex op %q", op)
	}
}

// opHash implements @hash(alg, data) returning the hex digest.
func opHash(ctx context.Context, call Call, env *Env) (any, error) {
	params := call.Params()
	if len(params) < 2 {
		return nil, fmt.Errorf("expected @hash(alg, data)")
	}
	alg := strings.ToLower(Unquote(params[0]))
	data, err := env.EvalParamString(ctx, params[1])
	if err != nil {
		return nil, err
	}

	var h hash.Hash
	switch alg {
	case "md5":
		h = md5.New()
	case "sha1":
		h = sha1.New()
	case "sha256":
		h = sha256.New()
	case "sha512":
		h = sha512.New()
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", alg)
	}
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// opBase64 implements @base64(encode|decode, data).
func opBase64(ctx context.Context, call Call, env *Env) (any, error) {
	params := call.Params()
	if len(params) < 2 {
		return nil, fmt.Errorf("expected @base64(encode|decode, data)")
	}
	action := strings.ToLower(Unquote(params[0]))
	data, err := env.EvalParamString(ctx, params[1])
	if err != nil {
		return nil, err
	}

	switch action {
	case "encode":
		return base64.StdEncoding.EncodeToString([]byte(data)), nil
	case "decode":
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		return string(decoded), nil
	default:
		return nil, fmt.Errorf("unknown @base64 action %q", action)
	}
}

var templateVar = regexp.MustCompile(`\{\{([A-Za-z0-9_.]+)\}\}`)

// opTemplate implements @template(render, tmpl, context): {{key}}
// placeholders substitute from the JSON context object, falling back to
// the document and globals.
func opTemplate(ctx context.Context, call Call, env *Env) (any, error) {
	params := call.Params()
	if len(params) < 2 {
		return nil, fmt.Errorf("expected @template(render, tmpl, context?)")
	}
	action := strings.ToLower(Unquote(params[0]))
	if action != "render" {
		return nil, fmt.Errorf("unknown @template action %q", action)
	}
	tmpl, err := env.EvalParamString(ctx, params[1])
	if err != nil {
		return nil, err
	}

	vars := make(map[string]any)
	if len(params) > 2 {
		raw, err := env.EvalParamString(ctx, strings.Join(params[2:], ", "))
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &vars); err != nil {
			return nil, fmt.Errorf("template context is not a JSON object: %w", err)
		}
	}

	result := templateVar.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := templateVar.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return document.Stringify(v)
		}
		if env.Globals != nil {
			if v, ok := env.Globals[name]; ok {
				return document.Stringify(v)
			}
		}
		if env.Doc != nil {
			if v, ok := env.Doc.Get(name); ok {
				return document.Stringify(v)
			}
		}
		return m
	})
	return result, nil
}
