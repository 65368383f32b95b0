package fujsen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// defaultExecTimeout bounds a subprocess run when the caller's context has
// no deadline of its own.
const defaultExecTimeout = 30 * time.Second

// subprocessExecutor runs javascript, python and bash bundles out of
// process. Arguments travel as JSON on stdin; the wrapper per language
// hands them to the bundle's entry point and prints the result as JSON.
type subprocessExecutor struct {
	language string
	binary   string
	flag     string
}

func newSubprocessExecutor(language, binary, flag string) *subprocessExecutor {
	return &subprocessExecutor{language: language, binary: binary, flag: flag}
}

func (e *subprocessExecutor) Language() string { return e.language }

func (e *subprocessExecutor) Execute(ctx context.Context, fn *Function, args map[string]any) (any, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultExecTimeout)
		defer cancel()
	}

	program, err := e.wrap(fn)
	if err != nil {
		return nil, err
	}

	inputData, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal args: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.binary, e.flag, program)
	cmd.Stdin = bytes.NewReader(inputData)
	cmd.Env = append(os.Environ(), "FUJSEN_FUNCTION="+fn.Name)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", e.binary, err, strings.TrimSpace(stderr.String()))
	}
	return parseResult(stdout.String()), nil
}

// wrap builds the per-language harness around the bundle source. The
// javascript source must be a function expression; the python source must
// define main(args); bash gets the raw JSON on stdin and its stdout is
// the result.
func (e *subprocessExecutor) wrap(fn *Function) (string, error) {
	switch e.language {
	case "javascript":
		return "const __args = JSON.parse(require('fs').readFileSync(0, 'utf8'));\n" +
			"const __fn = (" + fn.SourceCode + ");\n" +
			"const __result = __fn(__args);\n" +
			"console.log(JSON.stringify(__result === undefined ? null : __result));", nil
	case "python":
		if !strings.Contains(fn.SourceCode, "def main") {
			return "", fmt.Errorf("python bundle %s must define main(args)", fn.Name)
		}
		return "import sys, json\n" +
			"__args = json.load(sys.stdin)\n" +
			fn.SourceCode + "\n" +
			"print(json.dumps(main(__args)))", nil
	case "bash":
		return fn.SourceCode, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownLanguage, e.language)
	}
}

// parseResult decodes the subprocess stdout: JSON when it parses,
// otherwise the trimmed text.
func parseResult(out string) any {
	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return normalizeNumbers(v)
	}
	return trimmed
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case float64:
		if t == float64(int64(t)) {
			return int64(t)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	}
	return v
}
