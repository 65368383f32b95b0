package main

import (
	"bufio"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tusklang/tusk-go/internal/runtime"
)

// runREPL starts the interactive shell entered when tsk is invoked with no
// arguments. Each line of TuskLang source is appended to an in-memory
// session; bare @operator expressions are evaluated and printed without
// being stored.
func runREPL(cmd *cobra.Command) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "tsk %s interactive shell (type .help for commands)\n", version)

	var lines []string
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "tsk> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ".") {
			switch cont, err := replCommand(cmd, rt, line, lines); {
			case err == nil && !cont:
				return nil
			case err != nil:
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if line == ".clear" {
				lines = nil
			}
			continue
		}

		src := line
		transient := false
		if !replIsStatement(line) {
			// Bare expression: evaluate it under a throwaway key.
			src = "__repl__ = " + line
			transient = true
		}
		session := append(append([]string{}, lines...), src)
		doc, err := rt.EvalSource(cmd.Context(), strings.Join(session, "\n"), "repl")
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if transient {
			if v, ok := doc.Get("__repl__"); ok {
				_ = printValue(out, v)
			}
			continue
		}
		lines = append(lines, src)
		if key := replAssignedKey(line); key != "" {
			if v, ok := doc.Get(key); ok {
				_ = printValue(out, v)
			}
		}
	}
}

// replCommand handles dot-prefixed shell commands. cont=false means the
// shell should exit.
func replCommand(cmd *cobra.Command, rt *runtime.Runtime, line string, lines []string) (cont bool, err error) {
	out := cmd.OutOrStdout()
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case ".exit", ".quit":
		return false, nil
	case ".help":
		fmt.Fprint(out, `commands:
  .keys          list keys defined in this session
  .get KEY       print one value
  .load FILE     evaluate a .tsk file and print its keys
  .clear         forget everything defined in this session
  .exit          leave the shell
anything else is evaluated as TuskLang source
`)
		return true, nil
	case ".keys":
		doc, err := rt.EvalSource(cmd.Context(), strings.Join(lines, "\n"), "repl")
		if err != nil {
			return true, err
		}
		keys := doc.Keys()
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintln(out, k)
		}
		return true, nil
	case ".get":
		if arg == "" {
			return true, fmt.Errorf("usage: .get KEY")
		}
		doc, err := rt.EvalSource(cmd.Context(), strings.Join(lines, "\n"), "repl")
		if err != nil {
			return true, err
		}
		v, ok := doc.Get(arg)
		if !ok {
			return true, fmt.Errorf("key %q not defined", arg)
		}
		return true, printValue(out, v)
	case ".load":
		if arg == "" {
			return true, fmt.Errorf("usage: .load FILE")
		}
		doc, err := rt.LoadFile(cmd.Context(), arg)
		if err != nil {
			return true, err
		}
		fmt.Fprintf(out, "%d keys loaded from %s\n", doc.Len(), arg)
		return true, printDocument(out, doc)
	case ".clear":
		fmt.Fprintln(out, "session cleared")
		return true, nil
	default:
		return true, fmt.Errorf("unknown command %s (try .help)", name)
	}
}

// replIsStatement reports whether a line is a definition rather than a bare
// expression to evaluate and discard.
func replIsStatement(line string) bool {
	if strings.HasPrefix(line, "[") || strings.HasSuffix(line, "{") || line == "}" {
		return true
	}
	return replAssignedKey(line) != ""
}

// replAssignedKey returns the key a `key = value` or `key: value` line
// defines, or "" when the line is not an assignment.
func replAssignedKey(line string) string {
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case c == '=' || c == ':':
			key := strings.TrimSpace(line[:i])
			key = strings.TrimPrefix(key, "$")
			if key == "" || strings.ContainsAny(key, " \t\"'@(") {
				return ""
			}
			return key
		case c == '"' || c == '\'' || c == '(' || c == '@':
			return ""
		}
	}
	return ""
}
