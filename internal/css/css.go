// Package css expands TuskLang CSS shortcodes (mh → max-height) in
// stylesheet text for `tsk css expand` and `tsk css map`.
package css

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// shortcodes maps property shortcodes to their CSS names.
var shortcodes = map[string]string{
	"mh": "max-height",
	"mw": "max-width",
	"p":  "padding",
	"m":  "margin",
	"w":  "width",
	"h":  "height",
	"bg": "background",
	"fs": "font-size",
	"fw": "font-weight",
}

var declRe = regexp.MustCompile(`(^|[{;\s])([a-z]{1,2})(\s*:)`)

// Map returns a copy of the shortcode table.
func Map() map[string]string {
	out := make(map[string]string, len(shortcodes))
	for k, v := range shortcodes {
		out[k] = v
	}
	return out
}

// Shortcodes lists the known shortcodes in sorted order.
func Shortcodes() []string {
	keys := make([]string, 0, len(shortcodes))
	for k := range shortcodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Expand rewrites shortcode property names in stylesheet text. Only
// declaration positions are touched; values and selectors pass through.
func Expand(src string) string {
	return declRe.ReplaceAllStringFunc(src, func(match string) string {
		sub := declRe.FindStringSubmatch(match)
		full, ok := shortcodes[sub[2]]
		if !ok {
			return match
		}
		return sub[1] + full + sub[3]
	})
}

// ExpandFile expands input into output. An empty output derives
// `<name>.expanded.css` next to the input.
func ExpandFile(input, output string) (string, error) {
	data, err := os.ReadFile(input)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", input, err)
	}
	if output == "" {
		output = strings.TrimSuffix(input, ".css") + ".expanded.css"
	}
	if err := os.WriteFile(output, []byte(Expand(string(data))), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", output, err)
	}
	return output, nil
}
