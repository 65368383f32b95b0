// Package runtime assembles the TuskLang engine: it wires the evaluator to
// its backends (cross-file resolver, cache, database, AI, protection,
// license, FUJSEN) from the peanut configuration hierarchy and exposes the
// HTTP server behind `tsk serve`.
package runtime

import (
	"os"
	"strings"

	"github.com/tusklang/tusk-go/internal/dbal"
	"github.com/tusklang/tusk-go/internal/document"
	"github.com/tusklang/tusk-go/internal/peanut"
)

// ServerSettings configures `tsk serve`.
type ServerSettings struct {
	Port   int    `json:"port"`
	APIKey string `json:"api_key,omitempty"`
	Watch  bool   `json:"watch"`
}

// AISettings holds provider credentials and model overrides.
type AISettings struct {
	AnthropicKey   string `json:"-"`
	OpenAIKey      string `json:"-"`
	OpenAIBaseURL  string `json:"openai_base_url,omitempty"`
	ClaudeModel    string `json:"claude_model,omitempty"`
	ChatGPTModel   string `json:"chatgpt_model,omitempty"`
	MCPToolCommand string `json:"mcp_tool_command,omitempty"`
	MCPToolArgs    string `json:"mcp_tool_args,omitempty"`
}

// Settings is the process configuration resolved from the peanut hierarchy,
// with environment variables as fallback for credentials.
type Settings struct {
	BaseDir  string
	Server   ServerSettings
	Database dbal.Settings
	AI       AISettings
	License  string
}

// SettingsFromPeanut resolves Settings from the hierarchical config. Keys
// live under the [server], [database], [ai] and [license] sections.
func SettingsFromPeanut(cfg *peanut.Config, baseDir string) Settings {
	s := Settings{
		BaseDir: baseDir,
		Server: ServerSettings{
			Port: 8080,
		},
	}
	if cfg == nil {
		s.applyEnv()
		return s
	}

	if port, ok := asInt(cfg.Get("server.port")); ok {
		s.Server.Port = port
	}
	s.Server.APIKey = cfg.GetString("server.api_key")
	s.Server.Watch = document.Truthy(cfg.Get("server.watch"))

	if dbSection, ok := cfg.Get("database").(map[string]any); ok {
		s.Database = dbal.SettingsFromSection(dbSection)
	}

	s.AI.AnthropicKey = cfg.GetString("ai.anthropic_api_key")
	s.AI.OpenAIKey = cfg.GetString("ai.openai_api_key")
	s.AI.OpenAIBaseURL = cfg.GetString("ai.openai_base_url")
	s.AI.ClaudeModel = cfg.GetString("ai.claude_model")
	s.AI.ChatGPTModel = cfg.GetString("ai.chatgpt_model")
	s.AI.MCPToolCommand = cfg.GetString("ai.mcp.command")
	s.AI.MCPToolArgs = cfg.GetString("ai.mcp.args")

	s.License = cfg.GetString("license.key")

	s.applyEnv()
	return s
}

// applyEnv fills credentials missing from the config files.
func (s *Settings) applyEnv() {
	if s.AI.AnthropicKey == "" {
		s.AI.AnthropicKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if s.AI.OpenAIKey == "" {
		s.AI.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if s.License == "" {
		s.License = os.Getenv("TUSKLANG_LICENSE_KEY")
	}
	if s.Server.APIKey == "" {
		s.Server.APIKey = os.Getenv("TSK_API_KEY")
	}
}

// MCPArgs splits the configured MCP server arguments.
func (s *Settings) MCPArgs() []string {
	if strings.TrimSpace(s.AI.MCPToolArgs) == "" {
		return nil
	}
	return strings.Fields(s.AI.MCPToolArgs)
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}
