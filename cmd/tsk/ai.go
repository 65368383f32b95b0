package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tusklang/tusk-go/internal/ai"
)

func newAICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ai",
		Short: "AI provider operations (@claude, @chatgpt)",
	}

	complete := func(provider string) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			response, err := rt.AI().Complete(cmd.Context(), provider, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"provider": provider,
					"response": response,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), response)
			return nil
		}
	}

	claude := &cobra.Command{
		Use:   "claude PROMPT",
		Short: "Send a prompt to Claude",
		Args:  cobra.MinimumNArgs(1),
		RunE:  complete("claude"),
	}

	chatgpt := &cobra.Command{
		Use:   "chatgpt PROMPT",
		Short: "Send a prompt to ChatGPT",
		Args:  cobra.MinimumNArgs(1),
		RunE:  complete("chatgpt"),
	}

	var completeProvider string
	completeCmd := &cobra.Command{
		Use:   "complete PROMPT",
		Short: "Send a prompt to a chosen provider",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return complete(completeProvider)(cmd, args)
		},
	}
	completeCmd.Flags().StringVar(&completeProvider, "provider", "claude", "Provider (claude|chatgpt)")

	analyze := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Ask a provider to review a .tsk file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			findings, err := rt.AI().Analyze(cmd.Context(), string(data))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), findings)
			return nil
		},
	}

	config := &cobra.Command{
		Use:   "config",
		Short: "Show the configured providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			providers := rt.AI().Providers()
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{"providers": providers})
			}
			if len(providers) == 0 {
				note(cmd.OutOrStdout(), "no providers configured; run `tsk ai setup`")
				return nil
			}
			for _, p := range providers {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	setup := &cobra.Command{
		Use:   "setup",
		Short: "Explain how to configure provider credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Set provider credentials in the [ai] section of peanut.tsk:")
			fmt.Fprintln(out, `  [ai]`)
			fmt.Fprintln(out, `  anthropic_api_key = "sk-ant-..."`)
			fmt.Fprintln(out, `  openai_api_key = "sk-..."`)
			fmt.Fprintln(out, "or export ANTHROPIC_API_KEY / OPENAI_API_KEY.")
			return nil
		},
	}

	test := &cobra.Command{
		Use:   "test",
		Short: "Send a round-trip probe to each configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			providers := rt.AI().Providers()
			if len(providers) == 0 {
				return fmt.Errorf("no providers configured")
			}

			results := map[string]string{}
			for _, p := range providers {
				if _, err := rt.AI().Complete(cmd.Context(), p, "Reply with the single word: ok"); err != nil {
					results[p] = err.Error()
				} else {
					results[p] = "ok"
				}
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), results)
			}
			for p, outcome := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", p, outcome)
			}
			return nil
		},
	}

	usage := &cobra.Command{
		Use:   "usage",
		Short: "Show recorded AI usage totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			store := rt.Store()
			if store == nil {
				return fmt.Errorf("state store unavailable")
			}
			summary, err := store.UsageSummary(cmd.Context())
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), summary)
			}
			for provider, stats := range summary {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d call(s), %d prompt chars, %d response chars\n",
					provider, stats["calls"], stats["prompt_chars"], stats["response_chars"])
			}
			return nil
		},
	}

	tools := &cobra.Command{
		Use:   "tools",
		Short: "List tools on the configured MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			settings := rt.Settings()
			if settings.AI.MCPToolCommand == "" {
				return fmt.Errorf("no MCP server configured; set ai.mcp.command")
			}

			client := ai.NewMCPClient(ai.MCPServer{
				Name:    "default",
				Command: settings.AI.MCPToolCommand,
				Args:    settings.MCPArgs(),
			})
			if err := client.Connect(cmd.Context()); err != nil {
				return err
			}
			defer client.Close()

			list, err := client.ListTools(cmd.Context())
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), list)
			}
			for _, t := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%-24s %s\n", t.Name, t.Description)
			}
			return nil
		},
	}

	cmd.AddCommand(claude, chatgpt, completeCmd, analyze, config, setup, test, usage, tools)
	return cmd
}
