package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tusklang/tusk-go/internal/license"
)

func newLicenseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "license",
		Short: "License status and activation",
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Report the configured license's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			v := rt.License()
			if v == nil {
				if flagJSON {
					return printJSON(cmd.OutOrStdout(), map[string]any{"configured": false})
				}
				note(cmd.OutOrStdout(), "no license configured (community tier)")
				return nil
			}

			valid := v.Valid()
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"configured": true,
					"valid":      valid,
					"tier":       string(v.Tier()),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid: %v\ntier:  %s\n", valid, v.Tier())
			return nil
		},
	}

	validate := &cobra.Command{
		Use:   "validate [KEY]",
		Short: "Verify a license key online",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v *license.Validator
			if len(args) == 1 {
				v = license.New(args[0])
			} else {
				rt, err := newRuntime(cmd)
				if err != nil {
					return err
				}
				defer rt.Close()
				v = rt.License()
				if v == nil {
					return fmt.Errorf("no license key configured")
				}
			}

			if err := v.ValidateFormat(); err != nil {
				return err
			}

			verification, err := v.Verify(cmd.Context())
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), verification)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid: %v\ntier:  %s\n", verification.Valid, verification.Tier)
			return nil
		},
	}

	activate := &cobra.Command{
		Use:   "activate KEY",
		Short: "Validate a key and store it in the local config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := license.New(args[0])
			if err := v.ValidateFormat(); err != nil {
				return err
			}

			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			verification, verr := v.Verify(cmd.Context())
			if verr != nil {
				rt.Logger().Warn("online verification unavailable; storing key anyway", "error", verr)
			}

			if store := rt.Store(); store != nil {
				valid, tier := false, ""
				if verification != nil {
					valid, tier = verification.Valid, string(verification.Tier)
				}
				if err := store.MirrorLicense(cmd.Context(), args[0], valid, tier, time.Now()); err != nil {
					return err
				}
			}

			dir := flagConfig
			if dir == "" {
				dir = "."
			}
			if err := setFileKey(cmd, dir+"/peanut.tsk", "license.key", args[0]); err != nil {
				return err
			}
			note(cmd.OutOrStdout(), "license activated")
			return nil
		},
	}

	info := &cobra.Command{
		Use:   "info",
		Short: "Show tier features for the configured license",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			tier := license.TierCommunity
			if v := rt.License(); v != nil && v.Valid() {
				tier = v.Tier()
			}
			features := license.TierFeatures(tier)
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"tier":     string(tier),
					"features": features,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tier: %s\n", tier)
			for _, f := range features {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", f)
			}
			return nil
		},
	}

	cmd.AddCommand(check, validate, activate, info)
	return cmd
}
