package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cartorio-ai/cartorio/pkg/config"
	"github.com/cartorio-ai/cartorio/pkg/pack"
	"github.com/cartorio-ai/cartorio/pkg/policy"
)

func runPacksCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("packs", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if cfg.LawPackDir == "" && cfg.PolicyBundleDir == "" {
		fmt.Fprintln(stderr, "set LAW_PACK_DIR and/or POLICY_BUNDLE_DIR")
		return 2
	}

	failed := false
	if cfg.LawPackDir != "" {
		if err := listLawPacks(cfg.LawPackDir, stdout, stderr); err != nil {
			fmt.Fprintf(stderr, "packs: %v\n", err)
			failed = true
		}
	}
	if cfg.PolicyBundleDir != "" {
		if err := listPolicyBundles(cfg.PolicyBundleDir, stdout, stderr); err != nil {
			fmt.Fprintf(stderr, "packs: %v\n", err)
			failed = true
		}
	}
	if failed {
		return 1
	}
	return 0
}

func listLawPacks(dir string, stdout, stderr io.Writer) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		p, laws, issues, err := pack.LoadLawPack(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "law pack %s %s  %s  (%d laws)\n", p.Name, p.Version, p.Hash, len(laws))
		for _, issue := range issues {
			fmt.Fprintf(stderr, "  skipped %s\n", issue)
		}
	}
	return nil
}

func listPolicyBundles(dir string, stdout, stderr io.Writer) error {
	evaluator, err := policy.NewEvaluator()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		b, issues, err := pack.LoadPolicyBundle(filepath.Join(dir, entry.Name()), evaluator.Compile)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "policy bundle %s %s  %s  (%d policies)\n", b.Name, b.Version, b.Hash, len(b.Policies))
		for _, issue := range issues {
			fmt.Fprintf(stderr, "  skipped %s\n", issue)
		}
	}
	return nil
}
