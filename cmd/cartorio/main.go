package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cartorio-ai/cartorio/pkg/config"
	"github.com/cartorio-ai/cartorio/pkg/contract"
	"github.com/cartorio-ai/cartorio/pkg/gate"
	"github.com/cartorio-ai/cartorio/pkg/law"
	"github.com/cartorio-ai/cartorio/pkg/pack"
	"github.com/cartorio-ai/cartorio/pkg/policy"
	"github.com/cartorio-ai/cartorio/pkg/store"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	switch args[1] {
	case "mint":
		return runMintCmd(cfg, args[2:], stdout, stderr)
	case "validate":
		return runValidateCmd(cfg, args[2:], stdout, stderr)
	case "eval":
		return runEvalCmd(cfg, args[2:], stdout, stderr)
	case "transition":
		return runTransitionCmd(cfg, args[2:], stdout, stderr)
	case "history":
		return runHistoryCmd(cfg, args[2:], stdout, stderr)
	case "packs":
		return runPacksCmd(cfg, args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "cartorio - governance registry")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  cartorio <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  mint        Mint a checksummed identifier")
	fmt.Fprintln(w, "  validate    Validate an identifier's shape and checksum")
	fmt.Fprintln(w, "  eval        Evaluate a fact context through laws and policies")
	fmt.Fprintln(w, "  transition  Attempt a contract lifecycle transition")
	fmt.Fprintln(w, "  history     Print and verify a contract's state history")
	fmt.Fprintln(w, "  packs       Inspect law packs and policy bundles")
	fmt.Fprintln(w, "")
}

// buildGate wires the governance content from the configured directories.
func buildGate(cfg *config.Config, stderr io.Writer) (*gate.Service, error) {
	registry := law.NewRegistry()
	evaluator, err := policy.NewEvaluator(policy.WithDefaultDecision(cfg.Default()))
	if err != nil {
		return nil, err
	}
	svc := gate.New(registry, evaluator, gate.WithIdentifierSecret(cfg.IdentifierSecret))

	if cfg.LawPackDir != "" {
		laws, issues, err := pack.LoadLawDir(cfg.LawPackDir)
		if err != nil {
			return nil, err
		}
		for _, issue := range issues {
			fmt.Fprintf(stderr, "skipped law %s\n", issue)
		}
		for _, issue := range registry.Replace(laws) {
			fmt.Fprintf(stderr, "skipped law %s\n", issue)
		}
	}
	if cfg.PolicyBundleDir != "" {
		policies, issues, err := pack.LoadPolicyDir(cfg.PolicyBundleDir, evaluator.Compile)
		if err != nil {
			return nil, err
		}
		for _, issue := range issues {
			fmt.Fprintf(stderr, "skipped policy %s\n", issue)
		}
		svc.SetPolicies(policies)
	}
	return svc, nil
}

// buildStore opens the configured contract store.
func buildStore(cfg *config.Config) (contract.Store, func() error, error) {
	switch cfg.StoreDriver {
	case "memory":
		return store.NewMemoryStore(), func() error { return nil }, nil
	case "sqlite":
		s, err := store.OpenSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "postgres":
		s, err := store.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
