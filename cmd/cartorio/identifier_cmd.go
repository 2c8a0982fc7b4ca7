package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/cartorio-ai/cartorio/pkg/config"
	"github.com/cartorio-ai/cartorio/pkg/identifier"
)

func runMintCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mint", flag.ContinueOnError)
	fs.SetOutput(stderr)
	ns := fs.String("ns", string(identifier.NamespacePerson), "namespace (BR or AGENT)")
	region := fs.String("region", "", "two-letter region code")
	year := fs.Int("year", 0, "issue year")
	seq := fs.Int("seq", 0, "sequence number")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if cfg.IdentifierSecret == "" {
		fmt.Fprintln(stderr, "IDENTIFIER_SECRET is not set")
		return 2
	}

	id, err := identifier.Mint(identifier.Namespace(*ns), *region, *year, *seq, cfg.IdentifierSecret)
	if err != nil {
		fmt.Fprintf(stderr, "mint: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, id)
	return 0
}

func runValidateCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: cartorio validate <identifier>")
		return 2
	}
	if cfg.IdentifierSecret == "" {
		fmt.Fprintln(stderr, "IDENTIFIER_SECRET is not set")
		return 2
	}

	id := identifier.Identifier(fs.Arg(0))
	if !identifier.Validate(id, cfg.IdentifierSecret) {
		fmt.Fprintln(stdout, "invalid")
		return 1
	}
	fmt.Fprintln(stdout, "valid")
	return 0
}
