package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/cartorio-ai/cartorio/pkg/config"
	"github.com/cartorio-ai/cartorio/pkg/facts"
	"github.com/cartorio-ai/cartorio/pkg/gate"
	"github.com/cartorio-ai/cartorio/pkg/identifier"
	"github.com/cartorio-ai/cartorio/pkg/law"
	"github.com/cartorio-ai/cartorio/pkg/policy"
)

func runEvalCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	fs.SetOutput(stderr)
	factsJSON := fs.String("facts", "{}", "fact context as a JSON object")
	subjectFlag := fs.String("subject", "", "law subject as scope=id pairs, comma separated")
	chainFlag := fs.String("chain", "", "policy scope chain as scope[:id] links, comma separated")
	actorFlag := fs.String("actor", "", "requesting identifier")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var fc facts.Context
	if err := json.Unmarshal([]byte(*factsJSON), &fc); err != nil {
		fmt.Fprintf(stderr, "parse facts: %v\n", err)
		return 2
	}
	subject, err := parseSubject(*subjectFlag)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	chain, err := parseChain(*chainFlag)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	svc, err := buildGate(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "eval: %v\n", err)
		return 1
	}

	rec, err := svc.Evaluate(context.Background(), gate.Request{
		Subject: subject,
		Chain:   chain,
		Actor:   identifier.Identifier(*actorFlag),
		Facts:   fc,
	})
	if err != nil {
		fmt.Fprintf(stderr, "eval: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		fmt.Fprintf(stderr, "eval: %v\n", err)
		return 1
	}
	return 0
}

func parseSubject(s string) (law.Subject, error) {
	subject := law.Subject{}
	for _, pair := range splitList(s) {
		scope, id, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("subject pair %q is not scope=id", pair)
		}
		if !law.Scope(scope).Valid() {
			return nil, fmt.Errorf("unknown law scope %q", scope)
		}
		subject[law.Scope(scope)] = id
	}
	return subject, nil
}

func parseChain(s string) ([]policy.ScopeRef, error) {
	var chain []policy.ScopeRef
	for _, link := range splitList(s) {
		scope, id, _ := strings.Cut(link, ":")
		if !policy.Scope(scope).Valid() {
			return nil, fmt.Errorf("unknown policy scope %q", scope)
		}
		chain = append(chain, policy.ScopeRef{Scope: policy.Scope(scope), ID: id})
	}
	return chain, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
