package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/cartorio-ai/cartorio/pkg/config"
	"github.com/cartorio-ai/cartorio/pkg/contract"
	"github.com/cartorio-ai/cartorio/pkg/identifier"
	"github.com/cartorio-ai/cartorio/pkg/law"
)

func runTransitionCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("transition", flag.ContinueOnError)
	fs.SetOutput(stderr)
	contractID := fs.String("contract", "", "contract id")
	action := fs.String("action", "", "transition: activate, complete, dispute, defend, cancel, auto")
	actor := fs.String("actor", "", "acting identifier")
	reason := fs.String("reason", "", "transition reason")
	disputeReason := fs.String("dispute-reason", "", "reason when disputing")
	justification := fs.String("justification", "", "defense justification text")
	accepted := fs.Bool("accepted", false, "mark the justification accepted")
	tenant := fs.String("tenant", "", "tenant id for law applicability")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *contractID == "" || *action == "" {
		fmt.Fprintln(stderr, "Usage: cartorio transition -contract <id> -action <transition> [flags]")
		return 2
	}

	st, closeStore, err := buildStore(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "transition: %v\n", err)
		return 1
	}
	defer func() { _ = closeStore() }()

	svc, err := buildGate(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "transition: %v\n", err)
		return 1
	}
	subject := law.Subject{}
	if *tenant != "" {
		subject[law.ScopeTenant] = *tenant
	}
	resolver := svc.Bind(subject, nil, identifier.Identifier(*actor))

	req := contract.TransitionRequest{
		ContractID:    *contractID,
		Transition:    contract.Transition(*action),
		Actor:         identifier.Identifier(*actor),
		Reason:        *reason,
		DisputeReason: *disputeReason,
		Justification: *justification,
	}
	if flagWasSet(fs, "accepted") {
		req.JustificationAccepted = accepted
	}

	eng := contract.NewEngine(st, resolver)
	res, err := eng.Transition(context.Background(), req)
	if err != nil {
		var blocked *contract.BlockedError
		switch {
		case errors.As(err, &blocked):
			fmt.Fprintf(stderr, "blocked: %s\n", blocked.Decision)
			return 3
		case errors.Is(err, contract.ErrIllegalTransition):
			fmt.Fprintf(stderr, "illegal: %v\n", err)
			return 4
		case errors.Is(err, contract.ErrConcurrentTransition):
			fmt.Fprintf(stderr, "conflict: %v\n", err)
			return 5
		}
		fmt.Fprintf(stderr, "transition: %v\n", err)
		return 1
	}

	if res.Parked {
		fmt.Fprintf(stdout, "parked: approval required (%s)\n", res.Applied.Reason)
		return 0
	}
	fmt.Fprintf(stdout, "%s -> %s (row %s)\n", req.ContractID, res.NewState, res.HistoryRowID)
	return 0
}

func flagWasSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func runHistoryCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	contractID := fs.String("contract", "", "contract id")
	asJSON := fs.Bool("json", false, "emit rows as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *contractID == "" {
		fmt.Fprintln(stderr, "Usage: cartorio history -contract <id>")
		return 2
	}

	st, closeStore, err := buildStore(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "history: %v\n", err)
		return 1
	}
	defer func() { _ = closeStore() }()

	ctx := context.Background()
	rows, err := st.History(ctx, *contractID)
	if err != nil {
		fmt.Fprintf(stderr, "history: %v\n", err)
		return 1
	}
	if err := contract.VerifyChain(rows); err != nil {
		fmt.Fprintf(stderr, "chain verification failed: %v\n", err)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			fmt.Fprintf(stderr, "history: %v\n", err)
			return 1
		}
		return 0
	}
	for _, row := range rows {
		fmt.Fprintf(stdout, "%3d  %s -> %-14s %s  %s\n",
			row.Sequence, row.PrevState, row.NewState,
			row.CreatedAt.Format("2006-01-02T15:04:05Z"), row.Reason)
	}
	fmt.Fprintf(stdout, "chain verified (%d rows)\n", len(rows))
	return 0
}
