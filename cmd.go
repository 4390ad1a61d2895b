// Copyright (C) The Epilogos Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package epilogos

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"

	"git.arvados.org/arvados.git/lib/cmd"
	"github.com/mattn/go-isatty"
	log "github.com/sirupsen/logrus"
)

var (
	handler = cmd.Multi(map[string]cmd.Handler{
		"version":   cmd.Version,
		"-version":  cmd.Version,
		"--version": cmd.Version,

		"background": &estimateCmd{},
		"combine":    &combineCmd{},
		"scores":     &scoreCmd{},
		"pairwise":   &pairwiseCmd{},
	})
)

func Main() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		log.StandardLogger().Formatter = &log.TextFormatter{DisableTimestamp: true}
	}
	os.Exit(handler.RunCommand(os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

var errUsage = errors.New("usage error")

// runner is implemented by every subcommand.
type runner interface {
	run(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) error
}

// runCommand adapts a runner to the cmd.Handler exit code convention:
// 0 on success or -help, 2 on bad usage, 1 on any other error.
func runCommand(r runner, prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := r.run(prog, args, stdin, stdout, stderr)
	if err == flag.ErrHelp {
		return 0
	} else if errors.Is(err, errUsage) {
		fmt.Fprintf(stderr, "%s\n", err)
		return 2
	} else if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return 1
	}
	return 0
}

// parseFlags parses the flags shared by all pipeline subcommands, plus
// whatever flags the caller has already registered, and validates the
// result.
func parseFlags(flags *flag.FlagSet, args []string) (*Config, error) {
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	cfg, err := parseConfig(flags, args)
	if err == flag.ErrHelp {
		return nil, err
	} else if err != nil {
		return nil, fmt.Errorf("%w: %s", errUsage, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}
	return cfg, nil
}
