package cmd

import (
	"fmt"
	"strings"

	"github.com/urfave/cli"

	"github.com/achilleasa/bvhbuild/log"
)

var logger = log.New("cli")

// Apply the global verbosity flags. -v and -vv raise the level of every
// component; --log-module overrides it for a single component, e.g.
// --log-module "bvh builder=debug".
func setupLogging(ctx *cli.Context) error {
	switch {
	case ctx.GlobalBool("vv"):
		log.SetLevel(log.Debug)
	case ctx.GlobalBool("v"):
		log.SetLevel(log.Info)
	}

	for _, override := range ctx.GlobalStringSlice("log-module") {
		module, level, err := parseModuleLevel(override)
		if err != nil {
			return err
		}
		log.SetModuleLevel(level, module)
	}
	return nil
}

// Parse a "module=level" pair.
func parseModuleLevel(override string) (string, log.Level, error) {
	module, name, ok := strings.Cut(override, "=")
	module = strings.TrimSpace(module)
	if !ok || module == "" {
		return "", log.Notice, fmt.Errorf("invalid log module override %q; expected module=level", override)
	}
	level, err := log.ParseLevel(strings.TrimSpace(name))
	if err != nil {
		return "", log.Notice, err
	}
	return module, level, nil
}
