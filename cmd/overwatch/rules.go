package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/odvcencio/overwatch/pkg/config"
	"github.com/odvcencio/overwatch/pkg/observability"
	"github.com/odvcencio/overwatch/pkg/policy"
)

func runRulesCommand(args []string) error {
	return runRules(args, os.Stdout)
}

func runRules(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("rules", flag.ContinueOnError)
	configFile := fs.String("config", "", "path to overwatch.yaml")
	format := fs.String("format", "table", "output format: table, json or yaml")
	if err := fs.Parse(args); err != nil {
		return withExitCode(err, 2)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return withExitCode(err, 2)
	}
	v, err := policy.NewValidator(observability.Discard(), cfg.Compliance.AgencyRules)
	if err != nil {
		return withExitCode(err, 2)
	}
	rules := v.Rules()

	switch *format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rules)
	case "yaml":
		return yaml.NewEncoder(out).Encode(rules)
	case "table":
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tFRAMEWORK\tSEVERITY\tBLOCKING\tNAME")
		for _, r := range rules {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", r.ID, r.Framework, r.Severity, r.Blocking, r.Name)
		}
		return tw.Flush()
	}
	return withExitCode(fmt.Errorf("unknown format %q", *format), 2)
}

func runConfigCommand(args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	configFile := fs.String("config", "", "path to overwatch.yaml")
	if err := fs.Parse(args); err != nil {
		return withExitCode(err, 2)
	}
	cfg, err := loadConfig(*configFile)
	if err != nil {
		return withExitCode(err, 2)
	}
	return printConfig(cfg, os.Stdout)
}

func printConfig(cfg *config.Config, out io.Writer) error {
	data, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}
