// Command seed-templates writes the built-in checklist templates into the
// configured document store for each kid on the roster.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"homeworkcore/internal/config"
	"homeworkcore/internal/core"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("seed-templates", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to TOML config file (optional)")
	kid := fs.String("kid", "", "seed only this kid (default: full roster)")
	timeout := fs.Duration("timeout", 30*time.Second, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "seed-templates: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := core.OpenDocumentStoreConfig(core.StorageConfig{
		Driver:      core.StorageDriver(cfg.Storage.Driver),
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
	})
	if err != nil {
		fmt.Fprintf(stderr, "seed-templates: open store: %v\n", err)
		return 1
	}
	defer closeStore(store, stderr)

	defaults := core.DefaultTemplates()
	for name, tpl := range cfg.TemplateOverrides() {
		defaults[name] = tpl
	}
	engine := core.NewEngine(store,
		core.WithLogger(core.NewZapLogger(nil)),
		core.WithDefaultTemplates(defaults),
	)

	kids := cfg.KidNames()
	if *kid != "" {
		kids = []string{*kid}
	}
	if len(kids) == 0 {
		// No roster configured; fall back to the known templates.
		for name := range defaults {
			kids = append(kids, name)
		}
	}

	seeded, err := engine.SeedDefaultTemplates(ctx, kids...)
	if err != nil {
		fmt.Fprintf(stderr, "seed-templates: %v\n", err)
		return 1
	}
	for _, name := range kids {
		fmt.Fprintf(stdout, "%s\taccent=%s\n", name, cfg.AccentFor(name))
	}
	fmt.Fprintf(stdout, "seeded %d template(s)\n", seeded)
	return 0
}

func closeStore(store any, stderr io.Writer) {
	type closer interface{ Close() error }
	if c, ok := store.(closer); ok {
		if err := c.Close(); err != nil {
			fmt.Fprintf(stderr, "seed-templates: close store: %v\n", err)
		}
	}
}
