// Command tsctl is the operational CLI companion to tsgraphd: it inspects
// metadata identity and dry-runs the scheduler without touching any
// engine's stored data. Structure is flat subcommand dispatch with
// one-shot log.Printf reporting, no CLI framework.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"tsgraph/internal/config"
	"tsgraph/internal/engine"
	"tsgraph/internal/graph"
	"tsgraph/internal/graphdef"
	"tsgraph/internal/metadata"
	"tsgraph/internal/runner"
	"tsgraph/internal/timeutil"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "describe":
		runDescribe(os.Args[2:])
	case "plan":
		runPlan(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: tsctl <describe|plan> [flags]")
}

func loadTasks(configPath string) (map[string]*graph.Task, engine.Engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if len(cfg.Engines) == 0 {
		return nil, nil, fmt.Errorf("no engines configured")
	}

	ec := cfg.Engines[0]
	var eng engine.Engine
	if ec.Kind == "postgres" {
		pg, err := engine.NewPostgresEngine(context.Background(), ec.ID, ec.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres engine: %w", err)
		}
		eng = pg
	} else {
		eng = engine.NewMemoryEngine(ec.ID)
	}

	target := timeutil.TimeRange{
		Start: timeutil.MustTimestamp(time.Now().AddDate(-1, 0, 0)),
		End:   timeutil.MustTimestamp(time.Now()),
	}
	tasks, err := graphdef.Build(eng, "v1", target)
	if err != nil {
		return nil, nil, fmt.Errorf("build graph: %w", err)
	}
	return tasks, eng, nil
}

// runDescribe prints a node's canonical hash and predecessor tree.
// It does not touch any engine's stored data.
func runDescribe(args []string) {
	fs := flag.NewFlagSet("describe", flag.ExitOnError)
	configPath := fs.String("config", "tsgraphd.yaml", "path to the YAML config file")
	name := fs.String("name", "", "dataset name to describe")
	fs.Parse(args)

	if *name == "" {
		log.Fatal("describe: -name is required")
	}

	tasks, _, err := loadTasks(*configPath)
	if err != nil {
		log.Fatalf("describe: %v", err)
	}
	task, ok := tasks[*name]
	if !ok {
		log.Fatalf("describe: unknown dataset %q", *name)
	}

	printNode(task.Output(), 0)
}

func printNode(md *metadata.Metadata, depth int) {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	fmt.Printf("%s%s @ %s  hash=%s  engine=%s\n", indent, md.Name, md.Version, md.Hash(), md.EngineID)
	for _, edge := range md.Predecessors {
		if pred, ok := edge.Node.(*metadata.Metadata); ok {
			printNode(pred, depth+1)
			continue
		}
		fmt.Printf("%s  %s -> stub hash=%s\n", indent, edge.Key, edge.Node.Hash())
	}
}

// runPlan dry-runs the Runner over every Task in the graph and prints each
// node's would-run/would-skip classification, writing nothing.
func runPlan(args []string) {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	configPath := fs.String("config", "tsgraphd.yaml", "path to the YAML config file")
	fs.Parse(args)

	tasks, eng, err := loadTasks(*configPath)
	if err != nil {
		log.Fatalf("plan: %v", err)
	}

	all := make([]*graph.Task, 0, len(tasks))
	for _, t := range tasks {
		all = append(all, t)
	}

	rnr := &runner.Runner{Tasks: all, Engines: map[string]engine.Engine{eng.ID(): eng}}
	steps, err := rnr.Plan(context.Background(), all)
	if err != nil {
		log.Fatalf("plan: %v", err)
	}

	for _, step := range steps {
		verb := "skip"
		if step.WouldRun {
			verb = "run"
		}
		fmt.Printf("%-6s %-28s %s\n", verb, step.Name, step.Reason)
	}
}
