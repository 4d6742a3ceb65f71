package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/banshee-data/pointnet/internal/version"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "fetch":
		handleFetch(args)
	case "train":
		handleTrain(args)
	case "eval":
		handleEval(args)
	case "predict":
		handlePredict(args)
	case "serve":
		handleServe(args)
	case "version":
		fmt.Printf("pointnet version %s\n", version.String())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`pointnet - point cloud classifier trained on mesh datasets

Usage: pointnet <command> [options]

Commands:
  fetch      Download and extract the mesh dataset
  train      Train a classifier and record the run
  eval       Evaluate a stored checkpoint on the test split
  predict    Classify mesh files with a stored checkpoint
  serve      Serve the run store and classifier over HTTP
  version    Show pointnet version
  help       Show this help message

Common Flags:
  --config <file>   JSON training configuration; omitted fields use
                    defaults matching the reference training recipe
  --data <dir>      Dataset directory (default: data)
  --db <file>       Run store database (default: pointnet_runs.db)

Examples:
  # Download ModelNet10 into ./data
  pointnet fetch

  # Train with defaults and plot curves into ./curves
  pointnet train --curves ./curves

  # Evaluate the most recent run
  pointnet eval

  # Classify a mesh with the most recent checkpoint
  pointnet predict chair.off

  # Serve runs and classification on :8080
  pointnet serve --listen :8080`)
}
