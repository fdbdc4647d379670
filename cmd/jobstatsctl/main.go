// Package main is the entry point for jobstatsctl.
// jobstatsctl is the operator tool for the statistics store: it runs
// migrations, inspects recorded jobs and enqueues smoke-test jobs.
package main

import (
	"os"

	"jobstats/cmd/jobstatsctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
