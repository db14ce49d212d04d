// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import "flag"

var (
	flagVersion, flagLogDateTime, flagLoop, flagNoCheckExisting bool
	flagConfigDir, flagLogLevel, flagInstance, flagSchedule     string
	flagConnector, flagMetric, flagLocation, flagTags           string
	flagBegin, flagEnd                                          string
	flagWorkers, flagDoNTimes                                   int
	flagMinSeconds, flagTimeoutSeconds                          float64
)

func cliInit() {
	flag.BoolVar(&flagVersion, "version", false, "Show version information and exit")
	flag.BoolVar(&flagLogDateTime, "logdate", false, "Set this flag to add date and time to log messages")
	flag.StringVar(&flagLogLevel, "loglevel", "warn", "Sets the logging level: `[debug, info, warn, err, crit]`")
	flag.StringVar(&flagConfigDir, "config", "", "Specify alternative path to the config directory")

	flag.StringVar(&flagConnector, "c", "", "Comma-separated connector keys to select pipes (e.g. `sql:main,plugin:noaa`)")
	flag.StringVar(&flagMetric, "m", "", "Comma-separated metric keys to select pipes")
	flag.StringVar(&flagLocation, "l", "", "Comma-separated location keys to select pipes")
	flag.StringVar(&flagTags, "t", "", "Comma-separated tags to select pipes (prefix with the negation prefix to exclude)")
	flag.StringVar(&flagInstance, "i", "", "Instance keys to sync against (default from config)")

	flag.StringVar(&flagBegin, "begin", "", "Lower datetime bound passed to fetch")
	flag.StringVar(&flagEnd, "end", "", "Upper datetime bound passed to fetch")
	flag.BoolVar(&flagNoCheckExisting, "skip-check-existing", false, "Skip the filter against existing rows (append-only)")

	flag.BoolVar(&flagLoop, "loop", false, "Keep syncing in a loop with at least `min-seconds` between iterations")
	flag.Float64Var(&flagMinSeconds, "min-seconds", 1, "Minimum seconds between sync iterations")
	flag.IntVar(&flagDoNTimes, "do-n-times", 1, "Run this many sync iterations")
	flag.StringVar(&flagSchedule, "schedule", "", "Fire iterations on a schedule (e.g. `every 10 seconds`, `mon-fri and daily`)")
	flag.Float64Var(&flagTimeoutSeconds, "timeout-seconds", 0, "Hard per-pipe timeout; expired syncs report a timeout failure")
	flag.IntVar(&flagWorkers, "workers", 0, "Worker pool size (default: bounded by CPUs and the connection pool)")

	flag.Parse()
}
