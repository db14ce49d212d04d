// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/meerschaum/mrsm/internal/config"
	"github.com/meerschaum/mrsm/internal/connectors"
	"github.com/meerschaum/mrsm/internal/connectors/api"
	"github.com/meerschaum/mrsm/internal/connectors/plugin"
	"github.com/meerschaum/mrsm/internal/instance/memstore"
	"github.com/meerschaum/mrsm/internal/instance/sqlstore"
	"github.com/meerschaum/mrsm/internal/scheduler"
	"github.com/meerschaum/mrsm/internal/sync"
	"github.com/meerschaum/mrsm/pkg/dtypes"
	"github.com/meerschaum/mrsm/pkg/log"
	"github.com/meerschaum/mrsm/pkg/schema"
)

const version = "0.3.0"

func main() {
	cliInit()

	if flagVersion {
		fmt.Printf("mrsm %s\n", version)
		os.Exit(0)
	}

	// .env is optional; the environment wins over it.
	godotenv.Load()

	log.SetLogLevel(flagLogLevel)
	log.SetLogDateTime(flagLogDateTime)

	if err := config.Init(flagConfigDir); err != nil {
		log.Fatalf("Could not load configuration: %v", err)
	}

	registry := connectors.NewRegistry()
	plugins := plugin.NewRegistry()
	registry.RegisterType("sql", sqlstore.Factory)
	registry.RegisterType("api", api.Factory)
	registry.RegisterType("memory", memstore.Factory)
	registry.RegisterType("plugin", plugin.Factory(plugins))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	instanceKeys := flagInstance
	if instanceKeys == "" {
		instanceKeys = config.Keys.InstanceKeys
	}
	inst, err := connectors.ParseInstanceKeys(registry, instanceKeys)
	if err != nil {
		log.Fatalf("Could not resolve instance %q: %v", instanceKeys, err)
	}
	lister, ok := inst.(connectors.Lister)
	if !ok {
		log.Fatalf("Instance %q cannot enumerate pipes", instanceKeys)
	}

	pipes, err := lister.ListPipes(ctx, connectors.PipeFilter{
		ConnectorKeys: splitCommas(flagConnector),
		MetricKeys:    splitCommas(flagMetric),
		LocationKeys:  splitCommas(flagLocation),
		Tags:          splitCommas(flagTags),
	})
	if err != nil {
		log.Fatalf("Could not list pipes: %v", err)
	}
	if len(pipes) == 0 {
		log.Warn("No pipes matched the given filters.")
		os.Exit(1)
	}
	for _, pipe := range pipes {
		pipe.Instance = instanceKeys
	}

	opts := sync.DefaultOptions()
	opts.CheckExisting = !flagNoCheckExisting
	opts.Begin = parseBound(flagBegin)
	opts.End = parseBound(flagEnd)
	opts.Workers = flagWorkers

	syncer := sync.NewSyncer(registry, sync.NewHooks())
	sched := scheduler.New(syncer, scheduler.Config{
		Workers:        flagWorkers,
		MinSeconds:     flagMinSeconds,
		Loop:           flagLoop,
		DoNTimes:       flagDoNTimes,
		ScheduleStr:    flagSchedule,
		TimeoutSeconds: flagTimeoutSeconds,
	})

	results, ok := sched.Run(ctx, pipes, opts)
	printSummary(results)
	if !ok {
		os.Exit(1)
	}
}

func splitCommas(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBound(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	t, _, err := dtypes.ParseDatetime(s)
	if err != nil {
		log.Fatalf("Invalid datetime bound %q: %v", s, err)
	}
	return t
}

func printSummary(results map[*schema.Pipe]schema.SuccessTuple) {
	succeeded, failed := 0, 0
	for pipe, tuple := range results {
		status := "ok  "
		if !tuple.Ok {
			status = "fail"
			failed++
		} else {
			succeeded++
		}
		fmt.Printf("  %s  %s: %s\n", status, pipe, tuple.Msg)
	}
	fmt.Printf("Synced %d pipes (%d succeeded, %d failed).\n",
		succeeded+failed, succeeded, failed)
}
