// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Command vclamp-correct removes series-resistance and capacitance errors
// from a voltage-clamp recording or from the simulated GluR6 dataset.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"

	"github.com/OpenPSG/vclamp/config"
	"github.com/OpenPSG/vclamp/internal/log"
	"github.com/OpenPSG/vclamp/pipeline"
)

const version = "0.1-" + runtime.GOOS + "/" + runtime.GOARCH

func main() {
	cfgFile := flag.String("config", "", "Path to a YAML configuration file (defaults are used when empty)")
	profile := flag.String("profile", "", "Data source: 'measured' or 'simulated' (overrides the configuration)")
	input := flag.String("input", "", "EDF recording to correct (overrides measured.input)")
	output := flag.String("output", "", "Output directory (overrides output.dir)")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("vclamp-correct %s\n", version)
		os.Exit(0)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger := log.GetSugaredLogger()

	cfg, err := loadConfig(*cfgFile, *profile, *input, *output)
	if err != nil {
		logger.Errorf("Failed to load configuration: %v", err)
		log.Sync()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := pipeline.New(cfg, logger).Run(ctx)
	if err != nil {
		logger.Errorf("Correction failed: %v", err)
		log.Sync()
		os.Exit(1)
	}

	logger.Infow("Correction complete", "profile", res.Profile, "name", res.Name, "samples", res.Corrected.Len())
}

func loadConfig(cfgFile, profile, input, output string) (config.Config, error) {
	cfg := config.Default()
	if cfgFile != "" {
		var err error
		if cfg, err = config.Load(cfgFile); err != nil {
			return config.Config{}, err
		}
	}

	if profile != "" {
		cfg.Profile = config.Profile(profile)
	}
	if input != "" {
		cfg.Measured.Input = input
	}
	if output != "" {
		cfg.Output.Dir = output
	}

	return cfg, cfg.Validate()
}
