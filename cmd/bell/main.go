// Copyright 2023 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/livekit/protocol/logger"

	"github.com/sipbell/bell/pkg/service"
	"github.com/sipbell/bell/pkg/sip"
	"github.com/sipbell/bell/pkg/stats"
	"github.com/sipbell/bell/pkg/trigger"
	"github.com/sipbell/bell/version"
)

func init() {
	// -v is the verbosity counter
	cli.VersionFlag = &cli.BoolFlag{
		Name:  "version",
		Usage: "print the version",
	}
}

func main() {
	var verbosity int
	cmd := newCommand(&verbosity)
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand(verbosity *int) *cli.Command {
	return &cli.Command{
		Name:        "bell",
		Usage:       "SIP door bell",
		Version:     version.Version,
		Description: "Rings a SIP phone once, or every time the button on the serial line is pressed",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "yaml config file",
				Sources: cli.EnvVars("BELL_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "config-body",
				Usage:   "yaml config body",
				Sources: cli.EnvVars("BELL_CONFIG_BODY"),
			},
			&cli.StringFlag{
				Name:    "source",
				Aliases: []string{"s"},
				Usage:   "Source IP address, or \"auto\"",
				Sources: cli.EnvVars("BELL_SOURCE_IP"),
			},
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"d"},
				Usage:   "SIP server IP address",
				Sources: cli.EnvVars("BELL_SERVER_IP"),
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"e"},
				Usage:   "TCP port of the SIP server",
				Value:   sip.DefaultPort,
				Sources: cli.EnvVars("BELL_SERVER_PORT"),
			},
			&cli.StringFlag{
				Name:    "target",
				Aliases: []string{"t"},
				Usage:   "SIP target address",
				Sources: cli.EnvVars("BELL_SIP_TARGET"),
			},
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "Username for SIP authentication",
				Sources: cli.EnvVars("BELL_USERNAME"),
			},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				Usage:   "Password for SIP authentication",
				Sources: cli.EnvVars("BELL_PASSWORD"),
			},
			&cli.IntFlag{
				Name:    "duration",
				Aliases: []string{"m"},
				Usage:   "Ring duration in milliseconds, must be positive",
				Value:   2000,
				Sources: cli.EnvVars("BELL_DURATION_MILLIS"),
			},
			&cli.StringFlag{
				Name:    "serial",
				Aliases: []string{"r"},
				Usage:   "Serial port of the button. If not set, rings once and exits",
				Sources: cli.EnvVars("BELL_SERIAL"),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Verbose output (-vv for debug)",
				Config:  cli.BoolConfig{Count: verbosity},
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runService(ctx, c, *verbosity)
		},
	}
}

func runService(ctx context.Context, c *cli.Command, verbosity int) error {
	conf, err := getConfig(c, verbosity)
	if err != nil {
		return err
	}
	log := logger.GetLogger()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mon := stats.NewMonitor(nil)
	client := sip.NewClient(conf.CallConfig(), conf.ClientConfig(), log, mon)

	var src trigger.Source
	if conf.TriggerMode() {
		src = trigger.NewSerial(conf.SerialConfig(), log)
	}
	svc := service.NewService(conf, log, mon, client, src)

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT)
	defer signal.Stop(stopChan)

	go func() {
		select {
		case sig := <-stopChan:
			log.Infow("exit requested, shutting down", "signal", sig)
			svc.Stop()
		case <-ctx.Done():
		}
	}()

	return svc.Run(ctx)
}
