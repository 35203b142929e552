// Copyright 2023 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// 	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/frostbyte73/core"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/livekit/protocol/logger"

	"github.com/sipbell/bell/pkg/config"
	"github.com/sipbell/bell/pkg/stats"
	"github.com/sipbell/bell/pkg/trigger"
	"github.com/sipbell/bell/version"
)

// Ringer places one complete bell call. *sip.Client implements it.
type Ringer interface {
	Ring(ctx context.Context) error
}

type Service struct {
	conf *config.Config
	log  logger.Logger
	mon  *stats.Monitor
	cli  Ringer
	src  trigger.Source

	promServer *http.Server
	shutdown   core.Fuse
}

// NewService creates the bell service. With a nil trigger source, Run places a single call.
func NewService(conf *config.Config, log logger.Logger, mon *stats.Monitor, cli Ringer, src trigger.Source) *Service {
	if log == nil {
		log = logger.GetLogger()
	}
	s := &Service{
		conf: conf,
		log:  log,
		mon:  mon,
		cli:  cli,
		src:  src,
	}
	if conf.PrometheusPort > 0 {
		s.promServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", conf.PrometheusPort),
			Handler: promhttp.Handler(),
		}
	}
	return s
}

// Stop interrupts a pending trigger wait or ring hold. A call in progress still sends its CANCEL.
func (s *Service) Stop() {
	s.mon.Shutdown()
	s.shutdown.Break()
}

func (s *Service) Run(ctx context.Context) error {
	s.log.Debugw("starting service", "version", version.Version)

	if err := s.mon.Start(); err != nil {
		return err
	}
	defer s.mon.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.shutdown.Watch():
			cancel()
		case <-ctx.Done():
		}
	}()

	if s.promServer != nil {
		l, err := net.Listen("tcp", s.promServer.Addr)
		if err != nil {
			return err
		}
		go func() {
			_ = s.promServer.Serve(l)
		}()
		defer s.promServer.Close()
	}

	if s.src == nil {
		s.log.Infow("placing call")
		return s.cli.Ring(ctx)
	}
	return s.runTriggered(ctx)
}

func (s *Service) runTriggered(ctx context.Context) error {
	s.log.Infow("service ready, waiting for trigger", "device", s.conf.Serial)
	for {
		if err := s.src.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				s.log.Infow("shutting down")
				return nil
			}
			return err
		}
		s.mon.TriggerFired()

		if err := s.cli.Ring(ctx); err != nil {
			if s.conf.AbortOnFailure {
				return err
			}
			s.log.Warnw("call failed, waiting for next trigger", err)
		}

		if !s.sleep(ctx, s.conf.Quiescence()) {
			s.log.Infow("shutting down")
			return nil
		}
	}
}

// sleep waits for d and reports false if the context ended first.
func (s *Service) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

