/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package supervisor implements the process supervisor (spec §4.9/C9): it starts N
// worker processes, each holding one end of a cmdchannel command channel, forwards
// broadcast shutdown, and respawns workers that exit unexpectedly.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/antmuse/AntEngine-sub001/cmdchannel"
	"github.com/antmuse/AntEngine-sub001/internal/corelog"
	"github.com/antmuse/AntEngine-sub001/internal/netutil"
	"github.com/antmuse/AntEngine-sub001/internal/poller"
	"github.com/antmuse/AntEngine-sub001/internal/reqpool"
	"github.com/antmuse/AntEngine-sub001/loop"
)

// childFDEnv names the environment variable a spawned worker reads to find its inherited
// command-channel socket, mirroring the ExtraFiles/env convention graceful-restart tools
// use to hand a socket across exec (fixed fd 3, the first ExtraFiles entry).
const childFDEnv = "ANTENGINE_WORKER_FD"

// Options configures a Supervisor (spec §4.9 "determine process count from config").
type Options struct {
	// Count is the number of worker processes to keep alive. Default 1.
	Count int
	// BinaryPath is the worker executable to exec. Defaults to the supervisor's own
	// executable (os.Executable), so a single antengine binary acts as both supervisor
	// and worker depending on whether childFDEnv is set in its environment.
	BinaryPath string
	// Args are extra arguments passed to each spawned worker.
	Args []string
	// RespawnDelay throttles automatic respawn after an unexpected exit. Default 200ms.
	RespawnDelay time.Duration
	// ShutdownWait bounds how long Shutdown waits for workers to exit after broadcasting
	// EXIT before killing stragglers. Default 5s.
	ShutdownWait time.Duration

	Logger   corelog.Logger
	Counters cmdchannel.Counters
	Poller   poller.Config
}

func (o *Options) setDefaults() {
	if o.Count <= 0 {
		o.Count = 1
	}
	if o.RespawnDelay <= 0 {
		o.RespawnDelay = 200 * time.Millisecond
	}
	if o.ShutdownWait <= 0 {
		o.ShutdownWait = 5 * time.Second
	}
}

// Supervisor owns a dedicated reactor Loop that hosts one cmdchannel.Channel per live
// worker process (spec §4.9); the loop itself never stops for lack of handles, since a
// respawn window would otherwise race it to exit (see driveLoop).
type Supervisor struct {
	opts Options
	log  corelog.Logger
	reqs *reqpool.Pool

	lp      *loop.Loop
	plr     poller.Poller
	stopCh  chan struct{}
	group   *errgroup.Group
	childWG sync.WaitGroup

	mu       sync.Mutex
	children []*process

	shuttingDown atomic.Bool
}

// New builds a Supervisor, constructing its internal loop and poller.
func New(opts Options) (*Supervisor, error) {
	opts.setDefaults()

	p, err := poller.New(opts.Poller)
	if err != nil {
		return nil, fmt.Errorf("supervisor: poller.New: %w", err)
	}
	lp, err := loop.New(p, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("supervisor: loop.New: %w", err)
	}

	return &Supervisor{
		opts:     opts,
		log:      opts.Logger,
		reqs:     reqpool.NewPool(),
		lp:       lp,
		plr:      p,
		stopCh:   make(chan struct{}),
		group:    &errgroup.Group{},
		children: make([]*process, opts.Count),
	}, nil
}

// Start launches the configured number of worker processes and begins driving the
// supervisor's own loop in the background. It returns once every worker's command
// channel has been opened.
func (s *Supervisor) Start(ctx context.Context) error {
	s.group.Go(func() error {
		s.driveLoop()
		return nil
	})

	for slot := 0; slot < len(s.children); slot++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		p, err := s.spawnOne(slot)
		if err != nil {
			return fmt.Errorf("supervisor: spawn slot %d: %w", slot, err)
		}
		s.mu.Lock()
		s.children[slot] = p
		s.mu.Unlock()
	}
	return nil
}

// driveLoop steps the supervisor's loop until Shutdown closes stopCh. Unlike
// loop.Loop.Run, it does not stop merely because the handle count transiently reaches
// zero (e.g. the instant between a worker's channel closing and its respawn replacement
// opening a new one) — the supervisor's loop is long-lived infrastructure, not a worker
// loop whose exit condition is spec §4.6 step 8's handle/fly count.
func (s *Supervisor) driveLoop() {
	for {
		select {
		case <-s.stopCh:
			return
		default:
			s.lp.Step()
		}
	}
}

// runOnLoop submits fn to run on the loop thread and blocks for its result, the safe way
// for another goroutine to touch loop-owned state (spec §4.6 "Wakeup from other
// threads").
func (s *Supervisor) runOnLoop(fn func() error) error {
	done := make(chan error, 1)
	s.lp.PostTask(func() { done <- fn() })
	return <-done
}

// spawnOne execs a fresh worker for slot, hands it one end of a new socket pair, and
// opens a command channel on the supervisor's loop for the other end.
func (s *Supervisor) spawnOne(slot int) (*process, error) {
	parentSock, childSock, err := netutil.SocketPair()
	if err != nil {
		return nil, fmt.Errorf("socketpair: %w", err)
	}

	childFile := os.NewFile(uintptr(childSock.FD), "antengine-worker-sock")

	bin := s.opts.BinaryPath
	if bin == "" {
		if exe, err := os.Executable(); err == nil {
			bin = exe
		} else {
			bin = os.Args[0]
		}
	}

	cmd := exec.Command(bin, s.opts.Args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=3", childFDEnv))
	cmd.ExtraFiles = []*os.File{childFile}

	if err := cmd.Start(); err != nil {
		_ = childFile.Close()
		return nil, fmt.Errorf("start worker: %w", err)
	}
	// The exec syscall gave the child its own copy of fd 3; this process's copy (and the
	// *os.File wrapping it) is no longer needed.
	_ = childFile.Close()

	ch := cmdchannel.New(parentSock, s.reqs, s.opts.Counters, s.log)

	p := &process{
		id:        uuid.New(),
		cmd:       cmd,
		sock:      parentSock,
		channel:   ch,
		startedAt: time.Now(),
		exited:    make(chan struct{}),
	}

	ch.OnRespawn = func() {
		if s.log != nil {
			s.log.Info("worker requested respawn", corelog.F("id", p.id))
		}
		_ = s.runOnLoop(func() error { return ch.SendExit() })
	}

	if err := s.runOnLoop(func() error { return ch.Open(s.lp, nil) }); err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("open command channel: %w", err)
	}

	s.childWG.Add(1)
	go s.waitChild(slot, p)

	if s.log != nil {
		s.log.Info("worker started", corelog.F("slot", slot), corelog.F("id", p.id), corelog.F("pid", cmd.Process.Pid))
	}
	return p, nil
}

// waitChild blocks for the worker's OS process to exit, then respawns it in its slot
// unless the supervisor is shutting down (spec §4.9 "if shutdown was not requested, may
// respawn").
func (s *Supervisor) waitChild(slot int, p *process) {
	defer s.childWG.Done()

	p.waitErr = p.cmd.Wait()
	close(p.exited)

	if s.shuttingDown.Load() {
		return
	}

	if s.log != nil {
		s.log.Warn("worker exited unexpectedly, respawning",
			corelog.F("slot", slot), corelog.F("id", p.id), corelog.F("error", p.waitErr))
	}

	time.Sleep(s.opts.RespawnDelay)
	if s.shuttingDown.Load() {
		return
	}

	np, err := s.spawnOne(slot)
	if err != nil {
		if s.log != nil {
			s.log.Error("respawn failed", corelog.F("slot", slot), corelog.F("error", err))
		}
		return
	}

	s.mu.Lock()
	s.children[slot] = np
	s.mu.Unlock()

	if s.shuttingDown.Load() {
		_ = s.runOnLoop(func() error { return np.channel.SendExit() })
	}
}

// Shutdown broadcasts EXIT to every live worker and waits for them to exit, killing any
// that do not within opts.ShutdownWait.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.shuttingDown.Store(true)

	s.mu.Lock()
	children := append([]*process(nil), s.children...)
	s.mu.Unlock()

	var merr *multierror.Error

	for _, p := range children {
		if p == nil || !p.alive() {
			continue
		}
		if err := s.runOnLoop(func() error { return p.channel.SendExit() }); err != nil {
			merr = multierror.Append(merr, fmt.Errorf("worker %s: send exit: %w", p.id, err))
		}
	}

	deadline, cancel := context.WithTimeout(ctx, s.opts.ShutdownWait)
	defer cancel()

	allExited := make(chan struct{})
	go func() {
		for _, p := range children {
			if p == nil {
				continue
			}
			<-p.exited
		}
		close(allExited)
	}()

	select {
	case <-allExited:
	case <-deadline.Done():
		for _, p := range children {
			if p != nil && p.alive() {
				if err := p.cmd.Process.Kill(); err != nil {
					merr = multierror.Append(merr, fmt.Errorf("worker %s: kill: %w", p.id, err))
				}
			}
		}
		merr = multierror.Append(merr, fmt.Errorf("supervisor: shutdown deadline exceeded: %w", deadline.Err()))
	}

	s.childWG.Wait()
	close(s.stopCh)
	_ = s.group.Wait()
	_ = s.plr.Close()

	return merr.ErrorOrNil()
}

// Alive reports how many worker slots currently hold a running process.
func (s *Supervisor) Alive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.children {
		if p != nil && p.alive() {
			n++
		}
	}
	return n
}
