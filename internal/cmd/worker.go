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

package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/antmuse/AntEngine-sub001/cmdchannel"
	"github.com/antmuse/AntEngine-sub001/internal/corelog"
	"github.com/antmuse/AntEngine-sub001/internal/netutil"
	"github.com/antmuse/AntEngine-sub001/internal/poller"
	"github.com/antmuse/AntEngine-sub001/internal/reqpool"
	"github.com/antmuse/AntEngine-sub001/loop"
	"github.com/antmuse/AntEngine-sub001/slab"
)

// runWorker is the production worker entry point (spec §4.9): it wraps the fd inherited
// from the supervisor, opens a command channel bound into a fresh reactor Loop, and runs
// the loop until EXIT closes that channel's handle (spec §4.6 step 8, handle/fly count
// reaching zero). When the supervisor exported a shared region, the worker maps it for
// the lifetime of the call; no other handles are registered on the loop, so the command
// channel is its only handle — the same shape runWorkerHelper in supervisor's own test
// exercises.
func runWorker(fdStr string) error {
	fd, err := strconv.Atoi(fdStr)
	if err != nil {
		return fmt.Errorf("antengine: invalid %s=%q: %w", workerFDEnv, fdStr, err)
	}
	sock := &netutil.Socket{FD: fd, Type: netutil.SockStream, Family: netutil.FamilyUnix}

	log := corelog.New(nil, corelog.InfoLevel)

	var region *slab.Region
	if path := os.Getenv(regionPathEnv); path != "" {
		size, _ := strconv.Atoi(os.Getenv(regionSizeEnv))
		region, _, err = slab.OpenRegion(path, size)
		if err != nil {
			return fmt.Errorf("antengine: attach shared region: %w", err)
		}
		defer region.Close()
	}

	p, err := poller.New(poller.Config{})
	if err != nil {
		return fmt.Errorf("antengine: poller.New: %w", err)
	}
	lp, err := loop.New(p, log)
	if err != nil {
		return fmt.Errorf("antengine: loop.New: %w", err)
	}

	ch := cmdchannel.New(sock, reqpool.NewPool(), nil, log)
	ch.OnExit = func(sn uint32) {
		log.Info("received EXIT, closing command channel", corelog.F("sn", sn))
		lp.PostTask(func() { ch.Close() })
	}
	if err := ch.Open(lp, nil); err != nil {
		return fmt.Errorf("antengine: open command channel: %w", err)
	}

	log.Info("worker ready")
	lp.Run()
	return nil
}
