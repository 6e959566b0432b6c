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

package supervisor

import (
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/antmuse/AntEngine-sub001/cmdchannel"
	"github.com/antmuse/AntEngine-sub001/internal/netutil"
)

// process is one worker's supervisor-side bookkeeping (spec §4.9's "process descriptor"):
// the exec'd OS process, the supervisor-held end of its command channel, and enough
// state to decide whether an unexpected exit warrants a respawn.
type process struct {
	id        uuid.UUID
	cmd       *exec.Cmd
	sock      *netutil.Socket
	channel   *cmdchannel.Channel
	startedAt time.Time

	exited chan struct{} // closed once cmd.Wait returns
	waitErr error

	exitAcked bool // EXIT_RESP observed before the OS process actually exited
}

// alive reports whether the process has not yet been observed to exit.
func (p *process) alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}
