package loop_test

import (
	"sync/atomic"
	"time"

	"github.com/antmuse/AntEngine-sub001/internal/handle"
	"github.com/antmuse/AntEngine-sub001/internal/poller"
	"github.com/antmuse/AntEngine-sub001/loop"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func newTestLoop() *loop.Loop {
	p, err := poller.New(poller.Config{})
	Expect(err).ToNot(HaveOccurred())
	l, err := loop.New(p, nil)
	Expect(err).ToNot(HaveOccurred())
	return l
}

var _ = Describe("Reactor loop", func() {
	var l *loop.Loop

	BeforeEach(func() {
		l = newTestLoop()
	})

	Context("PostTask", func() {
		// Scenario 3 (spec §8): tasks posted from any goroutine run on the loop thread's
		// next drain, in enqueue order.
		It("runs posted tasks on the next Step, in order", func() {
			var order []int
			l.PostTask(func() { order = append(order, 1) })
			l.PostTask(func() { order = append(order, 2) })
			l.PostTask(func() { order = append(order, 3) })

			l.Step()

			Expect(order).To(Equal([]int{1, 2, 3}))
		})

		It("tolerates concurrent PostTask calls from other goroutines", func() {
			var counter atomic.Int32
			const n = 1000

			done := make(chan struct{})
			go func() {
				defer close(done)
				for i := 0; i < n; i++ {
					l.PostTask(func() { counter.Add(1) })
				}
			}()
			Eventually(done, time.Second).Should(BeClosed())

			Eventually(func() int32 {
				l.Step()
				return counter.Load()
			}, 2*time.Second, time.Millisecond).Should(Equal(int32(n)))
		})
	})

	Context("Timer cadence", func() {
		// Law (spec §8): a timer with repeat=k fires exactly k+1 times, then closes.
		It("fires repeat+1 times and then closes", func() {
			var fires atomic.Int32
			var closed atomic.Bool

			cb := func(t *handle.TimedHandle) int {
				fires.Add(1)
				return 0
			}
			const gap = int64(5 * time.Millisecond)
			th := handle.NewTimer(l.NextHandleID(), gap, gap, 2, cb)
			th.Open(l, func(h *handle.Handle, err error) { closed.Store(true) })
			l.OpenTimer(th, time.Now().UnixNano())

			Eventually(func() bool {
				l.Step()
				return closed.Load()
			}, 2*time.Second, time.Millisecond).Should(BeTrue())

			Expect(fires.Load()).To(Equal(int32(3)))
		})
	})

	Context("Run", func() {
		// Step 8 (spec §4.6): with no open handles and nothing in flight, the loop exits
		// on its very first iteration, after that iteration's Wait (up to 1000ms with no
		// timer due).
		It("returns after its first iteration when there is nothing to do", func() {
			done := make(chan struct{})
			go func() {
				l.Run()
				close(done)
			}()
			Eventually(done, 2*time.Second).Should(BeClosed())
		})

		// End-to-end scenario 4 (spec §8): once the last open handle closes, Run exits.
		It("keeps running while a handle is open, then exits once it closes", func() {
			var fires atomic.Int32
			cb := func(t *handle.TimedHandle) int {
				fires.Add(1)
				return 1 // request close on first fire
			}
			th := handle.NewTimer(l.NextHandleID(), int64(5*time.Millisecond), 0, 0, cb)
			th.Open(l, nil)
			l.OpenTimer(th, time.Now().UnixNano())

			done := make(chan struct{})
			go func() {
				l.Run()
				close(done)
			}()

			Eventually(done, 2*time.Second).Should(BeClosed())
			Expect(fires.Load()).To(Equal(int32(1)))
			Expect(l.HandleCount()).To(Equal(0))
		})
	})
})
