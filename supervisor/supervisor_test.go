package supervisor_test

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/antmuse/AntEngine-sub001/cmdchannel"
	"github.com/antmuse/AntEngine-sub001/internal/netutil"
	"github.com/antmuse/AntEngine-sub001/internal/poller"
	"github.com/antmuse/AntEngine-sub001/internal/reqpool"
	"github.com/antmuse/AntEngine-sub001/loop"
	"github.com/antmuse/AntEngine-sub001/supervisor"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// runWorkerHelper is the minimal worker side of the command channel (spec §4.9): it
// wraps the inherited fd, opens a cmdchannel on its own loop, and runs until EXIT closes
// the channel's handle, at which point the loop's handle count reaches zero and Run
// returns (spec §4.6 step 8).
func runWorkerHelper(fdStr string) {
	fd, err := strconv.Atoi(fdStr)
	if err != nil {
		os.Exit(1)
	}
	sock := &netutil.Socket{FD: fd, Type: netutil.SockStream, Family: netutil.FamilyUnix}

	p, err := poller.New(poller.Config{})
	if err != nil {
		os.Exit(1)
	}
	lp, err := loop.New(p, nil)
	if err != nil {
		os.Exit(1)
	}

	ch := cmdchannel.New(sock, reqpool.NewPool(), nil, nil)
	ch.OnExit = func(sn uint32) {
		lp.PostTask(func() { ch.Close() })
	}
	if err := ch.Open(lp, nil); err != nil {
		os.Exit(1)
	}

	lp.Run()
}

var _ = Describe("Supervisor", func() {
	// Scenario 4 (spec §8): supervisor forks workers; broadcasting EXIT drives every
	// worker's loop to a clean exit within one timer tick's notice.
	It("starts the configured worker count and shuts them all down cleanly", func() {
		exe, err := os.Executable()
		Expect(err).ToNot(HaveOccurred())

		sv, err := supervisor.New(supervisor.Options{
			Count:      2,
			BinaryPath: exe,
		})
		Expect(err).ToNot(HaveOccurred())

		startCtx, cancelStart := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelStart()
		Expect(sv.Start(startCtx)).To(Succeed())

		Eventually(sv.Alive, 2*time.Second, 10*time.Millisecond).Should(Equal(2))

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		Expect(sv.Shutdown(shutdownCtx)).To(Succeed())

		Expect(sv.Alive()).To(Equal(0))
	})
})
