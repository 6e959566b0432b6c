package supervisor_test

import (
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// workerFDEnv mirrors supervisor.go's childFDEnv; kept as a private constant here too
// since it is the contract between the supervisor and the process it execs, not an
// exported part of the package API.
const workerFDEnv = "ANTENGINE_WORKER_FD"

// TestMain lets this test binary double as the worker process supervisor.Start execs,
// the same "helper process" pattern the standard library's own os/exec tests use: a
// self-reexec under an env-var gate avoids building and shipping a second binary just
// for the test.
func TestMain(m *testing.M) {
	if fd := os.Getenv(workerFDEnv); fd != "" {
		runWorkerHelper(fd)
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func TestSupervisor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Process Supervisor Suite")
}
