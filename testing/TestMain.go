package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("CHOREBOARD_TEST_MODE", "1")
		if os.Getenv("PROOF_SECRET") == "" {
			_ = os.Setenv("PROOF_SECRET", "test-proof-secret")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
