package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("AUTHZ_TEST_MODE", "1")
		if os.Getenv("GRANT_BACKEND") == "" {
			_ = os.Setenv("GRANT_BACKEND", "memory")
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
