package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("TATKAL_TEST_MODE", "1")
		if os.Getenv("APP_TIMEZONE") == "" {
			_ = os.Setenv("APP_TIMEZONE", "Asia/Kolkata")
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
