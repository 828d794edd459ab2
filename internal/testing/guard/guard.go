package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("FLEETGATE_TEST_MODE") == "" {
			_ = os.Setenv("FLEETGATE_TEST_MODE", "1")
		}
	})
}
