package simulator

import (
	"testing"

	"go.uber.org/goleak"
)

// The kernel is single-threaded; nothing it does may leave a goroutine behind.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
