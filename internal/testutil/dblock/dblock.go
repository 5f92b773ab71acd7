package dblock

import (
	"net"
	"os"
	"sync"
	"time"
)

const defaultLockAddr = "127.0.0.1:45433"

// Acquire blocks until this test binary holds the shared database lock. The
// lock is a listening TCP port, so it is released when the process exits even
// if the returned func is never called.
func Acquire() func() {
	addr := os.Getenv("ANCHOR_DBLOCK_ADDR")
	if addr == "" {
		addr = defaultLockAddr
	}
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			var once sync.Once
			return func() {
				once.Do(func() { _ = ln.Close() })
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
}
