package chat

import (
	"sync"
	"testing"
)

func TestPushAfterCloseIsDropped(t *testing.T) {
	conn := testConn("c1", "")
	conn.CloseConn()

	// Both must be no-ops on a closed connection, not a panic on a
	// closed channel.
	conn.Push([]byte(`{"event":"x"}`))
	conn.PushEvent(EventError, map[string]string{"message": "late frame"})
	conn.CloseConn()
}

func TestConcurrentPushAndClose(t *testing.T) {
	conn := testConn("c1", "")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				conn.Push([]byte(`{}`))
			}
		}()
	}
	conn.CloseConn()
	wg.Wait()
}
