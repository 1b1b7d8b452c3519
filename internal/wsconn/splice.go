package wsconn

import (
	"errors"
	"sync"
)

// Splice pumps frames in both directions until either side fails, then
// closes both. It blocks until both pumps have returned.
func Splice(a, b Conn) {
	var wg sync.WaitGroup
	pump := func(from, to Conn) {
		defer wg.Done()
		defer from.Close()
		defer to.Close()
		for {
			data, err := from.Receive()
			if err != nil {
				return
			}
			if err := to.Send(data); errors.Is(err, ErrClosed) {
				return
			}
		}
	}
	wg.Add(2)
	go pump(a, b)
	go pump(b, a)
	wg.Wait()
}
