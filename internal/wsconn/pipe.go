package wsconn

import "sync"

type pipeLink struct {
	done      chan struct{}
	closeOnce sync.Once
}

func (l *pipeLink) close() {
	l.closeOnce.Do(func() { close(l.done) })
}

type pipeEnd struct {
	id   string
	in   chan []byte
	out  chan []byte
	link *pipeLink
}

// Pipe returns two connected in-memory ends. Closing either end closes both,
// like a socket. queue bounds each direction.
func Pipe(queue int) (Conn, Conn) {
	if queue <= 0 {
		queue = 64
	}
	link := &pipeLink{done: make(chan struct{})}
	ab := make(chan []byte, queue)
	ba := make(chan []byte, queue)
	a := &pipeEnd{id: NewID(), in: ba, out: ab, link: link}
	b := &pipeEnd{id: NewID(), in: ab, out: ba, link: link}
	return a, b
}

func (p *pipeEnd) ID() string { return p.id }

func (p *pipeEnd) Done() <-chan struct{} { return p.link.done }

func (p *pipeEnd) Send(data []byte) error {
	select {
	case <-p.link.done:
		return ErrClosed
	default:
	}
	select {
	case p.out <- data:
		return nil
	case <-p.link.done:
		return ErrClosed
	default:
		return ErrSendQueueFull
	}
}

func (p *pipeEnd) Receive() ([]byte, error) {
	select {
	case data := <-p.in:
		return data, nil
	case <-p.link.done:
		return nil, ErrClosed
	}
}

func (p *pipeEnd) Close() error {
	p.link.close()
	return nil
}
