// Semaphore bounds how many Submit calls the admission façade services
// concurrently, so the interactive console and the batch generator
// don't both race the ready queue without limit.
//
// Adapted from the teacher's utils/semaforo.go (Semaforo), which gated
// the kernel's degree of multiprogramming before dispatching a process
// to memory.
package admission

// Semaphore is a simple counting semaphore built on a buffered channel.
type Semaphore struct {
	tokens chan struct{}
}

// NewSemaphore builds a semaphore that admits up to n concurrent
// holders.
func NewSemaphore(n int) *Semaphore {
	if n < 1 {
		n = 1
	}
	return &Semaphore{tokens: make(chan struct{}, n)}
}

// Acquire blocks until a slot is available.
func (s *Semaphore) Acquire() { s.tokens <- struct{}{} }

// Release frees a slot.
func (s *Semaphore) Release() { <-s.tokens }
