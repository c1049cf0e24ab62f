package util

func mod(a int, b int) int {
	return ((a % b) + b) % b
}

// ring-buffer queue. Fixed size unless Grow is called.
type Queue[T any] struct {
	data	[]T
	head	int // next slot to write to
	cnt 	int
}

func CreateQueue[T any](size int) Queue[T] {
	return Queue[T] {
		head: 	0,
		cnt: 	0,
		data: 	make([]T, size),
	}
}

func (q *Queue[T]) Cnt() int {
	return q.cnt
}

func (q *Queue[T]) Cap() int {
	return len(q.data)
}

// will panic if out of space.
func (q *Queue[T]) Push(val T) {
	if q.cnt == len(q.data) { panic("queue overflow") }
	q.data[q.head] = val
	q.head = mod((q.head + 1), len(q.data))
	q.cnt++
}

func (q *Queue[T]) Pop() T {
	if q.cnt == 0 { panic("queue underflow") }
	i := mod((q.head - q.cnt), len(q.data))
	q.cnt--
	var zero T
	val := q.data[i]
	q.data[i] = zero
	return val
}

// Adds n slots of capacity, keeping the current contents in order.
func (q *Queue[T]) Grow(n int) {
	data := make([]T, len(q.data)+n)
	for i := range q.cnt {
		data[i] = q.data[mod(q.head-q.cnt+i, len(q.data))]
	}
	q.data = data
	q.head = mod(q.cnt, len(data))
}


// TicketQueue combines a contiguous array and a queue of numbered "tickets" which
// correspond to slots in the contiguous array. In other words, a shared pool of items
// handed out by number. Not safe for concurrent use, callers hold their own lock.
type TicketQueue[T any] struct {
	queue		Queue[int]
	data		[]T
}

func CreateTicketQueue[T any](size int) TicketQueue[T] {
	queue := CreateQueue[int](size)
	for i := range size {
		queue.Push(i)
	}
	data := make([]T, size)

	return TicketQueue[T]{
		queue: queue,
		data: data,
	}
}

// Tickets not currently held
func (tq *TicketQueue[T]) Free() int {
	return tq.queue.Cnt()
}

func (tq *TicketQueue[T]) Len() int {
	return len(tq.data)
}

// This acquires a ticket and sets the slot to the passed value. Panics if none are free.
func (tq *TicketQueue[T]) Acq(val T) int {
	ticket := tq.queue.Pop()
	tq.data[ticket] = val
	return ticket
}

// Returns the ticket and hands back whatever was stored under it.
func (tq *TicketQueue[T]) Rel(ticket int) T {
	var zero T
	val := tq.data[ticket]
	tq.data[ticket] = zero
	tq.queue.Push(ticket)
	return val
}

func (tq *TicketQueue[T]) Get(ticket int) T {
	return tq.data[ticket]
}

// Adds n new tickets numbered after the existing ones.
func (tq *TicketQueue[T]) Grow(n int) {
	first := len(tq.data)
	tq.data = append(tq.data, make([]T, n)...)
	tq.queue.Grow(n)
	for i := range n {
		tq.queue.Push(first + i)
	}
}
