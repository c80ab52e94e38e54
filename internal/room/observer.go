package room

// Observer receives counters from a Service. Implementations must be safe
// for concurrent use.
type Observer interface {
	Transition(op string, err error)
	Buzz(err error)
	Retry(op string)
	TickerStarted()
	TickerStopped()
}

type nopObserver struct{}

func (nopObserver) Transition(string, error) {}
func (nopObserver) Buzz(error)               {}
func (nopObserver) Retry(string)             {}
func (nopObserver) TickerStarted()           {}
func (nopObserver) TickerStopped()           {}
