package convnet

// notifier dispatches observer calls on their own goroutine. At most one notification is in flight:
// the one-slot semaphore is taken by the dispatching goroutine and released when the observer returns.
type notifier struct {
	obs Observer
	sem chan struct{}
}

func newNotifier(obs Observer) *notifier {
	return &notifier{obs: obs, sem: make(chan struct{}, 1)}
}

// tryNotify runs f in the background unless a notification is still in flight, in which case f is
// dropped. It reports whether f was dispatched.
func (n *notifier) tryNotify(f func(Observer)) bool {
	if n.obs == nil {
		return false
	}
	select {
	case n.sem <- struct{}{}:
	default:
		return false
	}
	go func() {
		defer func() { <-n.sem }()
		f(n.obs)
	}()
	return true
}

// wait blocks until no notification is in flight.
func (n *notifier) wait() {
	n.sem <- struct{}{}
	<-n.sem
}

// finish waits for the in-flight notification and then calls AllDone on the calling goroutine.
func (n *notifier) finish(totalEpochs int, finalErr float32) {
	if n.obs == nil {
		return
	}
	n.sem <- struct{}{}
	defer func() { <-n.sem }()
	n.obs.AllDone(totalEpochs, finalErr)
}
