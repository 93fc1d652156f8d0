package runtime

import (
	"fmt"
	"io"
	"sync"
)

// Presenter shows fatal errors to the user.
type Presenter interface {
	Fatal(err error)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(err error)

func (f PresenterFunc) Fatal(err error) { f(err) }

// WriterPresenter prints fatal errors as one line each.
type WriterPresenter struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriterPresenter creates a presenter writing to w.
func NewWriterPresenter(w io.Writer) *WriterPresenter {
	return &WriterPresenter{w: w}
}

func (p *WriterPresenter) Fatal(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "Error %v\n", err)
}
