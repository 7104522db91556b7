package anydiffusion

import (
	"fmt"
	"io"
	"os"
)

// A LossLogger receives the mean loss of every batch.
type LossLogger interface {
	LogLoss(mean float64)
}

// LossPrinter is a LossLogger which prints each mean loss
// on its own line.
type LossPrinter struct {
	// Writer to which losses are printed.
	// If nil, os.Stdout is used.
	Writer io.Writer

	// Prefix, if non-empty, is printed before each loss.
	Prefix string
}

// LogLoss prints the mean loss.
func (l *LossPrinter) LogLoss(mean float64) {
	w := l.Writer
	if w == nil {
		w = os.Stdout
	}
	if l.Prefix == "" {
		fmt.Fprintln(w, mean)
	} else {
		fmt.Fprintln(w, l.Prefix, mean)
	}
}
