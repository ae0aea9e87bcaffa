package main

import (
	"math"
	"sync"

	"github.com/jeandeaual/go-locale"
	"golang.org/x/text/message"
)

var (
	printer     *message.Printer
	printerOnce sync.Once
)

func localPrinter() *message.Printer {
	printerOnce.Do(func() {
		locales, err := locale.GetLocales()
		if err != nil || len(locales) == 0 {
			locales = []string{"en-US"}
		}
		printer = message.NewPrinter(message.MatchLanguage(locales...))
	})
	return printer
}

// formatFrequency renders an emulated clock rate with local digit grouping.
func formatFrequency(hz float64) string {
	if hz == 0 || math.IsInf(hz, 0) || math.IsNaN(hz) {
		return "paused"
	}
	return localPrinter().Sprintf("%.1f Hz", hz)
}

// formatSteps renders a step count with local digit grouping.
func formatSteps(n uint64) string {
	return localPrinter().Sprintf("%d", n)
}
