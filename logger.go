package restify

import (
	"fmt"
	"log"
	"time"

	"github.com/fatih/color"
)

type Logger interface {
	LogMessage(msg string)
	LogStageStart(print string, in any)
	LogStageComplete(success bool, elapsed time.Duration, print string, out any)
	LogStageError(e *StageError)
}

type DefaultLogger struct{}

func (l DefaultLogger) LogMessage(msg string) {
	log.Print(msg)
}

func (l DefaultLogger) LogStageStart(print string, in any) {
	// Ignore
}

func (l DefaultLogger) LogStageComplete(success bool, elapsed time.Duration, print string, out any) {

	// Column 1: Success or failure
	lbl := color.New(color.FgWhite).Add(color.BgGreen).Sprintf(" OK  ")
	if !success {
		lbl = color.New(color.FgWhite).Add(color.BgRed).Sprintf(" ERR ")
	}

	// Column 2: Time elapsed
	tclr := color.New(color.FgWhite, color.Faint)
	if elapsed > time.Millisecond {
		tclr = color.New(color.FgWhite).Add(color.BgCyan)
	}
	took := tclr.Sprintf("%13v", elapsed)

	// Column 3: Stage print

	log.Print("|" + lbl + "| " + took + " | " + print)
}

func (l DefaultLogger) LogStageError(e *StageError) {
	log.Printf("")
	log.Printf("Error %d: %s", e.Code, errorText(e))
	log.Printf("")
}

func errorText(e *StageError) string {
	if h, ok := e.Obj.(H); ok {
		return fmt.Sprint(h["error"])
	}
	return fmt.Sprint(e.Obj)
}

// MultiLogger sends every event to each of its loggers.
type MultiLogger []Logger

func (m MultiLogger) LogMessage(msg string) {
	for _, l := range m {
		l.LogMessage(msg)
	}
}

func (m MultiLogger) LogStageStart(print string, in any) {
	for _, l := range m {
		l.LogStageStart(print, in)
	}
}

func (m MultiLogger) LogStageComplete(success bool, elapsed time.Duration, print string, out any) {
	for _, l := range m {
		l.LogStageComplete(success, elapsed, print, out)
	}
}

func (m MultiLogger) LogStageError(e *StageError) {
	for _, l := range m {
		l.LogStageError(e)
	}
}
