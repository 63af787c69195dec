package cprint

import (
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

var (
	// mu is used to synchronize writes from multiple goroutines.
	mu sync.Mutex
	// DisableOutput disables all output.
	DisableOutput bool
)

func conditionalPrintf(fn func(string, ...interface{}), format string, a ...interface{}) {
	if DisableOutput {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fn(format, a...)
}

func conditionalPrintln(fn func(...interface{}), a ...interface{}) {
	if DisableOutput {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fn(a...)
}

func conditionalFprintln(fn func(io.Writer, ...interface{}), w io.Writer, a ...interface{}) {
	if DisableOutput {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fn(w, a...)
}

var (
	stepPrintf    = color.New(color.FgCyan).PrintfFunc()
	successPrintf = color.New(color.FgGreen).PrintfFunc()
	retryPrintf   = color.New(color.FgYellow).PrintfFunc()

	// StepPrintf announces a bootstrap step, in cyan.
	StepPrintf = func(format string, a ...interface{}) {
		conditionalPrintf(stepPrintf, format, a...)
	}

	// SuccessPrintf reports a completed step, in green.
	SuccessPrintf = func(format string, a ...interface{}) {
		conditionalPrintf(successPrintf, format, a...)
	}

	// RetryPrintf reports a failed attempt that will be retried, in yellow.
	RetryPrintf = func(format string, a ...interface{}) {
		conditionalPrintf(retryPrintf, format, a...)
	}

	successPrintln  = color.New(color.FgGreen).PrintlnFunc()
	warnPrintln     = color.New(color.FgYellow).PrintlnFunc()
	failureFprintln = color.New(color.FgRed).FprintlnFunc()

	// SuccessPrintln is fmt.Println with green as foreground color.
	SuccessPrintln = func(a ...interface{}) {
		conditionalPrintln(successPrintln, a...)
	}

	// WarnPrintln is fmt.Println with yellow as foreground color.
	WarnPrintln = func(a ...interface{}) {
		conditionalPrintln(warnPrintln, a...)
	}

	// FailurePrintlnStdErr is fmt.Println with red as foreground color.
	// It prints to stderr, instead of stdout
	FailurePrintlnStdErr = func(a ...interface{}) {
		conditionalFprintln(failureFprintln, os.Stderr, a...)
	}
)
