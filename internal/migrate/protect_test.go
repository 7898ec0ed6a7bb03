package migrate

import (
	"errors"
	"strings"
	"testing"
)

func TestProtectAttachesStackToErrors(t *testing.T) {
	err := protect(func() error { return ErrMalformedRun })
	if !errors.Is(err, ErrMalformedRun) {
		t.Fatalf("err=%v, want it to wrap ErrMalformedRun", err)
	}
	if err.Error() != ErrMalformedRun.Error() {
		t.Fatalf("Error()=%q changed by the stack", err.Error())
	}
	report := errorReport(err)
	if !strings.HasPrefix(report, ErrMalformedRun.Error()+"\n") || !strings.Contains(report, "goroutine") {
		t.Fatalf("report=%q, want message then stack", report)
	}
}

func TestProtectRecoversPanics(t *testing.T) {
	err := protect(func() error { panic("boom") })
	var p *PanicError
	if !errors.As(err, &p) {
		t.Fatalf("err=%T, want *PanicError", err)
	}
	report := errorReport(err)
	if !strings.HasPrefix(report, "panic: boom\n") || !strings.Contains(report, "goroutine") {
		t.Fatalf("report=%q", report)
	}

	// A panic that crosses a second boundary keeps its own stack.
	outer := protect(func() error { return err })
	if got := errorReport(outer); got != report {
		t.Fatalf("outer report differs:\n%s\nwant\n%s", got, report)
	}
}

func TestProtectPassesSuccess(t *testing.T) {
	if err := protect(func() error { return nil }); err != nil {
		t.Fatalf("err=%v", err)
	}
	if got := errorReport(errors.New("plain")); got != "plain" {
		t.Fatalf("report=%q", got)
	}
}
