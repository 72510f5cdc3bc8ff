package monitoring

import "testing"

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("hello")
	if !called {
		t.Error("custom logger was not called")
	}

	// nil installs a no-op, not a nil func.
	SetLogger(nil)
	if Logf == nil {
		t.Fatal("Logf must never be nil")
	}
	Logf("dropped")
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should default to log.Printf")
	}
}
