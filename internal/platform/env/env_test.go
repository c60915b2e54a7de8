package env

import (
	"testing"
	"time"
)

func TestString(t *testing.T) {
	t.Setenv("MB_TEST_STRING", "value")
	if got := String("MB_TEST_STRING", "def"); got != "value" {
		t.Fatalf("String()=%q, want value", got)
	}
	if got := String("MB_TEST_STRING_MISSING", "def"); got != "def" {
		t.Fatalf("String() default=%q, want def", got)
	}
}

func TestDuration(t *testing.T) {
	t.Setenv("MB_TEST_DURATION", "15s")
	d, err := Duration("MB_TEST_DURATION", time.Second)
	if err != nil {
		t.Fatalf("Duration() err=%v", err)
	}
	if d != 15*time.Second {
		t.Fatalf("Duration()=%v, want 15s", d)
	}

	t.Setenv("MB_TEST_DURATION", "bogus")
	if _, err := Duration("MB_TEST_DURATION", time.Second); err == nil {
		t.Fatalf("expected error for bogus duration")
	}
}

func TestBool(t *testing.T) {
	t.Setenv("MB_TEST_BOOL", "true")
	b, err := Bool("MB_TEST_BOOL", false)
	if err != nil {
		t.Fatalf("Bool() err=%v", err)
	}
	if !b {
		t.Fatalf("Bool()=false, want true")
	}

	t.Setenv("MB_TEST_BOOL", "nope")
	if _, err := Bool("MB_TEST_BOOL", false); err == nil {
		t.Fatalf("expected error for bogus bool")
	}
}

func TestInt(t *testing.T) {
	t.Setenv("MB_TEST_INT", "42")
	i, err := Int("MB_TEST_INT", 7)
	if err != nil {
		t.Fatalf("Int() err=%v", err)
	}
	if i != 42 {
		t.Fatalf("Int()=%d, want 42", i)
	}
}
