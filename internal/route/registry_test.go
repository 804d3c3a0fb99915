package route

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/danmuck/pomelogate/internal/testutil/testlog"
)

func echo(s Session, body map[string]any) (map[string]any, error) {
	return body, nil
}

func TestRegisterAndLookup(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	if err := r.Register("connector.entryHandler.hello", echo); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok := r.Lookup("connector.entryHandler.hello"); !ok {
		t.Fatalf("expected registered route")
	}
	if _, ok := r.Lookup("connector.entryhandler.hello"); ok {
		t.Fatalf("lookup must be case-sensitive")
	}
	if _, ok := r.Lookup("connector.entryHandler"); ok {
		t.Fatalf("lookup must be exact-match")
	}
}

func TestRegisterRejectsInvalid(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	if err := r.Register("  ", echo); !errors.Is(err, ErrEmptyRoute) {
		t.Fatalf("expected ErrEmptyRoute, got %v", err)
	}
	if err := r.Register("a.b", nil); !errors.Is(err, ErrNilHandler) {
		t.Fatalf("expected ErrNilHandler, got %v", err)
	}
	if err := r.Register(strings.Repeat("x", 256), echo); !errors.Is(err, ErrRouteLength) {
		t.Fatalf("expected ErrRouteLength, got %v", err)
	}
}

func TestRoutesSorted(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	r.MustRegister("z.handler.c", echo)
	r.MustRegister("a.handler.b", echo)
	r.MustRegister("m.handler.a", echo)
	want := []string{"a.handler.b", "m.handler.a", "z.handler.c"}
	if got := r.Routes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("routes=%v want=%v", got, want)
	}
}

func TestConcurrentLookupDuringRegistration(t *testing.T) {
	testlog.Start(t)
	r := NewRegistry()
	r.MustRegister("base.route", echo)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if _, ok := r.Lookup("base.route"); !ok {
					t.Errorf("base route vanished")
					return
				}
			}
		}()
	}
	for i := 0; i < 100; i++ {
		r.MustRegister(fmt.Sprintf("late.route.%d", i), echo)
	}
	wg.Wait()
	if len(r.Routes()) != 101 {
		t.Fatalf("expected 101 routes, got %d", len(r.Routes()))
	}
}
