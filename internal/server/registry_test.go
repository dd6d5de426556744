package server

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func sequence(ids ...string) func() string {
	var mu sync.Mutex
	i := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[i%len(ids)]
		i++
		return id
	}
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	id, err := r.Register(&Session{}, 0, nil, sequence("a"))
	if err != nil || id != "a" {
		t.Fatalf("Register = %q, %v; want a, nil", id, err)
	}
	if _, ok := r.Get("a"); !ok {
		t.Fatal("registered session not found")
	}
	if r.Count() != 1 {
		t.Fatalf("Count = %d, want 1", r.Count())
	}
	if !r.Remove("a") {
		t.Fatal("Remove reported missing id")
	}
	if r.Remove("a") {
		t.Fatal("second Remove reported present")
	}
}

func TestRegistryRegeneratesOnCollision(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register(&Session{}, 0, nil, sequence("a")); err != nil {
		t.Fatal(err)
	}
	taken := func(id string) bool { return id == "b" }

	id, err := r.Register(&Session{}, 0, taken, sequence("a", "", "b", "c"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if id != "c" {
		t.Fatalf("id = %q, want c", id)
	}
}

func TestRegistryGivesUpAfterRepeatedCollisions(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Register(&Session{}, 0, nil, sequence("same")); err != nil {
		t.Fatal(err)
	}
	calls := 0
	gen := func() string {
		calls++
		return "same"
	}
	if _, err := r.Register(&Session{}, 0, nil, gen); !errors.Is(err, ErrIDExhausted) {
		t.Fatalf("err = %v, want ErrIDExhausted", err)
	}
	if calls != maxIDAttempts {
		t.Fatalf("generator called %d times, want %d", calls, maxIDAttempts)
	}
	if r.Count() != 1 {
		t.Fatalf("Count = %d, want 1", r.Count())
	}
}

func TestRegistryCapacityIsAtomic(t *testing.T) {
	const maxPlayers, contenders = 5, 50
	r := NewRegistry()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Register(&Session{}, maxPlayers, nil, sequence(fmt.Sprintf("p%d", i)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ErrCapacityExceeded):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if accepted != maxPlayers || rejected != contenders-maxPlayers {
		t.Fatalf("accepted=%d rejected=%d, want %d/%d", accepted, rejected, maxPlayers, contenders-maxPlayers)
	}
	if got := len(r.IDs()); got != maxPlayers {
		t.Fatalf("IDs has %d entries, want %d", got, maxPlayers)
	}
}
