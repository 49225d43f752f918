package watch

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(0, nil)
	sink := &fakeSink{}
	p := &fakePlayer{duration: 100}

	s := Open(context.Background(), Options{LessonID: uuid.New(), Sink: sink})
	s.OnReady(p)

	owner := uuid.NewString()
	id := m.Add(s, owner)
	if _, ok := m.Get(id, owner); !ok {
		t.Fatal("session not found after add")
	}
	if _, ok := m.Get(uuid.New(), owner); ok {
		t.Fatal("unknown id should not resolve")
	}
	if _, ok := m.Get(id, uuid.NewString()); ok {
		t.Fatal("foreign user must not resolve the session")
	}
	if m.Close(id, uuid.NewString()) {
		t.Fatal("foreign user must not close the session")
	}

	if !m.Close(id, owner) {
		t.Fatal("close should report true for live session")
	}
	if m.Close(id, owner) {
		t.Fatal("second close should report false")
	}
	if !p.released {
		t.Fatal("manager close must run session teardown")
	}
}
