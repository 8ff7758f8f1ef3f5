package bufpool

import "testing"

func TestGetReturnsCorrectSize(t *testing.T) {
	p := New(64 * 1024)
	b := p.Get()
	if len(b) != 64*1024 {
		t.Fatalf("got slice of len %d, want %d", len(b), 64*1024)
	}
}

func TestPutZeroesBeforeReuse(t *testing.T) {
	p := New(8)
	b := p.Get()
	copy(b, []byte("secrets!"))
	p.Put(b)

	b2 := p.Get()
	for i, c := range b2 {
		if c != 0 {
			t.Fatalf("byte %d not zeroed: %v", i, b2)
		}
	}
}

func TestSize(t *testing.T) {
	p := New(4096)
	if p.Size() != 4096 {
		t.Fatalf("Size() = %d, want 4096", p.Size())
	}
}
