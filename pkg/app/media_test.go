package app

import "testing"

func TestMediaRegistry(t *testing.T) {
	t.Parallel()

	r := NewMediaRegistry()
	h1 := r.Register([]byte{1}, "image/png")
	h2 := r.Register([]byte{2, 3}, "video/mp4")
	if h1 == h2 {
		t.Fatal("handles must be unique")
	}

	got, ok := r.Resolve(h2)
	if !ok || got.MIMEType != "video/mp4" || len(got.Data) != 2 {
		t.Errorf("Resolve() = %+v, %v", got, ok)
	}

	r.Release(h1)
	r.Release(h1)
	if _, ok := r.Resolve(h1); ok {
		t.Error("released handle still resolves")
	}
	r.Release("unknown")
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	r.ReleaseAll()
	if r.Len() != 0 {
		t.Errorf("Len() after ReleaseAll = %d", r.Len())
	}
}
