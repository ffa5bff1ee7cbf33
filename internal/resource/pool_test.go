package resource

import (
	"errors"
	"math/rand"
	"testing"

	"fuzzexp/internal/types"
)

func TestPoolAcquireRelease(t *testing.T) {
	p := NewPool("cpu", 3)

	for want := range 3 {
		id, err := p.Acquire()
		if err != nil {
			t.Fatal(err)
		}
		if id != want {
			t.Errorf("acquired %d, want %d", id, want)
		}
	}
	if _, err := p.Acquire(); !errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("expected ErrResourceExhausted, got %v", err)
	}

	if err := p.Release(1); err != nil {
		t.Fatal(err)
	}
	if p.Available() != 1 || p.InUse() != 2 {
		t.Errorf("available=%d in use=%d", p.Available(), p.InUse())
	}
	if id, _ := p.Acquire(); id != 1 {
		t.Errorf("re-acquired %d, want 1", id)
	}
	if err := p.Check(); err != nil {
		t.Error(err)
	}
}

func TestPoolReleaseErrors(t *testing.T) {
	p := NewPool("gpu", 2)
	id, _ := p.Acquire()
	if err := p.Release(id); err != nil {
		t.Fatal(err)
	}
	if err := p.Release(id); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("double release: expected ErrInvariantViolation, got %v", err)
	}
	if err := p.Release(5); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("foreign id: expected ErrInvariantViolation, got %v", err)
	}
	if err := p.Check(); err != nil {
		t.Errorf("failed releases changed the pool: %v", err)
	}
}

func TestPoolRandomInterleaving(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p := NewPool("cpu", 8)
	held := make([]int, 0, 8)

	for range 2000 {
		if len(held) > 0 && (p.Available() == 0 || rng.Intn(2) == 0) {
			i := rng.Intn(len(held))
			if err := p.Release(held[i]); err != nil {
				t.Fatal(err)
			}
			held = append(held[:i], held[i+1:]...)
		} else {
			id, err := p.Acquire()
			if err != nil {
				t.Fatal(err)
			}
			for _, h := range held {
				if h == id {
					t.Fatalf("id %d handed out twice", id)
				}
			}
			held = append(held, id)
		}
		if err := p.Check(); err != nil {
			t.Fatal(err)
		}
		if p.InUse() != len(held) {
			t.Fatalf("in use %d, held %d", p.InUse(), len(held))
		}
	}
}

func TestPoolsAdmission(t *testing.T) {
	cpuJob := types.Job{Target: "t", Fuzzer: types.AFL}
	gpuJob := types.Job{Target: "t", Fuzzer: types.NEUZZ}

	t.Run("cpu only", func(t *testing.T) {
		p := NewPools(2, 0, false)
		a, err := p.Assign(gpuJob)
		if err != nil {
			t.Fatal(err)
		}
		if a.HasGPU() {
			t.Errorf("GPU assigned without use_gpu")
		}
		if !p.CanAdmit() {
			t.Errorf("one core left, admission refused")
		}
		if _, err := p.Assign(cpuJob); err != nil {
			t.Fatal(err)
		}
		if p.CanAdmit() {
			t.Errorf("no core left, admission allowed")
		}
	})

	t.Run("gpu mode", func(t *testing.T) {
		p := NewPools(4, 1, true)
		a, err := p.Assign(gpuJob)
		if err != nil {
			t.Fatal(err)
		}
		if !a.HasGPU() || *a.GPU != 0 {
			t.Fatalf("expected GPU 0, got %+v", a)
		}
		// the GPU gate applies to every job in GPU mode
		if p.CanAdmit() {
			t.Errorf("admission allowed while the only GPU is held")
		}
		if err := p.Free(a); err != nil {
			t.Fatal(err)
		}
		if !p.CanAdmit() {
			t.Errorf("admission refused after free")
		}

		b, err := p.Assign(cpuJob)
		if err != nil {
			t.Fatal(err)
		}
		if b.HasGPU() {
			t.Errorf("non eligible fuzzer got a GPU")
		}
		if err := p.Check(); err != nil {
			t.Error(err)
		}
	})

	t.Run("rollback", func(t *testing.T) {
		p := NewPools(2, 1, true)
		if _, err := p.Assign(gpuJob); err != nil {
			t.Fatal(err)
		}
		if _, err := p.Assign(gpuJob); !errors.Is(err, ErrResourceExhausted) {
			t.Fatalf("expected ErrResourceExhausted, got %v", err)
		}
		if p.CPU.InUse() != 1 {
			t.Errorf("core leaked on failed assignment: %v", p.CPU.Held())
		}
		if err := p.Check(); err != nil {
			t.Error(err)
		}
	})
}

func TestPoolsDoubleFree(t *testing.T) {
	p := NewPools(1, 1, true)
	a, err := p.Assign(types.Job{Fuzzer: types.PREFUZZ})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Free(a); err != nil {
		t.Fatal(err)
	}
	if err := p.Free(a); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("expected ErrInvariantViolation, got %v", err)
	}
}
