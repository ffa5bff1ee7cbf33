package resource

import (
	"errors"
	"fmt"
	"slices"

	"fuzzexp/internal/types"
)

var (
	ErrResourceExhausted  = errors.New("resource pool exhausted")
	ErrInvariantViolation = errors.New("resource invariant violated")
)

// Pool is a bounded set of exclusive-use unit ids 0..capacity-1.
//
// A Pool is owned by the scheduler loop and is not safe for concurrent use.
type Pool struct {
	name      string
	capacity  int
	available map[int]struct{}
	held      map[int]struct{}
}

func NewPool(name string, capacity int) *Pool {
	if capacity < 0 {
		capacity = 0
	}
	p := &Pool{
		name:      name,
		capacity:  capacity,
		available: make(map[int]struct{}, capacity),
		held:      make(map[int]struct{}, capacity),
	}
	for id := range capacity {
		p.available[id] = struct{}{}
	}
	return p
}

func (p *Pool) Name() string   { return p.name }
func (p *Pool) Capacity() int  { return p.capacity }
func (p *Pool) Available() int { return len(p.available) }
func (p *Pool) InUse() int     { return len(p.held) }

// Acquire removes and returns the lowest available id.
// Callers are expected to check Available first.
func (p *Pool) Acquire() (int, error) {
	if len(p.available) == 0 {
		return -1, fmt.Errorf("%w: %s", ErrResourceExhausted, p.name)
	}
	id := slices.Min(p.availableIDs())
	delete(p.available, id)
	p.held[id] = struct{}{}
	return id, nil
}

// Release returns id to the pool. Releasing an id that is not held is an invariant violation.
func (p *Pool) Release(id int) error {
	if _, ok := p.held[id]; !ok {
		if id < 0 || id >= p.capacity {
			return fmt.Errorf("%w: %s id %d out of range [0, %d)", ErrInvariantViolation, p.name, id, p.capacity)
		}
		return fmt.Errorf("%w: %s id %d released twice", ErrInvariantViolation, p.name, id)
	}
	delete(p.held, id)
	p.available[id] = struct{}{}
	return nil
}

// Held returns the sorted ids currently acquired.
func (p *Pool) Held() []int {
	ids := make([]int, 0, len(p.held))
	for id := range p.held {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (p *Pool) availableIDs() []int {
	ids := make([]int, 0, len(p.available))
	for id := range p.available {
		ids = append(ids, id)
	}
	return ids
}

// Check verifies available ∪ held = [0, capacity) with the two sets disjoint.
func (p *Pool) Check() error {
	if len(p.available)+len(p.held) != p.capacity {
		return fmt.Errorf("%w: %s has %d available + %d held, capacity %d",
			ErrInvariantViolation, p.name, len(p.available), len(p.held), p.capacity)
	}
	for id := range p.capacity {
		_, free := p.available[id]
		_, used := p.held[id]
		if free == used {
			return fmt.Errorf("%w: %s id %d available=%t held=%t", ErrInvariantViolation, p.name, id, free, used)
		}
	}
	return nil
}

// Pools bundles the CPU and GPU pools of one experiment.
type Pools struct {
	CPU    *Pool
	GPU    *Pool
	UseGPU bool
}

func NewPools(nCPUs, nGPUs int, useGPU bool) *Pools {
	return &Pools{
		CPU:    NewPool("cpu", nCPUs),
		GPU:    NewPool("gpu", nGPUs),
		UseGPU: useGPU,
	}
}

// NeedsGPU reports whether job must hold a GPU while it runs.
func (p *Pools) NeedsGPU(job types.Job) bool {
	return p.UseGPU && job.Fuzzer.GPUEligible()
}

// CanAdmit is the admission gate: a free core and, in GPU mode, a free GPU.
// The GPU check applies to every job in GPU mode, eligible or not.
func (p *Pools) CanAdmit() bool {
	if p.CPU.Available() == 0 {
		return false
	}
	if p.UseGPU && p.GPU.Available() == 0 {
		return false
	}
	return true
}

// Assign acquires the resources for job. On failure nothing stays acquired.
func (p *Pools) Assign(job types.Job) (types.JobAssignment, error) {
	cpu, err := p.CPU.Acquire()
	if err != nil {
		return types.JobAssignment{}, err
	}
	assignment := types.JobAssignment{Job: job, CPU: cpu}
	if p.NeedsGPU(job) {
		gpu, err := p.GPU.Acquire()
		if err != nil {
			if rerr := p.CPU.Release(cpu); rerr != nil {
				return types.JobAssignment{}, errors.Join(err, rerr)
			}
			return types.JobAssignment{}, err
		}
		assignment.GPU = &gpu
	}
	return assignment, nil
}

// Free releases everything held by assignment.
func (p *Pools) Free(assignment types.JobAssignment) error {
	var errs []error
	if err := p.CPU.Release(assignment.CPU); err != nil {
		errs = append(errs, err)
	}
	if assignment.GPU != nil {
		if err := p.GPU.Release(*assignment.GPU); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pools) Check() error {
	return errors.Join(p.CPU.Check(), p.GPU.Check())
}
