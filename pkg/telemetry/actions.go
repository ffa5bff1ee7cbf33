package telemetry

type ActionCategory int

const (
	Experiment ActionCategory = iota
	Fuzzing
)

func (a ActionCategory) String() string {
	switch a {
	case Experiment:
		return "experiment"
	case Fuzzing:
		return "fuzzing"
	default:
		return "unknown"
	}
}
