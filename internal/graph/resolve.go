package graph

// Evaluator reports whether a destination condition is currently active.
// The graph never interprets condition strings itself.
type Evaluator interface {
	IsActive(condition string) bool
}

type ResolutionKind int

const (
	ResolvedNone ResolutionKind = iota
	ResolvedDestination
	ResolvedDefault
)

func (k ResolutionKind) String() string {
	switch k {
	case ResolvedDestination:
		return "destination"
	case ResolvedDefault:
		return "default"
	default:
		return "none"
	}
}

// Resolution is the outcome of evaluating one checkpoint.
type Resolution struct {
	Kind        ResolutionKind
	Destination int // index of the matching destination, -1 otherwise
	Condition   string
	Jumps       []JumpTo
}

// Resolve picks the jumps a checkpoint fires: the first destination whose
// condition is active wins, otherwise the default list, otherwise nothing.
// A matching destination with no jumps is skipped.
func Resolve(cp CheckPoint, eval Evaluator) Resolution {
	if eval != nil {
		for i, d := range cp.Destinations {
			if len(d.Jumps) > 0 && eval.IsActive(d.Condition) {
				return Resolution{
					Kind:        ResolvedDestination,
					Destination: i,
					Condition:   d.Condition,
					Jumps:       cloneJumps(d.Jumps),
				}
			}
		}
	}
	if len(cp.Defaults) > 0 {
		return Resolution{Kind: ResolvedDefault, Destination: -1, Jumps: cloneJumps(cp.Defaults)}
	}
	return Resolution{Kind: ResolvedNone, Destination: -1}
}
