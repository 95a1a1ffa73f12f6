package framework

// WorkerState Processor 状态机：READY → RECEIVING → EVALUATING → READY，终态 DONE
type WorkerState int32

const (
	StateReady WorkerState = iota
	StateReceiving
	StateEvaluating
	StateDone
)

func (s WorkerState) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateReceiving:
		return "RECEIVING"
	case StateEvaluating:
		return "EVALUATING"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// GeneratorState Generator 状态机：READY → EMITTING → DONE
type GeneratorState int32

const (
	GeneratorReady GeneratorState = iota
	GeneratorEmitting
	GeneratorDone
)

func (s GeneratorState) String() string {
	switch s {
	case GeneratorReady:
		return "READY"
	case GeneratorEmitting:
		return "EMITTING"
	case GeneratorDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}
