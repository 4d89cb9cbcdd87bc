package events

import (
	"time"

	"go.uber.org/zap"
)

// Run stages, in the order a successful run appends them
const (
	TablesAssembledEvent = "tables.assembled"
	ModelBuiltEvent      = "model.built"
	ModelSolvedEvent     = "model.solved"
	PlanInterpretedEvent = "plan.interpreted"
	RunFailedEvent       = "run.failed"
)

// RunEventTypes lists every run stage
var RunEventTypes = []string{
	TablesAssembledEvent,
	ModelBuiltEvent,
	ModelSolvedEvent,
	PlanInterpretedEvent,
	RunFailedEvent,
}

type TablesAssembled struct {
	Clients  int `json:"clients"`
	Products int `json:"products"`
	Batches  int `json:"batches"`
	Demands  int `json:"demands"`
}

type ModelBuilt struct {
	Variables   int `json:"variables"`
	Binaries    int `json:"binaries"`
	Constraints int `json:"constraints"`
}

type ModelSolved struct {
	Solver    string        `json:"solver"`
	Status    string        `json:"status"`
	Objective float64       `json:"objective"`
	RunTime   time.Duration `json:"run_time"`
}

type PlanInterpreted struct {
	AssignedBatches   int     `json:"assigned_batches"`
	UnassignedBatches int     `json:"unassigned_batches"`
	Coverage          float64 `json:"coverage"`
	Optimal           bool    `json:"optimal"`
}

type RunFailed struct {
	Stage string `json:"stage"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// LoggingHandler writes every run event it receives to a zap logger at debug level
type LoggingHandler struct {
	logger *zap.Logger
}

func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

func (h *LoggingHandler) CanHandle(eventType string) bool {
	for _, t := range RunEventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

func (h *LoggingHandler) Handle(event Event) error {
	h.logger.Debug("run event",
		zap.String("type", event.Type()),
		zap.String("run", event.StreamID()),
		zap.Int("version", event.Version()),
		zap.Any("data", event.Data()))
	return nil
}
