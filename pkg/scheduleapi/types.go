// Package scheduleapi defines the wire-level request and response shapes of
// the schedule service. The types here are the stable contract between the
// RL client and the service; handlers and clients share them verbatim.
package scheduleapi

// Operation is a single client-issued decision. MapCode indexes the
// precomputed table of legal (stage, directive, parameter) combinations.
type Operation struct {
	MapCode int32 `json:"map_code"`
}

// OperationResult carries the element ids the scheduling backend actually
// applied for one operation. Empty when the backend rejected the operation.
type OperationResult struct {
	ElemID []int32 `json:"elem_id"`
}

type InitRequest struct {
	AlgorithmID       int32  `json:"algorithm_id"`
	InputImage        string `json:"input_image"`
	MaxStageDirective int32  `json:"max_stage_directive"`
}

type InitResponse struct {
	SessionID        string  `json:"session_id"`
	MaxStage         int32   `json:"max_stage"`
	MaxDirective     int32   `json:"max_directive"`
	MaxParam         int32   `json:"max_param"`
	ScheduleMapRange int32   `json:"schedule_map_range"`
	InitTimeSec      float64 `json:"init_time_sec"`
}

type StepRequest struct {
	Op Operation `json:"op"`
}

type StepResponse struct {
	ExecError   bool            `json:"exec_error"`
	ExecTimeout bool            `json:"exec_timeout"`
	Op          OperationResult `json:"op"`
	ExecTimeSec float64         `json:"exec_time_sec"`
}

type ResetRequest struct {
	Op []Operation `json:"op"`
}

type ResetResponse struct {
	Op []OperationResult `json:"op"`
}

type RenderResponse struct {
	ScheduleStr []string `json:"schedule_str"`
}

type CloseResponse struct{}

type TvmStepRequest struct {
	Action int32 `json:"action"`
}

type TvmStepResponse struct {
	State  string  `json:"state"`
	Reward float64 `json:"reward"`
	MaxLen int32   `json:"max_len"`
}

type StokeMessageRequest struct {
	Code string  `json:"code"`
	Cost float64 `json:"cost"`
}

type StokeMessageResponse struct {
	Action int32 `json:"action"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
