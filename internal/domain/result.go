package domain

// Result is the structured envelope every operation returns to the editor UI.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func OK(data any) Result {
	return Result{Success: true, Data: data}
}

func Fail(err error) Result {
	return Result{Success: false, Error: err.Error()}
}
