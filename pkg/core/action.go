// pkg/core/action.go
package core

// Action is one controller command sent by the agent.
type Action struct {
	Forward  bool `json:"forward"`
	Backward bool `json:"backward"`
	// X and Y are stick deflections in [-1, 1].
	X        float32 `json:"x"`
	Y        float32 `json:"y"`
	LookBack bool    `json:"lookBack"`
	Horn     bool    `json:"horn"`
	Drift    bool    `json:"drift"`
}

// Clamp bounds the stick axes to [-1, 1].
func (a Action) Clamp() Action {
	a.X = clampAxis(a.X)
	a.Y = clampAxis(a.Y)
	return a
}

func clampAxis(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
