package importer

// Phase is the pipeline state reported in progress events.
type Phase string

// Pipeline phases.
const (
	PhaseIdle       Phase = "idle"
	PhaseDecoding   Phase = "decoding"
	PhaseProcessing Phase = "processing"
	PhaseCommitting Phase = "committing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// Progress is one observation of a running import.
type Progress struct {
	Phase     Phase
	Processed int
	Total     int
}

// ProgressFunc receives progress observations.
type ProgressFunc func(Progress)

// minProgressInterval floors the row interval between progress events.
const minProgressInterval = 1000

// progressInterval returns how many rows pass between progress events:
// about 0.5% of total, never fewer than minProgressInterval.
func progressInterval(total int) int {
	return max(total/200, minProgressInterval)
}
