package pool

import "fmt"

// Snapshot is a point-in-time view of pool counters and occupancy. Counters
// are cumulative since the pool was constructed.
type Snapshot struct {
	Acquisitions uint64 `json:"acquisitions"`
	Releases     uint64 `json:"releases"`
	Creations    uint64 `json:"creations"`
	Destructions uint64 `json:"destructions"`
	Timeouts     uint64 `json:"timeouts"`
	// Errors counts rejected releases and cancelled acquires
	Errors uint64 `json:"errors"`

	CurrentSize int     `json:"current_size"`
	Available   int     `json:"available"`
	InUse       int     `json:"in_use"`
	MinSize     int     `json:"min_size"`
	MaxSize     int     `json:"max_size"`
	Utilization float64 `json:"utilization"`
	Ready       bool    `json:"ready"`
}

// Validate checks that a snapshot has the shape a pool produces. Snapshots
// taken from a Pool always pass; it exists for input from elsewhere.
func (s Snapshot) Validate() error {
	switch {
	case s.CurrentSize < 0 || s.Available < 0 || s.InUse < 0:
		return fmt.Errorf("%w: negative occupancy (size=%d available=%d in_use=%d)",
			ErrInvalidSnapshot, s.CurrentSize, s.Available, s.InUse)
	case s.Available+s.InUse != s.CurrentSize:
		return fmt.Errorf("%w: available %d + in use %d != size %d",
			ErrInvalidSnapshot, s.Available, s.InUse, s.CurrentSize)
	case s.Utilization < 0 || s.Utilization > 1:
		return fmt.Errorf("%w: utilization %.3f outside [0,1]", ErrInvalidSnapshot, s.Utilization)
	case s.MinSize < 0 || s.MaxSize < s.MinSize:
		return fmt.Errorf("%w: min size %d, max size %d", ErrInvalidSnapshot, s.MinSize, s.MaxSize)
	}
	return nil
}

func utilization(inUse, size int) float64 {
	if size == 0 {
		return 0
	}
	return float64(inUse) / float64(size)
}
