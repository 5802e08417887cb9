package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotValidate(t *testing.T) {
	valid := Snapshot{CurrentSize: 4, Available: 1, InUse: 3, MinSize: 2, MaxSize: 4, Utilization: 0.75}
	assert.NoError(t, valid.Validate())

	cases := map[string]func(s *Snapshot){
		"NegativeInUse":       func(s *Snapshot) { s.InUse = -1; s.Available = 5 },
		"AccountingMismatch":  func(s *Snapshot) { s.Available = 2 },
		"UtilizationAboveOne": func(s *Snapshot) { s.Utilization = 1.5 },
		"NegativeUtilization": func(s *Snapshot) { s.Utilization = -0.1 },
		"MaxBelowMin":         func(s *Snapshot) { s.MaxSize = 1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := valid
			mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidSnapshot)
		})
	}
}

func TestUtilizationOfEmptyPool(t *testing.T) {
	assert.Equal(t, 0.0, utilization(0, 0))
	assert.Equal(t, 0.5, utilization(2, 4))
}
