package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	IDs  []int64 `json:"ids" validate:"required,min=1,max=3,dive,gt=0"`
	Mode string  `json:"mode" validate:"omitempty,oneof=walking driving"`
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(sample{IDs: []int64{1, 2}}))

	err := ValidateStruct(sample{})
	require.Error(t, err)
	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "required", verr.Fields[0].Tag)
	assert.Equal(t, "IDs is required", verr.Error())

	err = ValidateStruct(sample{IDs: []int64{1, 2, 3, 4}, Mode: "flying"})
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)

	err = ValidateStruct(sample{IDs: []int64{1, -2}})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "gt", verr.Fields[0].Tag)
}

func TestGetValidatorIsShared(t *testing.T) {
	assert.Same(t, GetValidator(), GetValidator())
}
