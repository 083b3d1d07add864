package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventValidate(t *testing.T) {
	ev := Event{Kind: EventInstantSwapExecuted}
	err := ev.Validate()
	assert.ErrorIs(t, err, ErrMissingParams)
	assert.Contains(t, err.Error(), string(EventInstantSwapExecuted))

	ev.InstantSwap = &InstantSwapParams{}
	assert.NoError(t, ev.Validate())

	assert.ErrorIs(t, Event{Kind: EventBalanceAffecting}.Validate(), ErrMissingParams)
	assert.NoError(t, Event{Kind: "mystery"}.Validate())
}
