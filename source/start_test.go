package source

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamswap/stellar-indexer/models"
)

func TestStartLedger(t *testing.T) {
	latest := func() (uint32, error) { return 900, nil }

	seq, err := StartLedger(&models.Cursor{Ledger: 55}, 10, "testing", latest)
	require.NoError(t, err)
	assert.Equal(t, uint32(55), seq, "cursor wins")

	seq, err = StartLedger(nil, 10, "testing", latest)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), seq)

	seq, err = StartLedger(nil, 0, "testing", latest)
	require.NoError(t, err)
	assert.Equal(t, uint32(900), seq)

	_, err = StartLedger(nil, 0, "production", latest)
	assert.Error(t, err)

	boom := errors.New("rpc down")
	_, err = StartLedger(nil, 0, "testing", func() (uint32, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
}
