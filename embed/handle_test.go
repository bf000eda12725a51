// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package embed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleTableGenerations(t *testing.T) {
	var tbl handleTable
	a := tbl.insert("a")
	require.NotZero(t, a)

	v, err := getAs[string](&tbl, a)
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	_, err = getAs[int](&tbl, a)
	assert.ErrorIs(t, err, ErrInvalidHandle)
	_, err = takeAs[int](&tbl, a)
	assert.ErrorIs(t, err, ErrInvalidHandle, "wrong kind must not release")

	v, err = takeAs[string](&tbl, a)
	require.NoError(t, err)
	assert.Equal(t, "a", v)
	_, err = takeAs[string](&tbl, a)
	assert.ErrorIs(t, err, ErrInvalidHandle, "second release")

	b := tbl.insert("b")
	_, slotA := a.split()
	genB, slotB := b.split()
	assert.Equal(t, slotA, slotB, "slot reused")
	assert.NotEqual(t, a, b)
	assert.Equal(t, uint32(2), genB)
	_, err = getAs[string](&tbl, a)
	assert.ErrorIs(t, err, ErrInvalidHandle, "stale handle")
	assert.Equal(t, 1, tbl.len())

	_, err = getAs[string](&tbl, 0)
	assert.ErrorIs(t, err, ErrInvalidHandle)
	_, err = getAs[string](&tbl, makeHandle(1, 99))
	assert.ErrorIs(t, err, ErrInvalidHandle)
}
