/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package jid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPartsFromString(t *testing.T) {
	cases := []struct {
		in                      string
		node, domain, resource string
	}{
		{"lp@dp/rp", "lp", "dp", "rp"},
		{"dp/rp", "", "dp", "rp"},
		{"dp", "", "dp", ""},
		{"lp@dp//rp", "lp", "dp", "/rp"},
		{"lp@dp/rp/", "lp", "dp", "rp/"},
	}
	for _, c := range cases {
		node, domain, resource, err := partsFromString(c.in)
		require.NoError(t, err)
		require.Equal(t, c.node, node)
		require.Equal(t, c.domain, domain)
		require.Equal(t, c.resource, resource)
	}
}

func TestNewRequiresDomain(t *testing.T) {
	_, err := New("juliet", "", "balcony")
	require.ErrorIs(t, err, ErrInvalidDomain)
}

func TestCaseFolding(t *testing.T) {
	j, err := New("Juliet", "Example.COM", "Balcony")
	require.NoError(t, err)
	require.Equal(t, "example.com", j.Domain())
}

func TestBareDropsResource(t *testing.T) {
	j, err := FromString("juliet@example.com/balcony")
	require.NoError(t, err)
	require.True(t, j.IsFull())

	bare := j.Bare()
	require.True(t, bare.IsBare())
	require.Equal(t, "juliet@example.com", bare.String())
}

func TestEquality(t *testing.T) {
	a, err := FromString("juliet@example.com/balcony")
	require.NoError(t, err)
	b, err := New("Juliet", "EXAMPLE.com", "balcony")
	require.NoError(t, err)
	require.True(t, a.Equal(b))
}

func TestTooLongPartIsRejected(t *testing.T) {
	huge := make([]byte, maxPartLen+1)
	for i := range huge {
		huge[i] = 'a'
	}
	_, err := New(string(huge), "example.com", "")
	require.ErrorIs(t, err, ErrPartTooLong)
}

func TestWithResource(t *testing.T) {
	j, err := FromString("juliet@example.com")
	require.NoError(t, err)
	full, err := j.WithResource("balcony")
	require.NoError(t, err)
	require.Equal(t, "juliet@example.com/balcony", full.String())
}
