package domain

import (
	"afterglow/errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNavState_RoundTrip(t *testing.T) {
	req := require.New(t)
	raw, err := NavState{Path: "a"}.Encode()
	req.NoError(err)
	req.JSONEq(`{"path":"a"}`, string(raw))

	s, err := DecodeNavState(raw)
	req.NoError(err)
	req.Equal("a", s.Path)
}

func TestDecodeNavState_Rejects(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":     `nope`,
		"no path":      `{"other":"a"}`,
		"path non str": `{"path":3}`,
		"array":        `["a"]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeNavState([]byte(raw))
			require.ErrorIs(t, err, errors.ErrInvalidNavState)
		})
	}
}

func TestDecodeNavState_EmptyPathIsValid(t *testing.T) {
	s, err := DecodeNavState([]byte(`{"path":""}`))
	require.NoError(t, err)
	require.Equal(t, "", s.Path)
}
