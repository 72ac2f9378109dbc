package libc_test

import (
	"testing"

	"github.com/benbjohnson/mimic"
	"github.com/stretchr/testify/require"
)

func TestStrlen(t *testing.T) {
	t.Run("Concrete", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		addr := s.AllocString("hello")

		ret, err := m.Call(s, "strlen", addr)
		require.NoError(t, err)
		require.Equal(t, mimic.NewConstantExpr64(5), ret)
	})

	t.Run("Empty", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		addr := s.AllocString("")

		ret, err := m.Call(s, "strlen", addr)
		require.NoError(t, err)
		require.Equal(t, mimic.NewConstantExpr64(0), ret)
	})

	// Without a terminator the scan is bounded by the allocation.
	t.Run("Unterminated", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		addr, _ := s.AllocBytes([]byte("abc"))

		ret, err := m.Call(s, "strlen", addr)
		require.NoError(t, err)
		require.Equal(t, mimic.NewConstantExpr64(3), ret)
	})

	t.Run("Ceiling", func(t *testing.T) {
		m := newMachine(t)
		m.Limits.MaxStringChars = 4
		s := m.NewState()
		addr := s.AllocString("hello")

		ret, err := m.Call(s, "strlen", addr)
		require.NoError(t, err)
		require.Equal(t, mimic.NewConstantExpr64(4), ret)
	})

	t.Run("Symbolic", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		addr, _ := s.Alloc(3)

		ret, err := m.Call(s, "strlen", addr)
		require.NoError(t, err)
		require.False(t, mimic.IsConstantExpr(ret))

		// Any length up to the allocation size is possible.
		for n := uint64(0); n <= 3; n++ {
			ok, err := m.MayBeTrue(s, mimic.NewBinaryExpr(mimic.EQ, ret, u64(n)))
			require.NoError(t, err)
			require.True(t, ok, "length %d", n)
		}

		ok, err := m.MustBeTrue(s, mimic.NewBinaryExpr(mimic.ULE, ret, u64(3)))
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("SymbolicCeiling", func(t *testing.T) {
		m := newMachine(t)
		m.Limits.MaxStringChars = 4
		s := m.NewState()
		addr, _ := s.Alloc(10)

		ret, err := m.Call(s, "strlen", addr)
		require.NoError(t, err)

		ok, err := m.MustBeTrue(s, mimic.NewBinaryExpr(mimic.ULE, ret, u64(4)))
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("ErrNoAllocation", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		_, err := m.Call(s, "strlen", u64(0xF0000))
		require.ErrorIs(t, err, mimic.ErrNoAllocation)
	})
}

func TestWcslen(t *testing.T) {
	t.Run("Concrete", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		addr := allocWideString(s, "hi")

		ret, err := m.Call(s, "wcslen", addr)
		require.NoError(t, err)
		require.Equal(t, mimic.NewConstantExpr64(2), ret)
	})

	t.Run("Empty", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		addr := allocWideString(s, "")

		ret, err := m.Call(s, "wcslen", addr)
		require.NoError(t, err)
		require.Equal(t, mimic.NewConstantExpr64(0), ret)
	})

	t.Run("Symbolic", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		addr, _ := s.Alloc(8) // two symbolic wide characters

		ret, err := m.Call(s, "wcslen", addr)
		require.NoError(t, err)

		for n := uint64(0); n <= 2; n++ {
			ok, err := m.MayBeTrue(s, mimic.NewBinaryExpr(mimic.EQ, ret, u64(n)))
			require.NoError(t, err)
			require.True(t, ok, "length %d", n)
		}

		ok, err := m.MustBeTrue(s, mimic.NewBinaryExpr(mimic.ULE, ret, u64(2)))
		require.NoError(t, err)
		require.True(t, ok)
	})
}
