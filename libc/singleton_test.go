package libc_test

import (
	"testing"

	"github.com/benbjohnson/mimic"
	"github.com/stretchr/testify/require"
)

func TestGetlogin(t *testing.T) {
	t.Run("SamePointer", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()

		first, err := m.Call(s, "getlogin")
		require.NoError(t, err)
		second, err := m.Call(s, "getlogin")
		require.NoError(t, err)
		require.Equal(t, first, second)

		addr, ok := first.(*mimic.ConstantExpr)
		require.True(t, ok)
		size, ok := s.SizeofAlloc(addr)
		require.True(t, ok)
		require.Equal(t, uint64(256), size)

		// The name is symbolic but always terminated.
		value, err := s.Load(addr, mimic.Width8)
		require.NoError(t, err)
		require.False(t, mimic.IsConstantExpr(value))

		term, err := s.Load(addr.Add(u64(255)), mimic.Width8)
		require.NoError(t, err)
		require.Equal(t, mimic.NewConstantExpr8(0), term)
	})

	t.Run("ForkedState", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()

		first, err := m.Call(s, "getlogin")
		require.NoError(t, err)
		addr := first.(*mimic.ConstantExpr)

		// The cached address survives a fork but the contents do not alias.
		child := s.Fork(nil)
		second, err := m.Call(child, "getlogin")
		require.NoError(t, err)
		require.Equal(t, first, second)

		require.NoError(t, s.Store(addr, mimic.NewConstantExpr8('x')))
		value, err := child.Load(addr, mimic.Width8)
		require.NoError(t, err)
		require.False(t, mimic.IsConstantExpr(value))
	})
}

func TestMessageBuffers(t *testing.T) {
	m := newMachine(t)
	s := m.NewState()

	ptrs := make(map[string]mimic.Expr)
	for _, symbol := range []string{"setlocale", "bindtextdomain", "textdomain"} {
		first, err := m.Call(s, symbol, u64(0), u64(0))
		require.NoError(t, err)
		second, err := m.Call(s, symbol, u64(0), u64(0))
		require.NoError(t, err)
		require.Equal(t, first, second, symbol)
		ptrs[symbol] = first
	}

	// Each function owns its own buffer.
	require.NotEqual(t, ptrs["setlocale"], ptrs["textdomain"])
	require.NotEqual(t, ptrs["setlocale"], ptrs["bindtextdomain"])
}

func TestGaiStrerror(t *testing.T) {
	m := newMachine(t)
	s := m.NewState()

	first, err := m.Call(s, "gai_strerror", u64(0))
	require.NoError(t, err)
	second, err := m.Call(s, "gai_strerror", u64(0))
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestGetpwnam(t *testing.T) {
	m := newMachine(t)
	s := m.NewState()

	ret, err := m.Call(s, "getpwnam", s.AllocString("root"))
	require.NoError(t, err)
	passwd, ok := ret.(*mimic.ConstantExpr)
	require.True(t, ok)

	size, ok := s.SizeofAlloc(passwd)
	require.True(t, ok)
	require.Equal(t, uint64(48), size)

	// The string fields point at distinct terminated buffers.
	var fields []*mimic.ConstantExpr
	for _, off := range []uint64{0, 8, 24, 32, 40} {
		value, err := s.Load(passwd.Add(u64(off)), mimic.Width64)
		require.NoError(t, err)
		field, ok := value.(*mimic.ConstantExpr)
		require.True(t, ok)

		fieldSize, ok := s.SizeofAlloc(field)
		require.True(t, ok)
		require.Equal(t, uint64(4096), fieldSize)
		fields = append(fields, field)
	}
	require.NotEqual(t, fields[0], fields[1])

	// uid and gid are unconstrained.
	for _, off := range []uint64{16, 20} {
		value, err := s.Load(passwd.Add(u64(off)), mimic.Width32)
		require.NoError(t, err)
		require.False(t, mimic.IsConstantExpr(value))
	}

	second, err := m.Call(s, "getpwnam", s.AllocString("nobody"))
	require.NoError(t, err)
	require.Equal(t, ret, second)
}

func TestSignal(t *testing.T) {
	m := newMachine(t)
	s := m.NewState()

	// No handler installed yet.
	ret, err := m.Call(s, "signal", u64(2), u64(0x1000))
	require.NoError(t, err)
	require.Equal(t, mimic.NewConstantExpr(^uint64(0), mimic.Width64), ret)

	ret, err = m.Call(s, "signal", u64(2), u64(0x2000))
	require.NoError(t, err)
	require.Equal(t, u64(0x1000), ret)

	// Other signals are unaffected.
	ret, err = m.Call(s, "signal", u64(3), u64(0x3000))
	require.NoError(t, err)
	require.Equal(t, mimic.NewConstantExpr(^uint64(0), mimic.Width64), ret)
}
