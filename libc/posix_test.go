package libc_test

import (
	"testing"

	"github.com/benbjohnson/mimic"
	"github.com/stretchr/testify/require"
)

func TestMalloc(t *testing.T) {
	allocSize := func(t *testing.T, s *mimic.ExecutionState, ret mimic.Expr) uint64 {
		t.Helper()
		addr, ok := ret.(*mimic.ConstantExpr)
		require.True(t, ok)
		size, ok := s.SizeofAlloc(addr)
		require.True(t, ok)
		return size
	}

	t.Run("Concrete", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		ret, err := m.Call(s, "malloc", u64(16))
		require.NoError(t, err)
		require.Equal(t, uint64(16), allocSize(t, s, ret))
	})

	t.Run("Zero", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		ret, err := m.Call(s, "malloc", u64(0))
		require.NoError(t, err)
		require.Equal(t, uint64(1), allocSize(t, s, ret))
	})

	t.Run("Symbolic", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		size := s.NewSymbolic(mimic.Width64)
		s.AddConstraint(mimic.NewBinaryExpr(mimic.ULE, size, u64(32)))

		// A symbolic size concretizes to its maximum.
		ret, err := m.Call(s, "malloc", size)
		require.NoError(t, err)
		require.Equal(t, uint64(32), allocSize(t, s, ret))
	})

	t.Run("Clamped", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		ret, err := m.Call(s, "malloc", u64(1<<30))
		require.NoError(t, err)
		require.Equal(t, uint64(1<<28), allocSize(t, s, ret))
	})
}

func TestFree(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		ptr, err := m.Call(s, "malloc", u64(16))
		require.NoError(t, err)

		ret, err := m.Call(s, "free", ptr)
		require.NoError(t, err)
		require.Nil(t, ret)

		_, err = s.Load(ptr.(*mimic.ConstantExpr), mimic.Width8)
		require.ErrorIs(t, err, mimic.ErrNoAllocation)
	})

	t.Run("Null", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		_, err := m.Call(s, "free", u64(0))
		require.NoError(t, err)
	})

	t.Run("Symbolic", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		_, err := m.Call(s, "free", s.NewSymbolic(mimic.Width64))
		require.NoError(t, err)
	})
}

func TestExit(t *testing.T) {
	m := newMachine(t)
	s := m.NewState()

	ret, err := m.Call(s, "exit", mimic.NewConstantExpr32(7))
	require.NoError(t, err)
	require.Nil(t, ret)
	require.True(t, s.Terminated())
	require.Equal(t, mimic.ExecutionStatusExited, s.Status())
	require.Equal(t, "exit status 7", s.Reason())
}

func TestClockGettime(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		tp, _ := s.Alloc(16)

		ret, err := m.Call(s, "clock_gettime", u64(0), tp)
		require.NoError(t, err)
		require.Equal(t, mimic.NewConstantExpr32(0), ret)

		// Seconds and nanoseconds are unconstrained.
		for _, off := range []uint64{0, 8} {
			value, err := s.Load(tp.Add(u64(off)), mimic.Width64)
			require.NoError(t, err)
			require.False(t, mimic.IsConstantExpr(value))
		}
	})

	t.Run("NullTP", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		ret, err := m.Call(s, "clock_gettime", u64(0), u64(0))
		require.NoError(t, err)
		require.Equal(t, mimic.NewConstantExpr(^uint64(0), mimic.Width32), ret)
	})
}

func TestGetcwd(t *testing.T) {
	t.Run("ProvidedBuffer", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		buf, _ := s.Alloc(8)

		ret, err := m.Call(s, "getcwd", buf, u64(8))
		require.NoError(t, err)
		require.Equal(t, buf, ret)

		b, err := m.EvalBytes(s, buf, 2)
		require.NoError(t, err)
		require.Equal(t, []byte("/\x00"), b)
	})

	t.Run("NullBuffer", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		s.SetFS(mimic.NewMapFileSystem("/home"))

		ret, err := m.Call(s, "getcwd", u64(0), u64(0))
		require.NoError(t, err)

		addr, ok := ret.(*mimic.ConstantExpr)
		require.True(t, ok)
		size, ok := s.SizeofAlloc(addr)
		require.True(t, ok)
		require.Equal(t, uint64(6), size)

		b, err := m.EvalBytes(s, addr, 6)
		require.NoError(t, err)
		require.Equal(t, []byte("/home\x00"), b)
	})

	t.Run("Overlong", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		s.SetFS(mimic.NewMapFileSystem("/home/user"))
		buf, _ := s.Alloc(5)

		// A directory that does not fit the size returns null and
		// leaves the buffer untouched.
		ret, err := m.Call(s, "getcwd", buf, u64(5))
		require.NoError(t, err)
		require.Equal(t, u64(0), ret)

		value, err := s.Load(buf, mimic.Width8)
		require.NoError(t, err)
		require.False(t, mimic.IsConstantExpr(value))
	})
}

func TestGetline(t *testing.T) {
	t.Run("FreshBuffer", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		lineptrPtr, _ := s.Alloc(8)
		require.NoError(t, s.Store(lineptrPtr, u64(0)))
		nPtr, _ := s.Alloc(8)

		ret, err := m.Call(s, "getline", lineptrPtr, nPtr, u64(1))
		require.NoError(t, err)

		// The caller's pointer now holds a buffer of the assumed size.
		lineptr, err := s.Load(lineptrPtr, mimic.Width64)
		require.NoError(t, err)
		buf, ok := lineptr.(*mimic.ConstantExpr)
		require.True(t, ok)
		size, ok := s.SizeofAlloc(buf)
		require.True(t, ok)
		require.Equal(t, uint64(128), size)

		n, err := s.Load(nPtr, mimic.Width32)
		require.NoError(t, err)
		require.False(t, mimic.IsConstantExpr(n))

		// The reported length stays under the assumption.
		ok, err = m.MustBeTrue(s, mimic.NewBinaryExpr(mimic.ULT, ret, u64(128)))
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("OldBufferFreed", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		old, err := m.Call(s, "malloc", u64(16))
		require.NoError(t, err)

		lineptrPtr, _ := s.Alloc(8)
		require.NoError(t, s.Store(lineptrPtr, old))
		nPtr, _ := s.Alloc(8)

		_, err = m.Call(s, "getline", lineptrPtr, nPtr, u64(1))
		require.NoError(t, err)

		_, err = s.Load(old.(*mimic.ConstantExpr), mimic.Width8)
		require.ErrorIs(t, err, mimic.ErrNoAllocation)
	})
}

func TestRealpath(t *testing.T) {
	t.Run("Absolute", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()

		ret, err := m.Call(s, "realpath", s.AllocString("/a/b/../c"), u64(0))
		require.NoError(t, err)

		addr, ok := ret.(*mimic.ConstantExpr)
		require.True(t, ok)
		size, ok := s.SizeofAlloc(addr)
		require.True(t, ok)
		require.Equal(t, uint64(4096), size)

		b, err := m.EvalBytes(s, addr, 5)
		require.NoError(t, err)
		require.Equal(t, []byte("/a/c\x00"), b)
	})

	t.Run("Relative", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		s.SetFS(mimic.NewMapFileSystem("/home"))
		resolved, _ := s.Alloc(16)

		ret, err := m.Call(s, "realpath", s.AllocString("x/y"), resolved)
		require.NoError(t, err)
		require.Equal(t, resolved, ret)

		b, err := m.EvalBytes(s, resolved, 10)
		require.NoError(t, err)
		require.Equal(t, []byte("/home/x/y\x00"), b)
	})

	t.Run("Symbolic", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		path, _ := s.Alloc(4)

		// Rule out the empty string so the path cannot concretize.
		head, err := s.Load(path, mimic.Width8)
		require.NoError(t, err)
		s.AddConstraint(mimic.NewBinaryExpr(mimic.NE, head, mimic.NewConstantExpr8(0)))

		ret, err := m.Call(s, "realpath", path, u64(0))
		require.NoError(t, err)

		value, err := s.Load(ret.(*mimic.ConstantExpr), mimic.Width8)
		require.NoError(t, err)
		require.False(t, mimic.IsConstantExpr(value))
	})
}

func TestUnlink(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		fs := mimic.NewMapFileSystem("/")
		fs.Add("/tmp/a")
		s.SetFS(fs)

		ret, err := m.Call(s, "unlink", s.AllocString("/tmp/a"))
		require.NoError(t, err)
		require.Equal(t, mimic.NewConstantExpr32(0), ret)
		require.False(t, fs.Exists("/tmp/a"))
	})

	t.Run("Missing", func(t *testing.T) {
		m := newMachine(t)
		s := m.NewState()
		ret, err := m.Call(s, "unlink", s.AllocString("/tmp/a"))
		require.NoError(t, err)
		require.Equal(t, mimic.NewConstantExpr(^uint64(0), mimic.Width32), ret)
	})
}
