// Package libc provides symbolic summaries of C standard library functions.
//
// Each summary models the observable effects of one libc function on an
// execution state: its return value, its memory writes, and the constraints
// it adds. Summaries bound every scan and allocation so that symbolic inputs
// cannot grow the constraint system without limit, and they degrade to fresh
// unconstrained values instead of failing when exact modeling is infeasible.
package libc

import (
	"fmt"

	"github.com/benbjohnson/mimic"
)

// WcharBytes is the width of one wide character.
const WcharBytes = 4

const wcharBits = WcharBytes * 8

// Fixed buffer sizes, matching common glibc limits.
const (
	loginBufSize = 256
	errorBufSize = 256
	pwStringSize = 4096
	maxAtolBytes = 256
)

// Register registers every summary in the package on a machine.
func Register(m *mimic.Machine) {
	m.Register("atol", Atol)
	m.Register("bindtextdomain", Bindtextdomain)
	m.Register("clock_gettime", ClockGettime)
	m.Register("__cxa_atexit", CxaAtexit)
	m.Register("exit", Exit)
	m.Register("__fprintf_chk", FprintfChk)
	m.Register("free", Free)
	m.Register("gai_strerror", GaiStrerror)
	m.Register("getaddrinfo", Getaddrinfo)
	m.Register("getcwd", Getcwd)
	m.Register("getenv", Getenv)
	m.Register("getline", Getline)
	m.Register("getlogin", Getlogin)
	m.Register("getpwnam", Getpwnam)
	m.Register("malloc", Malloc)
	m.Register("mbsrtowcs", Mbsrtowcs)
	m.Register("memcpy", Memcpy)
	m.Register("mempcpy", Mempcpy)
	m.Register("realpath", Realpath)
	m.Register("setlocale", Setlocale)
	m.Register("signal", Signal)
	m.Register("snprintf", Snprintf)
	m.Register("__snprintf_chk", SnprintfChk)
	m.Register("strlen", Strlen)
	m.Register("strncat", Strncat)
	m.Register("strncpy", Strncpy)
	m.Register("strrchr", Strrchr)
	m.Register("swprintf", Swprintf)
	m.Register("symlink", Symlink)
	m.Register("sysconf", Sysconf)
	m.Register("textdomain", Textdomain)
	m.Register("towupper", Towupper)
	m.Register("unlink", Unlink)
	m.Register("vfwprintf", Vfwprintf)
	m.Register("wcschr", Wcschr)
	m.Register("wcscpy", Wcscpy)
	m.Register("wcslen", Wcslen)
	m.Register("wcsncmp", Wcsncmp)
	m.Register("wcsncpy", Wcsncpy)
	m.Register("wcspbrk", Wcspbrk)
	m.Register("wcsrchr", Wcsrchr)
	m.Register("wcsrtombs", Wcsrtombs)
	m.Register("wmempcpy", Wmempcpy)

	// secure_getenv and getenv behave the same from a symbolic perspective.
	m.Register("secure_getenv", Getenv)
}

func ptrWidth(c *mimic.Call) uint {
	return c.Arch().PointerWidth
}

func ptrConst(c *mimic.Call, value uint64) *mimic.ConstantExpr {
	return mimic.NewConstantExpr(value, ptrWidth(c))
}

func nullPtr(c *mimic.Call) *mimic.ConstantExpr {
	return ptrConst(c, 0)
}

func minusOne32() *mimic.ConstantExpr {
	return mimic.NewConstantExpr(^uint64(0), mimic.Width32)
}

// isNullPtr returns true if expr is provably a null pointer.
// The check is syntactic, a symbolic pointer is never null here.
func isNullPtr(c *mimic.Call, expr mimic.Expr) bool {
	return mimic.IsConstantTrue(mimic.NewBinaryExpr(mimic.EQ, expr, nullPtr(c)))
}

// freshBuffer allocates size bytes through malloc and null-terminates
// the final byte.
func freshBuffer(c *mimic.Call, size uint64) (*mimic.ConstantExpr, error) {
	ret, err := c.Inline("malloc", ptrConst(c, size))
	if err != nil {
		return nil, err
	}
	addr, ok := ret.(*mimic.ConstantExpr)
	if !ok {
		return nil, fmt.Errorf("malloc returned non-constant address")
	}

	if err := c.State().Store(addr.Add(ptrConst(c, size-1)), mimic.NewConstantExpr(0, mimic.Width8)); err != nil {
		return nil, err
	}
	return addr, nil
}

// singletonBuffer returns the callee-owned buffer registered under key,
// allocating and null-terminating it on first use. Later calls against the
// same state return the identical address.
func singletonBuffer(c *mimic.Call, key string, size uint64) (mimic.Expr, error) {
	if addr, ok := c.State().Singleton(key); ok {
		return addr, nil
	}

	addr, err := freshBuffer(c, size)
	if err != nil {
		return nil, err
	}
	c.State().SetSingleton(key, addr)
	return addr, nil
}

// loadPointer reads a pointer-width value from memory at addr.
func loadPointer(c *mimic.Call, addr *mimic.ConstantExpr) (mimic.Expr, error) {
	return c.State().Load(addr, ptrWidth(c))
}

// readBytes loads n bytes starting at addr as individual byte expressions.
func readBytes(c *mimic.Call, addr *mimic.ConstantExpr, n uint64) ([]mimic.Expr, error) {
	exprs := make([]mimic.Expr, n)
	for i := uint64(0); i < n; i++ {
		expr, err := c.State().Load(addr.Add(ptrConst(c, i)), mimic.Width8)
		if err != nil {
			return nil, err
		}
		exprs[i] = expr
	}
	return exprs, nil
}

// concreteBytes converts byte expressions to raw bytes.
// Returns false if any byte is symbolic.
func concreteBytes(exprs []mimic.Expr) ([]byte, bool) {
	b := make([]byte, len(exprs))
	for i, expr := range exprs {
		value, ok := expr.(*mimic.ConstantExpr)
		if !ok {
			return nil, false
		}
		b[i] = byte(value.Value)
	}
	return b, true
}

func constBytes(b []byte) []mimic.Expr {
	exprs := make([]mimic.Expr, len(b))
	for i := range b {
		exprs[i] = mimic.NewConstantExpr(uint64(b[i]), mimic.Width8)
	}
	return exprs
}

// byteArray packs byte expressions into an array so a span can be written
// with a single copy.
func byteArray(exprs []mimic.Expr) *mimic.Array {
	a := mimic.NewArray(0, uint(len(exprs)))
	for i, expr := range exprs {
		a = a.Store(mimic.NewConstantExpr64(uint64(i)), expr, true)
	}
	return a
}

// storeBytes writes byte expressions to consecutive addresses starting at addr.
func storeBytes(c *mimic.Call, addr *mimic.ConstantExpr, exprs []mimic.Expr) error {
	if len(exprs) == 0 {
		return nil
	}
	return c.State().Copy(addr, byteArray(exprs))
}

// wcharPattern normalizes an expression to wide character width.
func wcharPattern(expr mimic.Expr) mimic.Expr {
	switch w := mimic.ExprWidth(expr); {
	case w < wcharBits:
		return mimic.NewCastExpr(expr, wcharBits, false)
	case w > wcharBits:
		return mimic.NewExtractExpr(expr, 0, wcharBits)
	}
	return expr
}
