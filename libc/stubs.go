package libc

import (
	"github.com/benbjohnson/mimic"
)

// CxaAtexit models __cxa_atexit. Exit callbacks never run under symbolic
// execution so registration simply succeeds.
func CxaAtexit(c *mimic.Call) (mimic.Expr, error) {
	return mimic.NewConstantExpr(0, mimic.Width32), nil
}

// Getaddrinfo is a stub returning an unconstrained result.
func Getaddrinfo(c *mimic.Call) (mimic.Expr, error) {
	return c.State().NewSymbolic(ptrWidth(c)), nil
}

// Symlink is a stub returning an unconstrained result.
func Symlink(c *mimic.Call) (mimic.Expr, error) {
	return c.State().NewSymbolic(ptrWidth(c)), nil
}

// Sysconf is a stub returning an unconstrained result.
func Sysconf(c *mimic.Call) (mimic.Expr, error) {
	return c.State().NewSymbolic(ptrWidth(c)), nil
}

// Wcsncmp is a stub. The comparison result is unconstrained, a caller that
// branches on it explores every outcome.
func Wcsncmp(c *mimic.Call) (mimic.Expr, error) {
	return c.State().NewSymbolic(ptrWidth(c)), nil
}
