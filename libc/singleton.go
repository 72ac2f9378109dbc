package libc

import (
	"fmt"

	"github.com/benbjohnson/mimic"
)

// Getlogin models getlogin. The login name is a callee-owned symbolic
// buffer, so repeated calls against one state return the same address.
func Getlogin(c *mimic.Call) (mimic.Expr, error) {
	return singletonBuffer(c, "getlogin", loginBufSize)
}

// Setlocale models setlocale. The requested locale is ignored, the returned
// locale string is symbolic.
func Setlocale(c *mimic.Call) (mimic.Expr, error) {
	return singletonBuffer(c, "setlocale", loginBufSize)
}

// Bindtextdomain models bindtextdomain.
func Bindtextdomain(c *mimic.Call) (mimic.Expr, error) {
	return singletonBuffer(c, "bindtextdomain", loginBufSize)
}

// Textdomain models textdomain.
func Textdomain(c *mimic.Call) (mimic.Expr, error) {
	return singletonBuffer(c, "textdomain", loginBufSize)
}

// GaiStrerror models gai_strerror. Unlike the other message functions the
// buffer is not cached, each call hands out a new one.
func GaiStrerror(c *mimic.Call) (mimic.Expr, error) {
	return freshBuffer(c, errorBufSize)
}

// Getpwnam models getpwnam. One symbolic passwd record is built per state:
// five null-terminated string fields plus unconstrained uid and gid. The
// requested name is ignored.
func Getpwnam(c *mimic.Call) (mimic.Expr, error) {
	state := c.State()
	if addr, ok := state.Singleton("getpwnam"); ok {
		return addr, nil
	}

	strFields := []string{"pw_name", "pw_passwd", "pw_gecos", "pw_dir", "pw_shell"}
	bufs := make(map[string]*mimic.ConstantExpr, len(strFields))
	for _, field := range strFields {
		buf, err := freshBuffer(c, pwStringSize)
		if err != nil {
			return nil, err
		}
		bufs[field] = buf
	}

	ptrBytes := c.Arch().PointerBytes()
	ret, err := c.Inline("malloc", ptrConst(c, ptrBytes*uint64(len(strFields))+8))
	if err != nil {
		return nil, err
	}
	passwd, ok := ret.(*mimic.ConstantExpr)
	if !ok {
		return nil, fmt.Errorf("malloc returned non-constant address")
	}

	// Layout follows struct passwd: name, passwd, uid, gid, gecos, dir, shell.
	ptr := passwd
	for _, field := range []string{"pw_name", "pw_passwd"} {
		if err := state.Store(ptr, bufs[field]); err != nil {
			return nil, err
		}
		ptr = ptr.Add(ptrConst(c, ptrBytes))
	}
	for i := 0; i < 2; i++ {
		if err := state.Store(ptr, state.NewSymbolic(mimic.Width32)); err != nil {
			return nil, err
		}
		ptr = ptr.Add(ptrConst(c, 4))
	}
	for _, field := range []string{"pw_gecos", "pw_dir", "pw_shell"} {
		if err := state.Store(ptr, bufs[field]); err != nil {
			return nil, err
		}
		ptr = ptr.Add(ptrConst(c, ptrBytes))
	}

	state.SetSingleton("getpwnam", passwd)
	return passwd, nil
}

// Signal models signal. The handler expression is recorded in the state's
// signal table and the previous handler is returned, -1 when none was
// installed.
func Signal(c *mimic.Call) (mimic.Expr, error) {
	sig, err := c.Eval(c.Arg(0))
	if err != nil {
		return nil, err
	}
	old := c.State().SignalHandler(sig.Value)
	c.State().SetSignalHandler(sig.Value, c.Arg(1))
	return old, nil
}
