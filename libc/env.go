package libc

import (
	"strings"

	"github.com/benbjohnson/mimic"
)

// Getenv models getenv by walking the null-terminated pointer vector
// installed by SetupEnviron.
//
// A fully concrete key compared against a fully concrete entry resolves
// immediately: on a match the summary returns a concrete pointer to the
// character after the '='. When either side is symbolic the entry instead
// contributes a disjunct allowing the result to point anywhere inside it.
// The final result is a fresh pointer constrained to be null or to point
// into one of the symbolic entries. Walk failures are logged and end the
// walk early, they never fail the call.
func Getenv(c *mimic.Call) (mimic.Expr, error) {
	state := c.State()
	logger := c.Logger()

	name, err := strlenInline(c, c.Arg(0))
	if err != nil {
		return nil, err
	}

	nameSym := true
	var nameStr string
	if lenConst, ok := name.Len.(*mimic.ConstantExpr); ok {
		exprs, err := readBytes(c, name.Addr, lenConst.Value)
		if err != nil {
			return nil, err
		}
		if b, ok := concreteBytes(exprs); ok {
			nameStr = string(b)
			nameSym = false
		}
	}
	if nameSym {
		logger.Debug("searching environment for symbolic key")
	} else {
		logger.Debug("searching environment", "key", nameStr)
	}

	environ := state.Environ()
	if environ == nil {
		logger.Warn("environment not initialized, returning unconstrained result")
		return state.NewSymbolic(ptrWidth(c)), nil
	}

	ptrBytes := c.Arch().PointerBytes()
	envpp := environ
	retVal := state.NewSymbolic(ptrWidth(c))
	retExpr := mimic.NewBinaryExpr(mimic.EQ, retVal, nullPtr(c))
	for {
		envpExpr, err := loadPointer(c, envpp)
		if err != nil {
			logger.Error("environment walk failed", "err", err)
			break
		}
		envp, err := c.Eval(envpExpr)
		if err != nil {
			logger.Error("environment walk failed", "err", err)
			break
		}
		if envp.Value == 0 {
			break
		}

		entry, err := strlenInline(c, envp)
		if err != nil {
			logger.Error("environment walk failed", "err", err)
			break
		}

		entrySym := true
		var entryStr string
		if lenConst, ok := entry.Len.(*mimic.ConstantExpr); ok {
			exprs, err := readBytes(c, entry.Addr, lenConst.Value)
			if err != nil {
				logger.Error("environment walk failed", "err", err)
				break
			}
			if b, ok := concreteBytes(exprs); ok {
				entryStr = string(b)
				entrySym = false
			}
		}

		if nameSym || entrySym {
			retExpr = mimic.NewBinaryExpr(mimic.OR, retExpr, mimic.NewAllExpr(
				mimic.NewBinaryExpr(mimic.UGT, retVal, entry.Addr),
				mimic.NewBinaryExpr(mimic.ULT, retVal, mimic.NewBinaryExpr(mimic.ADD, entry.Addr, entry.Len)),
			))
		} else {
			key, _, _ := strings.Cut(entryStr, "=")
			if key == nameStr {
				logger.Debug("found match", "entry", entryStr)
				return entry.Addr.Add(ptrConst(c, uint64(len(key))+1)), nil
			}
		}

		envpp = envpp.Add(ptrConst(c, ptrBytes))
	}

	state.AddConstraint(retExpr)
	return retVal, nil
}
