package libc

import (
	"strconv"
	"strings"

	"github.com/benbjohnson/mimic"
)

// Formatter renders a format string against variadic call arguments. The
// output is a sequence of byte-width expressions so bytes derived from
// symbolic arguments stay symbolic.
type Formatter interface {
	Format(c *mimic.Call, format []byte, args *ArgReader) ([]mimic.Expr, error)
}

// DefaultFormatter renders format strings for the printf family summaries.
var DefaultFormatter Formatter = StdFormatter{}

// ArgReader iterates over the variadic arguments of a call.
type ArgReader struct {
	c *mimic.Call
	i int
}

// NewArgReader returns a reader positioned at argument index start.
func NewArgReader(c *mimic.Call, start int) *ArgReader {
	return &ArgReader{c: c, i: start}
}

// Next returns the next variadic argument. Reading past the end produces a
// fresh symbolic value, mirroring what a real va_arg would fetch from
// uninitialized stack.
func (r *ArgReader) Next() mimic.Expr {
	if r.i >= r.c.NArg() {
		return r.c.State().NewSymbolic(r.c.Arch().PointerWidth)
	}
	arg := r.c.Arg(r.i)
	r.i++
	return arg
}

// StdFormatter is a printf-style formatter covering the integer, character,
// string and pointer conversions. Integer and pointer arguments are
// concretized for rendering. %c and %s pass symbolic bytes through
// unchanged. Unsupported conversions are emitted verbatim.
type StdFormatter struct{}

var _ Formatter = (*StdFormatter)(nil)

func (f StdFormatter) Format(c *mimic.Call, format []byte, args *ArgReader) ([]mimic.Expr, error) {
	var out []mimic.Expr
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			out = append(out, mimic.NewConstantExpr(uint64(format[i]), mimic.Width8))
			continue
		}

		n, spec, ok := scanVerb(format[i:])
		if !ok {
			out = append(out, constBytes(format[i:])...)
			break
		}

		switch spec.verb {
		case '%':
			out = append(out, mimic.NewConstantExpr('%', mimic.Width8))
		case 'c':
			out = append(out, toByte(args.Next()))
		case 's':
			b, err := f.formatString(c, args.Next())
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		case 'd', 'i':
			b, err := f.formatInt(c, args.Next(), 10, true, spec)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		case 'u':
			b, err := f.formatInt(c, args.Next(), 10, false, spec)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		case 'o':
			b, err := f.formatInt(c, args.Next(), 8, false, spec)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		case 'x', 'X':
			b, err := f.formatInt(c, args.Next(), 16, false, spec)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		case 'p':
			v, err := concretize(c, args.Next())
			if err != nil {
				return nil, err
			}
			out = append(out, constBytes([]byte("0x"+strconv.FormatUint(v.Value, 16)))...)
		default:
			c.Logger().Debug("unsupported conversion", "verb", string(spec.verb))
			out = append(out, constBytes(format[i:i+n])...)
		}
		i += n - 1
	}
	return out, nil
}

func (f StdFormatter) formatInt(c *mimic.Call, arg mimic.Expr, base int, signed bool, spec verbSpec) ([]mimic.Expr, error) {
	v, err := concretize(c, arg)
	if err != nil {
		return nil, err
	}

	var s string
	if signed {
		s = strconv.FormatInt(signedValue(v), base)
	} else {
		s = strconv.FormatUint(v.Value, base)
	}
	if spec.verb == 'X' {
		s = strings.ToUpper(s)
	}
	if spec.width > len(s) {
		pad := " "
		if spec.zeroPad {
			pad = "0"
		}
		s = strings.Repeat(pad, spec.width-len(s)) + s
	}
	return constBytes([]byte(s)), nil
}

func (f StdFormatter) formatString(c *mimic.Call, arg mimic.Expr) ([]mimic.Expr, error) {
	lr, err := strlenInline(c, arg)
	if err != nil {
		return nil, err
	}

	length, err := concretize(c, lr.Len)
	if err != nil {
		return nil, err
	}
	return readBytes(c, lr.Addr, length.Value)
}

type verbSpec struct {
	verb    byte
	width   int
	zeroPad bool
}

// scanVerb parses one conversion specification starting at the '%'. It
// returns the consumed byte count and false if the specification is cut off.
func scanVerb(s []byte) (int, verbSpec, bool) {
	var spec verbSpec
	i := 1

	for i < len(s) && strings.IndexByte("-+ #0", s[i]) >= 0 {
		if s[i] == '0' {
			spec.zeroPad = true
		}
		i++
	}
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		spec.width = spec.width*10 + int(s[i]-'0')
		i++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
	}
	for i < len(s) && strings.IndexByte("hlLqjzt", s[i]) >= 0 {
		i++
	}
	if i >= len(s) {
		return 0, spec, false
	}
	spec.verb = s[i]
	return i + 1, spec, true
}

func signedValue(v *mimic.ConstantExpr) int64 {
	switch v.Width {
	case mimic.Width8:
		return int64(int8(v.Value))
	case mimic.Width16:
		return int64(int16(v.Value))
	case mimic.Width32:
		return int64(int32(v.Value))
	default:
		return int64(v.Value)
	}
}

func toByte(expr mimic.Expr) mimic.Expr {
	switch w := mimic.ExprWidth(expr); {
	case w < mimic.Width8:
		return mimic.NewCastExpr(expr, mimic.Width8, false)
	case w > mimic.Width8:
		return mimic.NewExtractExpr(expr, 0, mimic.Width8)
	}
	return expr
}

// concretize evaluates expr to one solution. A symbolic expression is
// pinned to the chosen value with an equality constraint so later
// queries agree with the rendered output.
func concretize(c *mimic.Call, expr mimic.Expr) (*mimic.ConstantExpr, error) {
	if expr, ok := expr.(*mimic.ConstantExpr); ok {
		return expr, nil
	}
	value, err := c.Eval(expr)
	if err != nil {
		return nil, err
	}
	c.State().AddConstraint(mimic.NewBinaryExpr(mimic.EQ, expr, value))
	return value, nil
}

// renderFormat reads the format string argument at fmtArg and renders it
// against the variadic arguments starting at argStart. Symbolic format
// bytes are pinned to the concretization used for rendering.
func renderFormat(c *mimic.Call, fmtArg, argStart int) ([]mimic.Expr, error) {
	lr, err := strlenInline(c, c.Arg(fmtArg))
	if err != nil {
		return nil, err
	}
	length, err := concretize(c, lr.Len)
	if err != nil {
		return nil, err
	}
	n := length.Value

	format, err := c.EvalBytes(lr.Addr, n)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < n; i++ {
		b, err := c.State().Load(lr.Addr.Add(ptrConst(c, i)), mimic.Width8)
		if err != nil {
			return nil, err
		}
		if !mimic.IsConstantExpr(b) {
			c.State().AddConstraint(mimic.NewBinaryExpr(mimic.EQ, b, mimic.NewConstantExpr(uint64(format[i]), mimic.Width8)))
		}
	}
	return DefaultFormatter.Format(c, format, NewArgReader(c, argStart))
}

// Snprintf models snprintf. Output beyond the capacity is truncated, the
// terminator is always written and the truncated length is returned.
func Snprintf(c *mimic.Call) (mimic.Expr, error) {
	sizeArg := c.Arg(1)
	size, err := c.Eval(sizeArg)
	if err != nil {
		return nil, err
	}
	if size.Value == 0 {
		return sizeArg, nil
	}

	out, err := renderFormat(c, 2, 3)
	if err != nil {
		return nil, err
	}

	sizeMax, err := c.Max(sizeArg)
	if err != nil {
		return nil, err
	}
	if uint64(len(out)) > sizeMax-1 {
		out = out[:sizeMax-1]
	}

	dst, err := c.EvalAddr(c.Arg(0))
	if err != nil {
		return nil, err
	}
	if err := storeBytes(c, dst, out); err != nil {
		return nil, err
	}
	if err := c.State().Store(dst.Add(ptrConst(c, uint64(len(out)))), mimic.NewConstantExpr(0, mimic.Width8)); err != nil {
		return nil, err
	}
	return ptrConst(c, uint64(len(out))), nil
}

// SnprintfChk models __snprintf_chk. Truncation uses the declared buffer
// size, the separate maxlen argument is not enforced.
func SnprintfChk(c *mimic.Call) (mimic.Expr, error) {
	out, err := renderFormat(c, 4, 5)
	if err != nil {
		return nil, err
	}

	slenMax, err := c.Max(c.Arg(3))
	if err != nil {
		return nil, err
	}
	if slenMax == 0 {
		if len(out) > 0 {
			out = out[:1]
		}
	} else if uint64(len(out)) > slenMax-1 {
		keep := slenMax - 1
		if keep < 1 {
			keep = 1
		}
		out = out[:keep]
	}

	dst, err := c.EvalAddr(c.Arg(0))
	if err != nil {
		return nil, err
	}
	if err := storeBytes(c, dst, out); err != nil {
		return nil, err
	}
	if err := c.State().Store(dst.Add(ptrConst(c, uint64(len(out)))), mimic.NewConstantExpr(0, mimic.Width8)); err != nil {
		return nil, err
	}
	return ptrConst(c, uint64(len(out))), nil
}

// FprintfChk models __fprintf_chk. Rendered bytes are appended to the
// resolved stream. An unresolvable stream returns -1.
func FprintfChk(c *mimic.Call) (mimic.Expr, error) {
	stream, err := resolveStream(c, c.Arg(0))
	if err != nil {
		return nil, err
	}
	if stream == nil {
		c.Logger().Debug("stream not resolved")
		return minusOne32(), nil
	}

	out, err := renderFormat(c, 2, 3)
	if err != nil {
		return nil, err
	}
	stream.Write(out...)
	return mimic.NewConstantExpr(uint64(len(out)), mimic.Width32), nil
}

// resolveStream maps a stream argument to an open stream. The argument may
// be a plain descriptor number or a FILE pointer whose first field holds the
// descriptor.
func resolveStream(c *mimic.Call, arg mimic.Expr) (*mimic.Stream, error) {
	v, err := c.Eval(arg)
	if err != nil {
		return nil, err
	}
	if stream := c.State().Stream(v.Value); stream != nil {
		return stream, nil
	}

	fdExpr, err := c.State().Load(v, mimic.Width32)
	if err != nil {
		return nil, nil
	}
	fd, err := c.Eval(fdExpr)
	if err != nil {
		return nil, err
	}
	return c.State().Stream(fd.Value), nil
}

// Swprintf models swprintf without rendering: the destination is filled
// with fresh wide characters, terminated at the capacity, and the return
// value is bounded by the capacity.
func Swprintf(c *mimic.Call) (mimic.Expr, error) {
	state := c.State()
	m := c.Machine()
	c.Logger().Warn("output not rendered, symbolizing destination")

	lenMax, err := c.Max(c.Arg(1))
	if err != nil {
		return nil, err
	}
	if lenMax > m.Limits.MaxStringChars {
		lenMax = m.Limits.MaxStringChars
	}
	if lenMax == 0 {
		return ptrConst(c, 0), nil
	}

	wcs, err := c.EvalAddr(c.Arg(0))
	if err != nil {
		return nil, err
	}
	for off := uint64(0); off < lenMax; off++ {
		if err := state.Store(wcs.Add(ptrConst(c, off*WcharBytes)), state.NewSymbolic(wcharBits)); err != nil {
			return nil, err
		}
	}
	if err := state.Store(wcs.Add(ptrConst(c, (lenMax-1)*WcharBytes)), mimic.NewConstantExpr(0, wcharBits)); err != nil {
		return nil, err
	}

	ret := state.NewSymbolic(ptrWidth(c))
	state.AddConstraint(mimic.NewBinaryExpr(mimic.ULE, ret, ptrConst(c, lenMax)))
	return ret, nil
}

// Vfwprintf is a stub. The write is skipped and the result is unconstrained.
func Vfwprintf(c *mimic.Call) (mimic.Expr, error) {
	c.Logger().Warn("output not modeled, skipping stream write")
	return c.State().NewSymbolic(ptrWidth(c)), nil
}
