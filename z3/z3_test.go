package z3_test

import (
	"testing"
	"time"

	"github.com/benbjohnson/mimic"
	"github.com/benbjohnson/mimic/z3"
	"github.com/google/go-cmp/cmp"
)

func TestSolver_Solve(t *testing.T) {
	t.Run("Constant", func(t *testing.T) {
		t.Run("True", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]mimic.Expr{mimic.NewBoolConstantExpr(true)}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("False", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]mimic.Expr{mimic.NewBoolConstantExpr(false)}, nil); err != nil {
				t.Fatal(err)
			} else if satisfiable {
				t.Fatal("expected unsatisfiable")
			}
		})
	})

	t.Run("Array", func(t *testing.T) {
		t.Run("Width8", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)

			array := mimic.NewArray(100, 1)

			if satisfiable, values, err := s.Solve(
				[]mimic.Expr{
					mimic.NewBinaryExpr(mimic.EQ,
						array.Select(mimic.NewConstantExpr(0, 64), 8, false),
						mimic.NewConstantExpr(10, 8),
					),
				},
				[]*mimic.Array{array},
			); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			} else if diff := cmp.Diff(values, [][]byte{{10}}); diff != "" {
				t.Fatal(diff)
			}
		})
		t.Run("Width16", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)

			array := mimic.NewArray(100, 2)

			if satisfiable, values, err := s.Solve(
				[]mimic.Expr{
					mimic.NewBinaryExpr(mimic.EQ,
						array.Select(mimic.NewConstantExpr(0, 64), 16, false),
						mimic.NewConstantExpr(0xAABB, 16),
					),
				},
				[]*mimic.Array{array},
			); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			} else if diff := cmp.Diff(values, [][]byte{{0xAA, 0xBB}}); diff != "" {
				t.Fatal(diff)
			}
		})
		t.Run("LittleEndian", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)

			array := mimic.NewArray(100, 2)

			if satisfiable, values, err := s.Solve(
				[]mimic.Expr{
					mimic.NewBinaryExpr(mimic.EQ,
						array.Select(mimic.NewConstantExpr(0, 64), 16, true),
						mimic.NewConstantExpr(0xAABB, 16),
					),
				},
				[]*mimic.Array{array},
			); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			} else if diff := cmp.Diff(values, [][]byte{{0xBB, 0xAA}}); diff != "" {
				t.Fatal(diff)
			}
		})
		t.Run("WithUpdates", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)

			array := mimic.NewArray(100, 2).Store(mimic.NewConstantExpr(0, 64), mimic.NewConstantExpr(0xCC, 8), false)

			// The stored byte pins index 0, index 1 stays free.
			if satisfiable, values, err := s.Solve(
				[]mimic.Expr{
					mimic.NewBinaryExpr(mimic.EQ,
						array.Select(mimic.NewConstantExpr(1, 64), 8, false),
						mimic.NewConstantExpr(0xDD, 8),
					),
				},
				[]*mimic.Array{array},
			); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			} else if values[0][1] != 0xDD {
				t.Fatalf("unexpected byte: %#x", values[0][1])
			}
		})
	})

	t.Run("Extract", func(t *testing.T) {
		t.Run("Bool", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)

			// Extract 1 bit
			if satisfiable, _, err := s.Solve([]mimic.Expr{
				&mimic.ExtractExpr{
					Expr:   mimic.NewConstantExpr(0x04, 64),
					Offset: 2,
					Width:  1,
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}

			// Extract 0 bit.
			if satisfiable, _, err := s.Solve([]mimic.Expr{
				&mimic.ExtractExpr{
					Expr:   mimic.NewConstantExpr(0x04, 64),
					Offset: 6,
					Width:  1,
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if satisfiable {
				t.Fatal("expected unsatisfiable")
			}
		})
		t.Run("Int", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]mimic.Expr{
				&mimic.BinaryExpr{
					Op: mimic.EQ,
					LHS: &mimic.ExtractExpr{
						Expr:   mimic.NewConstantExpr(0xAABB, 16),
						Offset: 8,
						Width:  8,
					},
					RHS: mimic.NewConstantExpr(0xAA, 8),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
	})

	t.Run("Cast", func(t *testing.T) {
		t.Run("Signed", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)

			value := -200
			if satisfiable, _, err := s.Solve([]mimic.Expr{
				&mimic.BinaryExpr{
					Op: mimic.EQ,
					LHS: &mimic.CastExpr{
						Src:    mimic.NewConstantExpr(uint64(uint16(int16(value))), 16),
						Width:  32,
						Signed: true,
					},
					RHS: mimic.NewConstantExpr(uint64(uint32(int32(value))), 32),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("SignedBool", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			value := -1
			if satisfiable, _, err := s.Solve([]mimic.Expr{
				&mimic.BinaryExpr{
					Op: mimic.EQ,
					LHS: &mimic.CastExpr{
						Src:    mimic.NewBoolConstantExpr(true),
						Width:  16,
						Signed: true,
					},
					RHS: mimic.NewConstantExpr(uint64(uint16(int16(value))), 16),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})

		t.Run("Unsigned", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]mimic.Expr{
				&mimic.BinaryExpr{
					Op: mimic.EQ,
					LHS: &mimic.CastExpr{
						Src:   mimic.NewConstantExpr(200, 16),
						Width: 32,
					},
					RHS: mimic.NewConstantExpr(200, 32),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("UnsignedBool", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]mimic.Expr{
				&mimic.BinaryExpr{
					Op: mimic.EQ,
					LHS: &mimic.CastExpr{
						Src:   mimic.NewBoolConstantExpr(true),
						Width: 16,
					},
					RHS: mimic.NewConstantExpr(1, 16),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
	})

	t.Run("Not", func(t *testing.T) {
		t.Run("Bool", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]mimic.Expr{
				&mimic.BinaryExpr{
					Op: mimic.EQ,
					LHS: &mimic.NotExpr{
						Expr: mimic.NewBoolConstantExpr(true),
					},
					RHS: mimic.NewBoolConstantExpr(false),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("Int", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]mimic.Expr{
				&mimic.BinaryExpr{
					Op: mimic.EQ,
					LHS: &mimic.NotExpr{
						Expr: mimic.NewConstantExpr(0xFF00FF00, 16),
					},
					RHS: mimic.NewConstantExpr(0x00FF00FF, 16),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
	})

	t.Run("BinaryExpr", func(t *testing.T) {
		for _, tt := range []struct {
			name string
			op   mimic.BinaryOp
			lhs  uint64
			rhs  uint64
			exp  uint64
		}{
			{"ADD", mimic.ADD, 1000, 200, 1200},
			{"SUB", mimic.SUB, 1000, 200, 800},
			{"MUL", mimic.MUL, 30, 200, 6000},
			{"UDIV", mimic.UDIV, 1000, 250, 4},
			{"UREM", mimic.UREM, 1000, 300, 100},
			{"AND", mimic.AND, 0xFF0F, 0x0FF0, 0x0F00},
			{"OR", mimic.OR, 0xF000, 0x000F, 0xF00F},
			{"XOR", mimic.XOR, 0xFF00, 0x0FF0, 0xF0F0},
			{"SHL", mimic.SHL, 0x00F1, 4, 0x0F10},
			{"LSHR", mimic.LSHR, 0x8F00, 8, 0x008F},
			{"ASHR", mimic.ASHR, 0x8000, 15, 0xFFFF},
		} {
			t.Run(tt.name, func(t *testing.T) {
				s := z3.NewSolver()
				defer MustCloseSolver(s)
				if satisfiable, _, err := s.Solve([]mimic.Expr{
					&mimic.BinaryExpr{
						Op: mimic.EQ,
						LHS: &mimic.BinaryExpr{
							Op:  tt.op,
							LHS: mimic.NewConstantExpr(tt.lhs, 16),
							RHS: mimic.NewConstantExpr(tt.rhs, 16),
						},
						RHS: mimic.NewConstantExpr(tt.exp, 16),
					},
				}, nil); err != nil {
					t.Fatal(err)
				} else if !satisfiable {
					t.Fatal("expected satisfiable")
				}
			})
		}

		t.Run("SDIV", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			lhs, rhs := int16(-1000), int16(-4)
			if satisfiable, _, err := s.Solve([]mimic.Expr{
				&mimic.BinaryExpr{
					Op: mimic.EQ,
					LHS: &mimic.BinaryExpr{
						Op:  mimic.SDIV,
						LHS: mimic.NewConstantExpr(uint64(uint16(lhs)), 16),
						RHS: mimic.NewConstantExpr(250, 16),
					},
					RHS: mimic.NewConstantExpr(uint64(uint16(rhs)), 16),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
		t.Run("SREM", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			lhs, rhs := int16(-1000), int16(-100)
			if satisfiable, _, err := s.Solve([]mimic.Expr{
				&mimic.BinaryExpr{
					Op: mimic.EQ,
					LHS: &mimic.BinaryExpr{
						Op:  mimic.SREM,
						LHS: mimic.NewConstantExpr(uint64(uint16(lhs)), 16),
						RHS: mimic.NewConstantExpr(300, 16),
					},
					RHS: mimic.NewConstantExpr(uint64(uint16(rhs)), 16),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})

		t.Run("Compare", func(t *testing.T) {
			for _, tt := range []struct {
				name string
				op   mimic.BinaryOp
				lhs  uint64
				rhs  uint64
			}{
				{"ULT", mimic.ULT, 0x01, 0xF0},
				{"ULE", mimic.ULE, 0xF0, 0xF0},
				{"UGT", mimic.UGT, 0xF0, 0x01},
				{"UGE", mimic.UGE, 0xF0, 0xF0},
				{"SLT", mimic.SLT, 0xF0, 0x00},
				{"SLE", mimic.SLE, 0xF0, 0xF0},
				{"SGT", mimic.SGT, 0x00, 0xF0},
				{"SGE", mimic.SGE, 0x00, 0xF0},
			} {
				t.Run(tt.name, func(t *testing.T) {
					s := z3.NewSolver()
					defer MustCloseSolver(s)
					if satisfiable, _, err := s.Solve([]mimic.Expr{
						&mimic.BinaryExpr{
							Op:  tt.op,
							LHS: mimic.NewConstantExpr(tt.lhs, 8),
							RHS: mimic.NewConstantExpr(tt.rhs, 8),
						},
					}, nil); err != nil {
						t.Fatal(err)
					} else if !satisfiable {
						t.Fatal("expected satisfiable")
					}
				})
			}
		})

		t.Run("BoolEQ", func(t *testing.T) {
			s := z3.NewSolver()
			defer MustCloseSolver(s)
			if satisfiable, _, err := s.Solve([]mimic.Expr{
				&mimic.BinaryExpr{
					Op:  mimic.EQ,
					LHS: mimic.NewBoolConstantExpr(false),
					RHS: mimic.NewBoolConstantExpr(false),
				},
			}, nil); err != nil {
				t.Fatal(err)
			} else if !satisfiable {
				t.Fatal("expected satisfiable")
			}
		})
	})

	t.Run("Contradiction", func(t *testing.T) {
		s := z3.NewSolver()
		defer MustCloseSolver(s)

		array := mimic.NewArray(100, 1)
		b := array.Select(mimic.NewConstantExpr(0, 64), 8, false)

		if satisfiable, _, err := s.Solve([]mimic.Expr{
			mimic.NewBinaryExpr(mimic.EQ, b, mimic.NewConstantExpr(1, 8)),
			mimic.NewBinaryExpr(mimic.EQ, b, mimic.NewConstantExpr(2, 8)),
		}, []*mimic.Array{array}); err != nil {
			t.Fatal(err)
		} else if satisfiable {
			t.Fatal("expected unsatisfiable")
		}
	})
}

func TestSolver_SetTimeout(t *testing.T) {
	s := z3.NewSolver()
	defer MustCloseSolver(s)
	s.SetTimeout(10 * time.Second)

	if satisfiable, _, err := s.Solve([]mimic.Expr{mimic.NewBoolConstantExpr(true)}, nil); err != nil {
		t.Fatal(err)
	} else if !satisfiable {
		t.Fatal("expected satisfiable")
	}
}

func TestSolver_Stats(t *testing.T) {
	s := z3.NewSolver()
	defer MustCloseSolver(s)

	if _, _, err := s.Solve([]mimic.Expr{mimic.NewBoolConstantExpr(true)}, nil); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Solve([]mimic.Expr{mimic.NewBoolConstantExpr(false)}, nil); err != nil {
		t.Fatal(err)
	}

	if stats := s.Stats(); stats.SolveN != 2 {
		t.Fatalf("unexpected solve count: %d", stats.SolveN)
	}
}

func MustCloseSolver(s *z3.Solver) {
	if err := s.Close(); err != nil {
		panic(err)
	}
}
