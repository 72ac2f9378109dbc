package mimic_test

import (
	"errors"
	"testing"

	"github.com/benbjohnson/mimic"
	"github.com/google/go-cmp/cmp"
)

func TestMachine_Find(t *testing.T) {
	t.Run("ConcreteMatch", func(t *testing.T) {
		m := newTestMachine(t)
		s := m.NewState()
		addr, _ := s.AllocBytes([]byte("hello\x00world"))

		result, err := m.Find(s, addr, mimic.NewConstantExpr(0, mimic.Width8), 20, mimic.FindOptions{})
		if err != nil {
			t.Fatal(err)
		} else if diff := cmp.Diff(result.Addr, mimic.NewConstantExpr(addr.Value+5, mimic.Width64)); diff != "" {
			t.Fatal(diff)
		} else if diff := cmp.Diff(result.Offsets, []uint64{5}); diff != "" {
			t.Fatal(diff)
		} else if got, exp := len(result.Constraints), 0; got != exp {
			t.Fatalf("unexpected constraint count: %d, expected %d", got, exp)
		} else if result.MultiMatch() {
			t.Fatal("expected single match")
		} else if got, exp := result.MaxIndex(), uint64(5); got != exp {
			t.Fatalf("unexpected max index: %d, expected %d", got, exp)
		}
	})

	t.Run("NoMatch", func(t *testing.T) {
		m := newTestMachine(t)
		s := m.NewState()
		addr, _ := s.AllocBytes([]byte("abc"))

		result, err := m.Find(s, addr, mimic.NewConstantExpr('z', mimic.Width8), 3, mimic.FindOptions{})
		if err != nil {
			t.Fatal(err)
		} else if diff := cmp.Diff(result.Addr, mimic.NewConstantExpr(0, mimic.Width64)); diff != "" {
			t.Fatal(diff)
		} else if got, exp := len(result.Offsets), 0; got != exp {
			t.Fatalf("unexpected offset count: %d, expected %d", got, exp)
		} else if got, exp := result.MaxIndex(), uint64(0); got != exp {
			t.Fatalf("unexpected max index: %d, expected %d", got, exp)
		}
	})

	t.Run("DefaultAddr", func(t *testing.T) {
		m := newTestMachine(t)
		s := m.NewState()
		addr, _ := s.AllocBytes([]byte("abc"))

		result, err := m.Find(s, addr, mimic.NewConstantExpr('z', mimic.Width8), 3, mimic.FindOptions{
			Default: addr,
		})
		if err != nil {
			t.Fatal(err)
		} else if diff := cmp.Diff(result.Addr, addr); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("MaxBytesBelowStride", func(t *testing.T) {
		m := newTestMachine(t)
		s := m.NewState()
		addr, _ := s.Alloc(4)

		result, err := m.Find(s, addr, mimic.NewConstantExpr(0, mimic.Width16), 1, mimic.FindOptions{CharBytes: 2})
		if err != nil {
			t.Fatal(err)
		} else if diff := cmp.Diff(result.Addr, addr); diff != "" {
			t.Fatal(diff)
		} else if got, exp := len(result.Offsets), 0; got != exp {
			t.Fatalf("unexpected offset count: %d, expected %d", got, exp)
		}
	})

	t.Run("Symbolic", func(t *testing.T) {
		m := newTestMachine(t)
		s := m.NewState()
		addr, _ := s.Alloc(10)

		// The bound exceeds the allocation so the scan clamps to it.
		result, err := m.Find(s, addr, mimic.NewConstantExpr(0, mimic.Width8), 20, mimic.FindOptions{})
		if err != nil {
			t.Fatal(err)
		} else if diff := cmp.Diff(result.Offsets, []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}); diff != "" {
			t.Fatal(diff)
		} else if !result.MultiMatch() {
			t.Fatal("expected multi match")
		} else if got, exp := result.MaxIndex(), uint64(9); got != exp {
			t.Fatalf("unexpected max index: %d, expected %d", got, exp)
		} else if got, exp := len(result.Constraints), 1; got != exp {
			t.Fatalf("unexpected constraint count: %d, expected %d", got, exp)
		}

		for _, constraint := range result.Constraints {
			s.AddConstraint(constraint)
		}

		// Both a match at any position and a miss remain satisfiable.
		for _, target := range []*mimic.ConstantExpr{
			addr,
			mimic.NewConstantExpr(addr.Value+9, mimic.Width64),
			mimic.NewConstantExpr(0, mimic.Width64),
		} {
			if ok, err := m.MayBeTrue(s, mimic.NewBinaryExpr(mimic.EQ, result.Addr, target)); err != nil {
				t.Fatal(err)
			} else if !ok {
				t.Fatalf("expected satisfiable address %s", target)
			}
		}
	})

	t.Run("FirstMatchWins", func(t *testing.T) {
		m := newTestMachine(t)
		s := m.NewState()
		addr, _ := s.Alloc(2)
		if err := s.Store(addr.Add(mimic.NewConstantExpr(1, mimic.Width64)), mimic.NewConstantExpr(0, mimic.Width8)); err != nil {
			t.Fatal(err)
		}

		result, err := m.Find(s, addr, mimic.NewConstantExpr(0, mimic.Width8), 2, mimic.FindOptions{})
		if err != nil {
			t.Fatal(err)
		} else if diff := cmp.Diff(result.Offsets, []uint64{0, 1}); diff != "" {
			t.Fatal(diff)
		}

		for _, constraint := range result.Constraints {
			s.AddConstraint(constraint)
		}

		// The terminating concrete zero rules out a miss.
		if ok, err := m.MayBeTrue(s, mimic.NewBinaryExpr(mimic.EQ, result.Addr, mimic.NewConstantExpr(0, mimic.Width64))); err != nil {
			t.Fatal(err)
		} else if ok {
			t.Fatal("expected miss to be unsatisfiable")
		}

		// Forcing the first byte non-zero forces the match to the second.
		b0, err := s.Load(addr, mimic.Width8)
		if err != nil {
			t.Fatal(err)
		}
		s.AddConstraint(mimic.NewBinaryExpr(mimic.NE, b0, mimic.NewConstantExpr(0, mimic.Width8)))

		if ok, err := m.MustBeTrue(s, mimic.NewBinaryExpr(mimic.EQ, result.Addr, mimic.NewConstantExpr(addr.Value+1, mimic.Width64))); err != nil {
			t.Fatal(err)
		} else if !ok {
			t.Fatal("expected match at second byte")
		}
	})

	t.Run("MaxSymbolic", func(t *testing.T) {
		m := newTestMachine(t)
		s := m.NewState()
		addr, _ := s.Alloc(8)

		result, err := m.Find(s, addr, mimic.NewConstantExpr(0, mimic.Width8), 8, mimic.FindOptions{MaxSymbolic: 2})
		if err != nil {
			t.Fatal(err)
		} else if diff := cmp.Diff(result.Offsets, []uint64{0, 1}); diff != "" {
			t.Fatal(diff)
		}

		// The scan was cut short so a miss is still possible.
		for _, constraint := range result.Constraints {
			s.AddConstraint(constraint)
		}
		if ok, err := m.MayBeTrue(s, mimic.NewBinaryExpr(mimic.EQ, result.Addr, mimic.NewConstantExpr(0, mimic.Width64))); err != nil {
			t.Fatal(err)
		} else if !ok {
			t.Fatal("expected miss to be satisfiable")
		}
	})

	t.Run("WideStride", func(t *testing.T) {
		m := newTestMachine(t)
		s := m.NewState()
		addr, _ := s.AllocBytes([]byte{0x41, 0, 0, 0, 0, 0, 0, 0})

		result, err := m.Find(s, addr, mimic.NewConstantExpr(0, mimic.Width32), 8, mimic.FindOptions{CharBytes: 4})
		if err != nil {
			t.Fatal(err)
		} else if diff := cmp.Diff(result.Addr, mimic.NewConstantExpr(addr.Value+4, mimic.Width64)); diff != "" {
			t.Fatal(diff)
		} else if diff := cmp.Diff(result.Offsets, []uint64{4}); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("ErrNoAllocation", func(t *testing.T) {
		m := newTestMachine(t)
		s := m.NewState()
		if _, err := m.Find(s, mimic.NewConstantExpr(0xF0000, mimic.Width64), mimic.NewConstantExpr(0, mimic.Width8), 4, mimic.FindOptions{}); !errors.Is(err, mimic.ErrNoAllocation) {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
