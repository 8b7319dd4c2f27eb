package index

import (
	"reflect"
	"testing"
)

func TestIntersectWithSlop(t *testing.T) {
	tests := []struct {
		name  string
		left  []uint32
		right []uint32
		slop  uint32
		want  []uint32
	}{
		{"wildcard gap", []uint32{20, 75, 77}, []uint32{18, 21, 60}, WildcardSlop, []uint32{21, 60}},
		{"slop one narrows", []uint32{21, 60}, []uint32{50, 61}, 1, []uint32{61}},
		{"slop one first doc", []uint32{1, 2, 3}, []uint32{4, 5, 6}, 1, []uint32{4}},
		{"wildcard after narrow", []uint32{1, 2, 3}, []uint32{4, 5, 6}, WildcardSlop, []uint32{4, 5, 6}},
		{"empty left", nil, []uint32{1, 2}, 1, nil},
		{"empty right", []uint32{1, 2}, nil, 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IntersectWithSlop(tt.left, tt.right, tt.slop)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("IntersectWithSlop(%v, %v, %d) = %v, want %v", tt.left, tt.right, tt.slop, got, tt.want)
			}
		})
	}
}

func TestIntersectWithSlopNoOmission(t *testing.T) {
	// Every r in right satisfying the predicate for some l in left must
	// appear in the output, and nothing else may.
	left := []uint32{0, 5, 10, 20, 21, 40}
	right := []uint32{1, 6, 15, 22, 41, 100}
	slop := uint32(2)

	var want []uint32
	for _, r := range right {
		lo := uint32(0)
		if r > slop {
			lo = r - slop
		}
		ok := false
		for _, l := range left {
			if l >= lo && l <= r {
				ok = true
				break
			}
		}
		if ok {
			want = append(want, r)
		}
	}

	got := IntersectWithSlop(left, right, slop)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestPostingsAdvanceSeek(t *testing.T) {
	p := NewPostings([]Posting{
		{DocID: 2, Freq: 1},
		{DocID: 5, Freq: 3},
		{DocID: 9, Freq: 1},
	})

	if got := p.Doc(); got != Terminal {
		t.Fatalf("before first Advance, Doc() = %d, want Terminal", got)
	}
	if got := p.Advance(); got != 2 {
		t.Fatalf("Advance() = %d, want 2", got)
	}
	if got := p.Seek(5); got != 5 {
		t.Fatalf("Seek(5) = %d, want 5", got)
	}
	if got := p.Seek(6); got != 9 {
		t.Fatalf("Seek(6) = %d, want 9 (first doc >= target)", got)
	}
	if got := p.Advance(); got != Terminal {
		t.Fatalf("Advance() past end = %d, want Terminal", got)
	}
}
