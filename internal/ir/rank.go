package ir

import (
	"cmp"
	"math"
	"strconv"
	"strings"
)

// rankClass orders the representations a rank can take. Numbers rank above
// text.
type rankClass int

const (
	rankText rankClass = iota
	rankFloat
	rankInt
)

type rank struct {
	class rankClass
	i     int64
	f     float64
	s     string
}

func classify(v IRValue) rank {
	switch val := v.(type) {
	case IRInt:
		return rank{class: rankInt, i: int64(val), f: float64(val)}
	case IRFloat:
		return rank{class: rankFloat, f: float64(val)}
	case IRString:
		s := strings.TrimSpace(string(val))
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return rank{class: rankInt, i: i, f: float64(i)}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return rank{class: rankFloat, f: f}
		}
		return rank{class: rankText, s: string(val)}
	default:
		return rank{class: rankText, s: Text(v)}
	}
}

// CompareRank orders two rank values ascending. It is total: integers
// (native or string-encoded) and floats (native or string-encoded) compare
// numerically and rank above everything else; two integers compare exactly
// as int64, any other numeric pair as float64 where NaN sorts lowest; the
// rest compare lexically on their text form, null reading as "".
func CompareRank(a, b IRValue) int {
	ra, rb := classify(a), classify(b)
	aNum, bNum := ra.class != rankText, rb.class != rankText
	switch {
	case aNum && !bNum:
		return 1
	case !aNum && bNum:
		return -1
	case !aNum:
		return strings.Compare(ra.s, rb.s)
	case ra.class == rankInt && rb.class == rankInt:
		return cmp.Compare(ra.i, rb.i)
	default:
		return cmp.Compare(ra.f, rb.f)
	}
}

// NumericRank returns v as a number for ordering, or IRInt(0) when v is
// absent or not numeric. String-encoded numbers are parsed.
func NumericRank(v IRValue) IRValue {
	r := classify(v)
	switch r.class {
	case rankInt:
		return IRInt(r.i)
	case rankFloat:
		if math.IsNaN(r.f) {
			return IRInt(0)
		}
		return IRFloat(r.f)
	default:
		return IRInt(0)
	}
}
