package domain

// IndexSpec describes one index tracked by the pipeline.
// The benchmark is the denominator of every ratio; optional targets are
// skipped with a warning when their data cannot be acquired.
type IndexSpec struct {
	Code      string // exchange code, e.g. "000300.SH"
	Name      string // display name, e.g. "CSI 300"
	Benchmark bool   // exactly one spec per config is the benchmark
	Optional  bool   // failed acquisition is non-fatal
}

// Default index set: CSI 300 benchmark against the mid/small-cap CSI family.
var (
	IndexCSI300  = IndexSpec{Code: "000300.SH", Name: "CSI 300", Benchmark: true}
	IndexCSI500  = IndexSpec{Code: "000905.SH", Name: "CSI 500"}
	IndexCSI1000 = IndexSpec{Code: "000852.SH", Name: "CSI 1000"}
	IndexCSIA500 = IndexSpec{Code: "000510.SH", Name: "CSI A500", Optional: true}
)

// DefaultIndexSet returns the standard benchmark-plus-targets set.
func DefaultIndexSet() []IndexSpec {
	return []IndexSpec{IndexCSI300, IndexCSI500, IndexCSI1000, IndexCSIA500}
}
