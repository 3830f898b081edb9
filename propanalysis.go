package bytecomp

// propertyAnalysis tracks the distinct property names stored into one
// freshly created object, so the allocation can be sized up front. refs
// counts the registers currently aliasing the object.
type propertyAnalysis struct {
	target     int
	properties map[int]struct{}
	refs       int
}

func (a *propertyAnalysis) record(code []int32) {
	code[a.target] = int32(len(a.properties))
}

// propertyAnalyzer follows object allocations through register moves and
// property stores. When the last register referring to an object is
// overwritten or the body ends, the number of properties seen is written
// into the allocation's hint operand.
type propertyAnalyzer struct {
	code     *instructionStream
	analyses map[int]*propertyAnalysis
}

func newPropertyAnalyzer(code *instructionStream) *propertyAnalyzer {
	return &propertyAnalyzer{code: code, analyses: map[int]*propertyAnalysis{}}
}

func (pa *propertyAnalyzer) drop(a *propertyAnalysis) {
	if a == nil {
		return
	}
	// While other aliases exist the object may still gain properties.
	if a.refs == 1 {
		a.record(pa.code.words)
	}
	a.refs--
}

func (pa *propertyAnalyzer) bind(dst int, a *propertyAnalysis) {
	old := pa.analyses[dst]
	if old == a {
		return
	}
	a.refs++
	pa.analyses[dst] = a
	pa.drop(old)
}

// newObject starts an analysis for the object created into dst. target is
// the position of the hint operand.
func (pa *propertyAnalyzer) newObject(dst, target int) {
	pa.bind(dst, &propertyAnalysis{target: target, properties: map[int]struct{}{}})
}

func (pa *propertyAnalyzer) putByID(dst, identifier int) {
	if a := pa.analyses[dst]; a != nil {
		a.properties[identifier] = struct{}{}
	}
}

func (pa *propertyAnalyzer) mov(dst, src int) {
	a := pa.analyses[src]
	if a == nil {
		pa.kill(dst)
		return
	}
	pa.bind(dst, a)
}

// kill forgets whatever object dst referred to.
func (pa *propertyAnalyzer) kill(dst int) {
	a, ok := pa.analyses[dst]
	if !ok {
		return
	}
	delete(pa.analyses, dst)
	pa.drop(a)
}

func (pa *propertyAnalyzer) killAll() {
	for dst := range pa.analyses {
		pa.kill(dst)
	}
}
