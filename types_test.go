package workflow

import "testing"

type testPayloadA struct{ V int }
type testPayloadB struct{ V string }

func TestTypesCompatibleConcrete(t *testing.T) {
	a := TypeOf[testPayloadA]()
	b := TypeOf[testPayloadB]()

	if !TypesCompatible(a, a) {
		t.Fatalf("expected a type to be compatible with itself")
	}
	if TypesCompatible(a, b) {
		t.Fatalf("expected unrelated concrete types to be incompatible")
	}
}

func TestTypesCompatibleAny(t *testing.T) {
	a := TypeOf[testPayloadA]()
	if !TypesCompatible(a, Any()) {
		t.Fatalf("expected any concrete type to be compatible with Any()")
	}
}

func TestTypesCompatibleUnion(t *testing.T) {
	a := TypeOf[testPayloadA]()
	b := TypeOf[testPayloadB]()
	u := UnionOf(a, b)

	if !TypesCompatible(a, u) {
		t.Fatalf("expected union member to be compatible with the union")
	}
	if !TypesCompatible(u, u) {
		t.Fatalf("expected union to be compatible with itself")
	}

	c := TypeOf[int]()
	if TypesCompatible(c, u) {
		t.Fatalf("expected non-member to be incompatible with union")
	}
}

func TestTypesCompatibleContainers(t *testing.T) {
	listA := ListOf(TypeOf[testPayloadA]())
	listA2 := ListOf(TypeOf[testPayloadA]())
	listB := ListOf(TypeOf[testPayloadB]())

	if !TypesCompatible(listA, listA2) {
		t.Fatalf("expected list<A> compatible with list<A>")
	}
	if TypesCompatible(listA, listB) {
		t.Fatalf("expected list<A> incompatible with list<B>")
	}

	m1 := MapOf(TypeOf[string](), TypeOf[testPayloadA]())
	m2 := MapOf(TypeOf[string](), TypeOf[testPayloadA]())
	if !TypesCompatible(m1, m2) {
		t.Fatalf("expected map<string,A> compatible with map<string,A>")
	}
}

func TestEdgeInputTypeFanIn(t *testing.T) {
	out := TypeOf[testPayloadA]()
	fanIn := EdgeInputType(out, true)
	if fanIn.Kind != KindList {
		t.Fatalf("expected fan-in edge input type to be a list, got %v", fanIn.Kind)
	}
	direct := EdgeInputType(out, false)
	if direct.Kind != KindConcrete {
		t.Fatalf("expected non-fan-in edge input type to stay concrete, got %v", direct.Kind)
	}
}

func TestTypeIDNameStable(t *testing.T) {
	a := TypeOf[testPayloadA]()
	if a.Name() == "" {
		t.Fatalf("expected non-empty type name")
	}
	if a.Name() != a.Name() {
		t.Fatalf("expected Name() to be stable across calls")
	}
}
