package workflow

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// TypeKind discriminates the shape of a TypeID.
//
// Type information in the runtime is data, not runtime reflection over
// decorator metadata: every Executor declares its input/output types as
// TypeID values when its handlers are registered, and the Validator
// consumes that data directly (see validator.go).
type TypeKind int

const (
	// KindConcrete is a single, non-generic Go type (identified by
	// reflect.Type).
	KindConcrete TypeKind = iota
	// KindAny matches anything (the `Any` target in spec's compatibility rule).
	KindAny
	// KindList is a generic container analogous to list<T>.
	KindList
	// KindSet is a generic container analogous to set<T>, compared the same
	// way as KindList.
	KindSet
	// KindMap is a generic container analogous to map<K, V>.
	KindMap
	// KindUnion is a closed set of alternative TypeIDs.
	KindUnion
	// KindNamed carries a name string with no backing reflect.Type, for
	// values whose type identity crosses a boundary where only the name
	// survives (e.g. a sub-workflow's request_info type lifted into its
	// parent — see NamedTypeID).
	KindNamed
)

// TypeID is the tagged-variant type descriptor used throughout the runtime
// in place of open reflection: handler registration, validator
// compatibility checks, and graph-signature hashing all operate on TypeID
// values.
type TypeID struct {
	Kind    TypeKind
	RType   reflect.Type // set when Kind == KindConcrete
	Elem    *TypeID      // element type for List/Set, value type for Map
	Key     *TypeID      // key type for Map
	Members []TypeID     // alternative types for Union
	name    string       // set when Kind == KindNamed
}

// Any returns the TypeID that is compatible with every other TypeID.
func Any() TypeID { return TypeID{Kind: KindAny} }

// TypeOf returns the concrete TypeID for a Go value of static type T.
func TypeOf[T any]() TypeID {
	var zero T
	t := reflect.TypeOf(&zero).Elem()
	return TypeID{Kind: KindConcrete, RType: t}
}

// ListOf returns the TypeID for list<elem>.
func ListOf(elem TypeID) TypeID { return TypeID{Kind: KindList, Elem: &elem} }

// SetOf returns the TypeID for set<elem>.
func SetOf(elem TypeID) TypeID { return TypeID{Kind: KindSet, Elem: &elem} }

// MapOf returns the TypeID for map<key, val>.
func MapOf(key, val TypeID) TypeID {
	return TypeID{Kind: KindMap, Key: &key, Elem: &val}
}

// UnionOf returns the TypeID that matches any of members.
func UnionOf(members ...TypeID) TypeID {
	return TypeID{Kind: KindUnion, Members: members}
}

// NamedTypeID returns a TypeID that carries name directly rather than a
// reflect.Type, for call sites that only have a type's name (already
// computed by an earlier TypeID.Name() call, typically across a process or
// sub-workflow boundary) and nothing to reflect on. Name() returns name
// unchanged; it is not compatibility-checked against other TypeIDs and
// exists purely so a diagnostic or signature surface sees the real name
// instead of a placeholder.
func NamedTypeID(name string) TypeID {
	return TypeID{Kind: KindNamed, name: name}
}

// Name returns a stable, human-readable, fully-qualified name for the type.
// This is the value used both in diagnostics and in the graph signature (see
// signature.go) — two workflows built from equivalent topologies must
// produce identical names here.
func (t TypeID) Name() string {
	switch t.Kind {
	case KindAny:
		return "any"
	case KindNamed:
		return t.name
	case KindConcrete:
		if t.RType == nil {
			return "invalid"
		}
		if pkg := t.RType.PkgPath(); pkg != "" {
			return pkg + "." + t.RType.String()
		}
		return t.RType.String()
	case KindList:
		return "list<" + t.Elem.Name() + ">"
	case KindSet:
		return "set<" + t.Elem.Name() + ">"
	case KindMap:
		return "map<" + t.Key.Name() + "," + t.Elem.Name() + ">"
	case KindUnion:
		names := make([]string, len(t.Members))
		for i, m := range t.Members {
			names[i] = m.Name()
		}
		sort.Strings(names)
		return "union<" + strings.Join(names, "|") + ">"
	default:
		return "unknown"
	}
}

func (t TypeID) String() string { return t.Name() }

// matchesValue reports whether a runtime value's dynamic type is compatible
// with this TypeID, per the same rule CanHandle uses to pick a handler.
func (t TypeID) matchesValue(v any) bool {
	if t.Kind == KindAny {
		return true
	}
	if v == nil {
		return false
	}
	vt := TypeID{Kind: KindConcrete, RType: reflect.TypeOf(v)}
	return TypesCompatible(vt, t)
}

// TypesCompatible implements the recursive compatibility rule from the
// specification's Validator section:
//
//   - source == target -> true
//   - target == Any -> true
//   - target is a union -> true if source matches any member; symmetric for
//     source-union-to-member decomposition
//   - both non-generic classes -> source is a subclass of target (in Go
//     terms: identical, or source implements target when target is an
//     interface, or source is assignable to target)
//   - same container origin (list/set/map) -> recurse on element/value
//     types; map requires both key and value compatible
//   - list<T> into a Go slice type -> recurse on T and the slice's element
//     type
func TypesCompatible(source, target TypeID) bool {
	if target.Kind == KindAny {
		return true
	}
	if source.Kind == KindUnion {
		for _, m := range source.Members {
			if TypesCompatible(m, target) {
				return true
			}
		}
		return false
	}
	if target.Kind == KindUnion {
		for _, m := range target.Members {
			if TypesCompatible(source, m) {
				return true
			}
		}
		return false
	}
	if source.Kind == KindList && target.Kind == KindConcrete && target.RType != nil && target.RType.Kind() == reflect.Slice {
		return TypesCompatible(*source.Elem, TypeID{Kind: KindConcrete, RType: target.RType.Elem()})
	}
	if source.Kind != target.Kind {
		return false
	}
	switch source.Kind {
	case KindConcrete:
		return concreteCompatible(source.RType, target.RType)
	case KindList, KindSet:
		return TypesCompatible(*source.Elem, *target.Elem)
	case KindMap:
		return TypesCompatible(*source.Key, *target.Key) && TypesCompatible(*source.Elem, *target.Elem)
	default:
		return false
	}
}

func concreteCompatible(source, target reflect.Type) bool {
	if source == nil || target == nil {
		return false
	}
	if source == target {
		return true
	}
	if target.Kind() == reflect.Interface {
		return source.Implements(target)
	}
	return source.AssignableTo(target)
}

// EdgeInputType computes the TypeID a target executor must accept for an
// edge carrying values of sourceOutput, given whether the edge is a fan-in
// aggregation edge (in which case the target sees list<sourceOutput>, per
// spec §3's Edge Group definition).
func EdgeInputType(sourceOutput TypeID, isFanIn bool) TypeID {
	if isFanIn {
		return ListOf(sourceOutput)
	}
	return sourceOutput
}

// describeValue is a small diagnostic helper used in error messages.
func describeValue(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}

// dynamicType returns the reflect.Type of v's dynamic type, or nil for nil.
func dynamicType(v any) reflect.Type {
	if v == nil {
		return nil
	}
	return reflect.TypeOf(v)
}
