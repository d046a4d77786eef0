// Package modscript is the declarative script engine shipped with modhost.
//
// A modscript module is a YAML document:
//
//	imports:
//	  - from: ./util.yaml
//	    names: {value: value}      # local: imported
//	  - from: ./lib.yaml
//	    namespace: lib
//	  - from: ./side.yaml          # side-effect import
//	exports:
//	  answer: {ref: value}
//	  greeting: hello
//	  line: {join: ["a=", {ref: value}]}
//	reexport: [./more.yaml]
//	body:
//	  - log: starting
//	  - microtask: m1
//	  - timeout: t1
//	    delay: 5ms
//	  - await: {timeout: 10ms}
//	  - await: {import: ./lazy.yaml}
//	    as: lazy
//	  - throw: boom
//
// The body runs once, top to bottom. Steps that schedule work (microtask,
// timeout, io, import) hand it to the host's event loop; await suspends the
// body until the awaited promise settles. Exports are computed when the
// body finishes, so they can refer to imports, to values set by the body,
// and to results of awaited operations.
//
// JSON and CUE sources are data modules: their top-level fields become
// named exports and the whole value is the default export.
package modscript
