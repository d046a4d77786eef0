// Package harness runs conformance scenarios against the module host.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: main_imports_util
//	description: "The entry sees a dependency's export"
//	entry: /main.yaml
//	modules:
//	  /main.yaml: |
//	    imports:
//	      - from: ./util.yaml
//	        names: {value: value}
//	    exports:
//	      default: {ref: value}
//	  /util.yaml: |
//	    exports:
//	      value: 42
//	expect:
//	  value: 42
//	assertions:
//	  - type: order
//	    kind: module_state
//	    names: [evaluated, evaluated]
//	  - type: evaluated_once
//	    modules: [/util.yaml]
//
// Modules live in an in-memory loader; paths are mem: URLs. A scenario
// expects either a value or an error code (with an optional failing
// specifier), never both.
//
// # Assertion Types
//
//   - order: events of the given kind have these names, in this relative order
//   - contains: an event matching kind, name, and optionally detail and module exists
//   - count: exactly count events match kind and name
//   - evaluated_once: each listed module body ran exactly once
//   - not_evaluated: none of the listed module bodies ran
//
// # Deterministic Testing
//
// Every scenario runs with a fixed run ID, virtual time, and a fresh
// in-memory SQLite store. The trace assertions and golden snapshots read
// events back from that store, so identical scenarios produce identical
// traces.
package harness
