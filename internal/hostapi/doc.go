// Package hostapi is the boundary between sandboxed guest code and the
// dispatch bridge.
//
// Each guest call takes JSON argument bytes, builds one action, dispatches
// it and blocks until the reducer loop has produced its response. Results
// are canonical JSON. Failures never escape as faults: every call reports a
// ReturnCode instead.
//
// Host.Instantiate exposes the same calls to WebAssembly guests as the
// wazero host module "env". Guests pass an argument buffer and an output
// buffer in their own linear memory:
//
//	(arg_ptr, arg_len, out_ptr, out_cap i32) -> i32
//
// A non-negative result is the number of bytes written at out_ptr. A
// negative result is the negated ReturnCode.
package hostapi
