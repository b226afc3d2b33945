// Package harness runs chain scenarios against a real engine and source
// chain.
//
// Each scenario gets a fresh in-memory store, a deterministic clock (genesis
// at 2018-10-11T03:23:38Z, one second per commit) and counting nonces, so the
// same scenario always produces the same trace and the same head address.
//
// # Scenario Format
//
//	name: reply_thread
//	description: "Replies are linked from the post they answer"
//	setup:
//	  - invoke: commit
//	    as: root
//	    args: { entry_type: post, content: hello }
//	flow:
//	  - invoke: commit
//	    as: reply
//	    args: { entry_type: reply, content: hi back }
//	  - invoke: add_link
//	    args: { base: $root, target: $reply, tag: replies }
//	    expect:
//	      case: ok
//	assertions:
//	  - type: chain_length
//	    count: 2
//
// Arguments starting with "$" refer to a labelled commit: "$root" is the
// entry address committed with "as: root", "$root.header" its header address.
//
// # Assertion Types
//
//   - trace_contains: an action of the given kind with matching args
//   - trace_order: kinds appear in the given order
//   - trace_count: a kind is dispatched exactly N times
//   - chain_length: the chain holds exactly N headers
//   - chain_types: entry types from genesis to head
//   - top: the head (optionally of one type) carries the given entry
//   - verify: the chain passes full verification
package harness
