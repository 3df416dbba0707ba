// Package request defines the records exchanged between the root and child layers.
//
// This package contains type definitions only. All other internal packages
// import request; request imports nothing internal except slot. This keeps
// the request record the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - A Request is immutable once logged
//   - Events are ordered by a per-layer logical clock (Seq), never wall time
//   - Request identity for replay protection is (Direction, ID) per layer
//   - Request.Hash is the subject an origin proof must cover
package request
