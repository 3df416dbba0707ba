// Package ledger implements the request authorization state machine of one layer.
//
// A Layer has a fixed Role (root or child) and owns one State: the slot
// values, the applied set, and the append-only request log. Two entry points
// exist, both taking the same Request:
//
//   - SubmitOrigin validates that the requestor currently holds the slot and
//     logs the request. The slot is NOT mutated; the origin copy stays
//     readable until the destination side completes.
//   - SubmitDestination validates that the requestor claims exactly the value
//     being installed, rejects replays, asks the injected OriginVerifier for
//     proof that the origin layer accepted the request, then writes the value,
//     records the (direction, id) pair as applied, and logs the request.
//
// Which entry point accepts which direction depends on the role:
//
//	         origin   destination
//	root     enter    exit
//	child    exit     enter
//
// Any other combination is a WrongRole error.
//
// CONCURRENCY:
// A Layer serializes every submission with its own mutex, standing in for a
// ledger's block/transaction ordering. Layers never share memory; the only
// link between them is a relay reading one layer's log and calling the other
// layer's SubmitDestination.
//
// ATOMICITY:
// Every failed call leaves slot values, the applied set and the log exactly
// as they were. Successful calls append exactly one event.
package ledger
