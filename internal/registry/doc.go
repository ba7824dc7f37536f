// Package registry defines the module descriptor and the read-only lookup
// used to find the one active descriptor for a module id.
//
// Descriptors are maintained by an external administrative process; from
// the engine's point of view they are immutable records. A Registry
// implementation may be backed by anything (a database table, HCL files, an
// in-memory slice) but must honour three rules:
//
//   - inactive descriptors are indistinguishable from missing ones;
//   - a missing id is reported as fault.ErrNotFound;
//   - any failure to query the backing store is reported as
//     fault.ErrRegistryUnavailable and is never retried internally.
//
// When several active records share an id, SelectActive picks the winner so
// every implementation breaks ties the same way.
package registry
