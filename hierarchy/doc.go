// Package hierarchy implements the role hierarchy graph: a cycle-free DAG
// over role identifiers with transitive ascendant and descendant closures.
//
// A [Graph] stores adjacency sets keyed by identifier, never live object
// pointers, so snapshots and cache invalidation stay cheap. Reads run under
// a shared lock and do not block each other; mutations are serialized and
// bump a generation counter so a closure computed across a concurrent
// mutation is retried once against the fresh snapshot.
//
// The same structure backs the ordinary role graph, the administrative
// role graph, and the organizational-unit trees; they differ only in which
// identifiers are loaded into them.
package hierarchy
