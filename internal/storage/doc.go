// Package storage defines the collaborator contracts the queue is built on:
// a document store with an atomic find-one-and-update primitive, and a blob
// store for large out-of-band payloads.
//
// The queue core never talks to a concrete backend; it issues operator-style
// filter documents (Doc) against a Store and streams bytes through a
// BlobStore. Two adapters implement the contracts:
//
//   - storage/mongo: a MongoDB collection plus a GridFS bucket. The
//     find-and-modify command provides the atomic claim the queue's
//     at-most-one-claimant guarantee rests on.
//   - storage/pebbledoc: an embedded single-process store on Pebble, used by
//     the CLI's embedded mode and the test suite.
//
// Filter documents use a small Mongo-shaped operator subset ($gt, $gte, $lt,
// $lte, $ne, $in, $exists) addressed at dotted field paths. Updates are
// {$set: {...}} documents. Both adapters understand the reserved "_id" field.
package storage
