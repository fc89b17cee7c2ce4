// Package mongo adapts a MongoDB collection and a GridFS bucket to the
// storage contracts. Document ids are ObjectID hex strings; the atomic
// FindOneAndUpdate maps directly onto the driver's findAndModify.
package mongo
